package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseSelection turns "1,3-5" or "all" into 0-based indexes into a list of
// n items, in the order given and without repeats.
func parseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return nil, fmt.Errorf("no studies selected")
	}
	if input == "all" || input == "*" {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	seen := make(map[int]bool)
	var out []int
	add := func(i int) error {
		if i < 1 || i > n {
			return fmt.Errorf("selection %d out of range 1-%d", i, n)
		}
		if !seen[i-1] {
			seen[i-1] = true
			out = append(out, i-1)
		}
		return nil
	}

	for _, field := range strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' }) {
		lo, hi, isRange := strings.Cut(field, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", field)
		}
		if !isRange {
			if err := add(a); err != nil {
				return nil, err
			}
			continue
		}
		b, err := strconv.Atoi(hi)
		if err != nil || b < a {
			return nil, fmt.Errorf("invalid range %q", field)
		}
		for i := a; i <= b; i++ {
			if err := add(i); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// promptSelection asks which of n studies to retrieve until the answer parses.
// An empty answer or "q" selects nothing.
func promptSelection(in io.Reader, out io.Writer, n int) ([]int, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Select studies to retrieve [1-%d, ranges like 2-4, 'all', or 'q' to quit]: ", n)
		line, err := reader.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" || strings.EqualFold(answer, "q") {
			return nil, nil
		}
		sel, perr := parseSelection(answer, n)
		if perr == nil {
			return sel, nil
		}
		if err != nil {
			return nil, perr
		}
		fmt.Fprintf(out, "%v, please try again.\n", perr)
	}
}
