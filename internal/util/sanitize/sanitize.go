// Package sanitize cleans text read from server list files and archive
// responses:
//   - invisible Unicode characters (zero-width spaces, BOM, soft hyphens)
//   - DICOM NUL padding
//   - runs of spaces and tabs
package sanitize

import (
	"regexp"
	"strings"
)

var (
	invisibleChars = strings.NewReplacer(
		"\u200B", "", // Zero-width space
		"\u200C", "", // Zero-width non-joiner
		"\u200D", "", // Zero-width joiner
		"\uFEFF", "", // BOM, common at the start of spreadsheet exports
		"\u00AD", "", // Soft hyphen
		"\u2060", "", // Word joiner
		"\u180E", "", // Mongolian vowel separator
	)
	blankRun = regexp.MustCompile(`[ \t]+`)
)

// Field removes invisible characters and surrounding whitespace from a
// CSV field.
func Field(field string) string {
	if field == "" {
		return field
	}
	return strings.TrimSpace(invisibleChars.Replace(field))
}

// Value cleans a DICOM attribute value for display and matching. Values
// are padded to even length with a space or NUL; both are dropped, and
// inner runs of blanks collapse to one space.
func Value(v string) string {
	if v == "" {
		return v
	}
	v = strings.Trim(invisibleChars.Replace(v), " \t\r\n\x00")
	return blankRun.ReplaceAllString(v, " ")
}

// Values applies Value to each element and drops the ones left empty.
func Values(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = Value(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
