package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/qr"
)

// newRetrieveCmd creates the 'retrieve' command.
func newRetrieveCmd() *cobra.Command {
	var (
		ff   filterFlags
		uids []string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Query, then retrieve the selected studies",
		Long: `Query every checked server like 'query', print the results and retrieve
the selected studies from the server that reported each one.

Studies are selected interactively by number unless --study or --all is
given. Retrieval stops at the first study that fails; the studies after it
are reported as not attempted.

Examples:
  rescale-qr retrieve --patient-id 12345
  rescale-qr retrieve --accession A-778 --all
  rescale-qr retrieve --patient-id 12345 --study 1.2.840.113619.2.55.3.1 -o ./studies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(uids) > 0 {
				return fmt.Errorf("--all cannot be combined with --study")
			}
			filters, err := ff.filters()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := newSession(cfg, ff.servers)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			res, studies, err := s.query(ctx, filters)
			if err != nil {
				return err
			}
			printStudies(out, studies)
			printFailures(out, res)
			if !s.orch.CanRetrieve() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			selected, err := selectStudies(cmd.InOrStdin(), out, studies, res.Index, uids, all)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				fmt.Fprintln(out, "Nothing selected.")
				return nil
			}

			dest, err := destination.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open destination: %w", err)
			}
			fmt.Fprintf(out, "Retrieving %d stud%s into %s\n", len(selected), plural(len(selected)), dest.Describe())

			done := s.follow()
			rres, err := s.orch.RunRetrieve(ctx, selected, dest)
			done()

			if rres != nil {
				printRetrieveResult(out, rres)
			}
			var rerr *qr.StudyRetrieveError
			if errors.As(err, &rerr) {
				return fmt.Errorf("retrieve halted: %w", err)
			}
			return err
		},
	}
	ff.register(cmd)
	cmd.Flags().StringSliceVar(&uids, "study", nil, "Study instance UID to retrieve (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Retrieve every study found")
	return cmd
}

// selectStudies resolves the studies to retrieve from flags or an interactive
// prompt. UIDs given with --study must have been reported by a server;
// repeats are dropped.
func selectStudies(in io.Reader, out io.Writer, studies []models.Study, idx *qr.StudyIndex, uids []string, all bool) ([]string, error) {
	switch {
	case all:
		return idx.UIDs(), nil
	case len(uids) > 0:
		seen := make(map[string]bool, len(uids))
		picked := make([]string, 0, len(uids))
		for _, uid := range uids {
			if _, ok := idx.Owner(uid); !ok {
				return nil, fmt.Errorf("study %s was not reported by any server", uid)
			}
			if !seen[uid] {
				seen[uid] = true
				picked = append(picked, uid)
			}
		}
		return picked, nil
	}

	sel, err := promptSelection(in, out, len(studies))
	if err != nil {
		return nil, err
	}
	picked := make([]string, 0, len(sel))
	for _, i := range sel {
		picked = append(picked, studies[i].StudyInstanceUID)
	}
	return picked, nil
}

func printRetrieveResult(w io.Writer, res *qr.RetrieveResult) {
	fmt.Fprintf(w, "Retrieved %d stud%s in %s.\n", len(res.Retrieved), plural(len(res.Retrieved)), res.Duration.Round(time.Millisecond))
	if res.Failed != nil {
		fmt.Fprintf(w, "Failed: %s from %s: %v\n", res.Failed.StudyUID, res.Failed.Server, res.Failed.Err)
	}
	if len(res.NotAttempted) > 0 {
		fmt.Fprintf(w, "Not attempted (%d):\n", len(res.NotAttempted))
		for _, uid := range res.NotAttempted {
			fmt.Fprintf(w, "  %s\n", uid)
		}
	}
	if res.Cancelled {
		fmt.Fprintln(w, "Retrieve cancelled.")
	}
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
