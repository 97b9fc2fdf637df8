package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/qr"
)

// filterFlags holds the study-level search flags shared by query and retrieve.
type filterFlags struct {
	patientName string
	patientID   string
	accession   string
	description string
	studyUID    string
	modalities  []string
	date        string
	dateFrom    string
	dateTo      string
	servers     []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.patientName, "patient-name", "", "Patient name (wildcards * and ? allowed)")
	cmd.Flags().StringVar(&f.patientID, "patient-id", "", "Patient ID")
	cmd.Flags().StringVar(&f.accession, "accession", "", "Accession number")
	cmd.Flags().StringVar(&f.description, "description", "", "Study description")
	cmd.Flags().StringVar(&f.studyUID, "study-uid", "", "Study instance UID")
	cmd.Flags().StringSliceVar(&f.modalities, "modality", nil, "Modality in study (repeatable, e.g. --modality CT --modality MR)")
	cmd.Flags().StringVar(&f.date, "date", "", "Study date YYYYMMDD or range YYYYMMDD-YYYYMMDD")
	cmd.Flags().StringVar(&f.dateFrom, "from", "", "Earliest study date (YYYYMMDD)")
	cmd.Flags().StringVar(&f.dateTo, "to", "", "Latest study date (YYYYMMDD)")
	cmd.Flags().StringSliceVar(&f.servers, "server", nil, "Query only these servers (repeatable, overrides checked flags)")
}

// filters validates the flags and returns the search criteria.
func (f *filterFlags) filters() (models.Filters, error) {
	from, to := f.dateFrom, f.dateTo
	if f.date != "" {
		if from != "" || to != "" {
			return models.Filters{}, fmt.Errorf("--date cannot be combined with --from/--to")
		}
		if i := strings.Index(f.date, "-"); i >= 0 {
			from, to = f.date[:i], f.date[i+1:]
		} else {
			from, to = f.date, f.date
		}
	}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("20060102", d); err != nil {
			return models.Filters{}, fmt.Errorf("invalid date %q: expected YYYYMMDD", d)
		}
	}
	if from != "" && to != "" && from > to {
		return models.Filters{}, fmt.Errorf("date range %s-%s is reversed", from, to)
	}

	var modalities []string
	for _, m := range f.modalities {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			modalities = append(modalities, m)
		}
	}

	return models.Filters{
		PatientName:      f.patientName,
		PatientID:        f.patientID,
		AccessionNumber:  f.accession,
		StudyDescription: f.description,
		StudyInstanceUID: f.studyUID,
		Modalities:       modalities,
		StudyDateFrom:    from,
		StudyDateTo:      to,
	}, nil
}

// newQueryCmd creates the 'query' command.
func newQueryCmd() *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query all checked servers for matching studies",
		Long: `Query every checked server, one at a time, for studies matching the
filters. A server that fails is reported and skipped; the remaining servers
are still queried.

Examples:
  rescale-qr query --patient-id 12345
  rescale-qr query --patient-name "DOE*" --date 20240101-20240131 --modality CT
  rescale-qr query --server PACS1 --server PACS2 --accession A-778`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			res, studies, err := s.query(cmd.Context(), filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printStudies(out, studies)
			printFailures(out, res)
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

// printStudies writes the numbered results table.
func printStudies(w io.Writer, studies []models.Study) {
	if len(studies) == 0 {
		fmt.Fprintln(w, "No matching studies found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPATIENT ID\tPATIENT NAME\tDATE\tMODALITIES\tDESCRIPTION\tINSTANCES\tSERVER\tSTUDY UID")
	for i, s := range studies {
		instances := "-"
		if s.NumberOfInstances > 0 {
			instances = fmt.Sprint(s.NumberOfInstances)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			dash(s.PatientID),
			dash(s.PatientName),
			dash(s.StudyDate),
			dash(strings.Join(s.ModalitiesInStudy, ",")),
			dash(s.StudyDescription),
			instances,
			s.Server,
			s.StudyInstanceUID,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d stud%s found.\n", len(studies), plural(len(studies)))
}

// printFailures lists servers whose query failed and studies reported by
// more than one server.
func printFailures(w io.Writer, res *qr.QueryResult) {
	for _, f := range res.Failures {
		fmt.Fprintf(w, "%s (%s): %v\n", f.Label(), f.Endpoint, f.Err)
	}
	if res.Index != nil {
		shared := make(map[string]bool)
		for _, c := range res.Index.Conflicts() {
			shared[c.StudyUID] = true
		}
		if n := len(shared); n > 0 {
			fmt.Fprintf(w, "%d stud%s reported by more than one server; the last server to report a study is used for retrieve.\n", n, plural(n))
		}
	}
	if res.Cancelled {
		fmt.Fprintf(w, "Query cancelled after %d of %d server(s); results are partial.\n", res.Attempted, res.Total)
	}
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
