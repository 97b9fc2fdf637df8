package qr

import (
	"context"
	"time"

	qrhttp "github.com/rescale/rescale-qr/internal/http"
	"github.com/rescale/rescale-qr/internal/logging"
	"github.com/rescale/rescale-qr/internal/models"
)

// QueryResult is the outcome of one query run.
type QueryResult struct {
	RunID string

	// Contexts holds one query context per server name; a repeated name
	// keeps the last one.
	Contexts map[string]*models.QueryContext

	// Index maps every discovered study to its owning query context.
	Index *StudyIndex

	Failures  []*ServerQueryError
	Attempted int   // Servers dispatched before the run ended
	Total     int   // Checked servers
	Rows      int64 // Staging rows after the run
	Cancelled bool
	Duration  time.Duration
}

// Succeeded returns the number of servers whose query returned normally.
func (r *QueryResult) Succeeded() int {
	return r.Attempted - len(r.Failures)
}

// QuerySession runs one query per server, in order, one at a time.
type QuerySession struct {
	querier        Querier
	callingAETitle string
	logger         *logging.Logger

	// OnFailure and OnConflict, when set, are called as each happens.
	OnFailure  func(*ServerQueryError)
	OnConflict func(OwnershipConflict)
}

// NewQuerySession returns a session using q for every server.
func NewQuerySession(q Querier, callingAETitle string, logger *logging.Logger) *QuerySession {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &QuerySession{querier: q, callingAETitle: callingAETitle, logger: logger}
}

// Run queries servers in order and loads their results into idx.
//
// Cancellation of ctx is observed only before each server; a query already
// dispatched runs to completion. A failing server is recorded in the result
// and the next server is tried. The last progress update always has Value 100.
func (s *QuerySession) Run(ctx context.Context, servers []models.Server, filters models.Filters, idx Index, sink ProgressSink) *QueryResult {
	start := time.Now()
	n := len(servers)
	res := &QueryResult{
		Contexts: make(map[string]*models.QueryContext, n),
		Index:    NewStudyIndex(),
		Total:    n,
	}
	emit := func(p models.Progress) {
		if sink != nil {
			sink(p)
		}
	}

	s.logger.Info().Int("servers", n).Str("filters", filters.String()).Msg("Starting query run")

	for i, srv := range servers {
		if ctx.Err() != nil {
			res.Cancelled = true
			s.logger.Info().Int("completed", i).Int("servers", n).Msg("Query run cancelled")
			break
		}

		qc := models.NewQueryContext(srv, s.callingAETitle, filters)
		res.Contexts[srv.Name] = qc
		res.Attempted++

		emit(models.Progress{
			ServerIndex: i,
			ServerCount: n,
			Server:      srv.Name,
			Value:       AggregateProgress(i, n, 0),
			Label:       "Querying " + srv.Name,
		})

		uids, err := s.queryOne(ctx, i, n, qc, idx, emit)
		if err != nil {
			qerr := &ServerQueryError{ServerIndex: i, Server: srv.Name, Endpoint: qc.Endpoint(), Err: err}
			res.Failures = append(res.Failures, qerr)
			s.logger.Error().
				Str("server", srv.Name).
				Str("endpoint", qc.Endpoint()).
				Str("called_ae", qc.CalledAETitle).
				Str("error_type", qrhttp.ErrorTypeName(qrhttp.ClassifyError(err))).
				Err(err).
				Msg(qerr.Label())
			if s.OnFailure != nil {
				s.OnFailure(qerr)
			}
			continue
		}

		qc.StudyUIDs = uids
		for _, uid := range uids {
			if c, conflict := res.Index.Record(uid, qc); conflict {
				s.logger.Warn().
					Str("study", uid).
					Str("previous", c.Previous).
					Str("current", c.Current).
					Msg("Study reported by more than one server; keeping the later one")
				if s.OnConflict != nil {
					s.OnConflict(c)
				}
			}
		}
		s.logger.Info().Str("server", srv.Name).Int("studies", len(uids)).Msg("Query complete")
	}

	label := "Query complete"
	if res.Cancelled {
		label = "Query cancelled"
	}
	emit(models.Progress{ServerIndex: n, ServerCount: n, Percent: 100, Value: 100, Label: label})

	res.Duration = time.Since(start)
	return res
}

// queryOne dispatches a single query with a progress subscription scoped to
// the call. The operation gets a context that is never cancelled.
func (s *QuerySession) queryOne(ctx context.Context, i, n int, qc *models.QueryContext, idx Index, emit func(models.Progress)) ([]string, error) {
	scope := newProgressScope(func(percent float64, label string) {
		emit(models.Progress{
			ServerIndex: i,
			ServerCount: n,
			Server:      qc.Server,
			Percent:     percent,
			Value:       AggregateProgress(i, n, percent),
			Label:       label,
		})
	})
	defer scope.close()

	s.logger.Debug().
		Str("server", qc.Server).
		Str("endpoint", qc.Endpoint()).
		Str("calling_ae", qc.CallingAETitle).
		Str("called_ae", qc.CalledAETitle).
		Msg("Dispatching query")

	return s.querier.Query(context.WithoutCancel(ctx), qc, idx, scope.report)
}
