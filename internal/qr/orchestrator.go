package qr

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/events"
	"github.com/rescale/rescale-qr/internal/logging"
	"github.com/rescale/rescale-qr/internal/models"
)

// State is the orchestrator's run state.
type State int

const (
	StateIdle State = iota
	StateQuerying
	StateRetrieving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateRetrieving:
		return "retrieving"
	default:
		return "unknown"
	}
}

// Options configures an Orchestrator. Bus and Logger are optional.
type Options struct {
	Querier   Querier
	Retriever Retriever
	Servers   ServerProvider
	OpenStore StoreOpener
	Bus       *events.EventBus
	Logger    *logging.Logger
}

// Orchestrator sequences query and retrieve runs. At most one run is active
// at a time; a second request gets ErrBusy. Every run returns the
// orchestrator to StateIdle.
type Orchestrator struct {
	querier   Querier
	retriever Retriever
	servers   ServerProvider
	openStore StoreOpener
	bus       *events.EventBus
	logger    *logging.Logger

	mu        sync.Mutex
	state     State
	runID     string
	cancel    context.CancelFunc
	store     StagingStore
	lastQuery *QueryResult
}

// New returns an idle orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Bus == nil {
		opts.Bus = events.NewEventBus(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Orchestrator{
		querier:   opts.Querier,
		retriever: opts.Retriever,
		servers:   opts.Servers,
		openStore: opts.OpenStore,
		bus:       opts.Bus,
		logger:    opts.Logger,
	}
}

// Bus returns the event bus runs publish to.
func (o *Orchestrator) Bus() *events.EventBus {
	return o.bus
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// begin moves from Idle to next and returns the run context.
func (o *Orchestrator) begin(ctx context.Context, next State) (context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return nil, "", ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.state = next
	o.cancel = cancel
	o.runID = uuid.New().String()

	o.bus.PublishStateChange(o.runID, StateIdle.String(), next.String())
	return runCtx, o.runID, nil
}

// end returns to Idle.
func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.state
	o.state = StateIdle
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.bus.PublishStateChange(o.runID, prev.String(), StateIdle.String())
}

// Cancel asks the current run to stop before its next server or study.
// It is a no-op when idle.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.logger.Info().Str("run_id", o.runID).Str("state", o.state.String()).Msg("Cancellation requested")
		o.cancel()
	}
}

// RunQuery queries every checked server into a fresh staging store.
//
// The previous store is closed first. If the new store cannot be opened a
// *StagingStoreError is returned and no server is contacted. Per-server
// failures are reported in the result, not as an error.
func (o *Orchestrator) RunQuery(ctx context.Context, filters models.Filters, sink ProgressSink) (*QueryResult, error) {
	runCtx, runID, err := o.begin(ctx, StateQuerying)
	if err != nil {
		return nil, err
	}
	defer o.end()

	logger := o.logger.Child("run_id", runID)

	o.mu.Lock()
	prev := o.store
	o.store = nil
	o.lastQuery = nil
	o.mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close previous staging store")
		}
	}

	store, err := o.openStore()
	if err != nil {
		logger.Error().Err(err).Msg("Query run aborted: staging store unavailable")
		return nil, &StagingStoreError{Err: err}
	}
	o.mu.Lock()
	o.store = store
	o.mu.Unlock()

	servers := o.servers.CheckedServers()

	session := NewQuerySession(o.querier, o.servers.CallingAETitle(), logger)
	session.OnFailure = func(e *ServerQueryError) {
		o.bus.PublishServerFailed(runID, e.ServerIndex, e.Server, e)
	}
	session.OnConflict = func(c OwnershipConflict) {
		o.bus.PublishOwnershipConflict(runID, c.StudyUID, c.Previous, c.Current)
	}

	res := session.Run(runCtx, servers, filters, store, func(p models.Progress) {
		o.bus.PublishQueryProgress(runID, p.ServerIndex, p.ServerCount, p.Server, p.Percent, p.Value, p.Label)
		if sink != nil {
			sink(p)
		}
	})
	res.RunID = runID

	rows, err := store.RowCount()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to count staging rows")
	}
	res.Rows = rows

	o.mu.Lock()
	o.lastQuery = res
	o.mu.Unlock()

	o.bus.PublishQueryComplete(runID, res.Attempted, len(res.Failures), res.Index.Len(), res.Rows, res.Cancelled, res.Duration)
	logger.Info().
		Int("servers", res.Attempted).
		Int("failed", len(res.Failures)).
		Int("studies", res.Index.Len()).
		Int64("rows", res.Rows).
		Bool("cancelled", res.Cancelled).
		Dur("duration", res.Duration).
		Msg("Query run finished")

	return res, nil
}

// CanRetrieve reports whether the last query left at least one staging row.
func (o *Orchestrator) CanRetrieve() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return false
	}
	return o.hasRowsLocked()
}

func (o *Orchestrator) hasRowsLocked() bool {
	if o.store == nil || o.lastQuery == nil {
		return false
	}
	n, err := o.store.RowCount()
	return err == nil && n > 0
}

// Store returns the staging store of the last query run, or nil.
// Callers must not use it while a query run is active.
func (o *Orchestrator) Store() StagingStore {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store
}

// LastQuery returns the result of the last completed query run, or nil.
func (o *Orchestrator) LastQuery() *QueryResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastQuery
}

// RunRetrieve retrieves uids from the servers that reported them in the last
// query run, writing into dest.
//
// Returns ErrNoResults when the last query produced no rows. The first
// per-study failure halts the batch and is returned as a *StudyRetrieveError
// together with the partial result.
func (o *Orchestrator) RunRetrieve(ctx context.Context, uids []string, dest destination.Store) (*RetrieveResult, error) {
	runCtx, runID, err := o.begin(ctx, StateRetrieving)
	if err != nil {
		return nil, err
	}
	defer o.end()

	o.mu.Lock()
	ready := o.hasRowsLocked()
	last := o.lastQuery
	o.mu.Unlock()
	if !ready {
		return nil, ErrNoResults
	}

	logger := o.logger.Child("run_id", runID)
	logger.Info().Int("studies", len(uids)).Str("destination", dest.Describe()).Msg("Starting retrieve run")

	session := NewRetrieveSession(o.retriever, logger)
	res, runErr := session.Run(runCtx, uids, last.Index, o.servers.LocalStorage(), dest, func(n StudyNotice) {
		var t events.EventType
		switch n.Phase {
		case StudyStarted:
			t = events.EventStudyStarted
		case StudyRetrieved:
			t = events.EventStudyRetrieved
		default:
			t = events.EventStudyFailed
		}
		o.bus.PublishStudy(t, runID, n.Index, n.Total, n.StudyUID, n.Server, n.Err)
	})
	res.RunID = runID

	failed := ""
	if res.Failed != nil {
		failed = res.Failed.StudyUID
	}
	o.bus.PublishRetrieveComplete(runID, len(res.Retrieved), len(res.NotAttempted), failed, res.Cancelled, res.Duration)

	return res, runErr
}

// Close releases the staging store. It fails with ErrBusy during a run.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrBusy
	}
	o.lastQuery = nil
	if o.store == nil {
		return nil
	}
	err := o.store.Close()
	o.store = nil
	return err
}
