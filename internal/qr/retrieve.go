package qr

import (
	"context"
	"errors"
	"time"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/logging"
	"github.com/rescale/rescale-qr/internal/models"
)

// StudyPhase is the stage of one study in a retrieve batch.
type StudyPhase int

const (
	StudyStarted StudyPhase = iota
	StudyRetrieved
	StudyFailed
)

func (p StudyPhase) String() string {
	switch p {
	case StudyStarted:
		return "started"
	case StudyRetrieved:
		return "retrieved"
	case StudyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StudyNotice reports one study moving through a retrieve batch.
type StudyNotice struct {
	Index    int
	Total    int
	StudyUID string
	Server   string
	Phase    StudyPhase
	Err      error // Set for StudyFailed
}

// StudyNotifyFunc receives per-study notices.
type StudyNotifyFunc func(StudyNotice)

// RetrieveResult is the outcome of one retrieve run.
type RetrieveResult struct {
	RunID        string
	Retrieved    []string
	Failed       *StudyRetrieveError
	NotAttempted []string
	Cancelled    bool
	Duration     time.Duration
}

// RetrieveSession retrieves studies one at a time from their owners.
type RetrieveSession struct {
	retriever Retriever
	logger    *logging.Logger
}

// NewRetrieveSession returns a session dispatching through r.
func NewRetrieveSession(r Retriever, logger *logging.Logger) *RetrieveSession {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RetrieveSession{retriever: r, logger: logger}
}

// Run retrieves uids in order. Each study is pulled from the server that owns
// it in owners, using local for the move destination and calling port.
// Repeated UIDs are retrieved once, at their first position.
//
// The first failure stops the batch and is returned as a *StudyRetrieveError;
// a UID with no owner counts as a failure. Cancellation of ctx is observed
// before each study and is not an error.
func (s *RetrieveSession) Run(ctx context.Context, uids []string, owners *StudyIndex, local models.LocalStorage, dest destination.Store, notify StudyNotifyFunc) (*RetrieveResult, error) {
	start := time.Now()
	res := &RetrieveResult{}
	uids = distinct(uids)
	total := len(uids)
	if notify == nil {
		notify = func(StudyNotice) {}
	}

	defer func() { res.Duration = time.Since(start) }()

	for i, uid := range uids {
		if ctx.Err() != nil {
			res.Cancelled = true
			res.NotAttempted = append(res.NotAttempted, uids[i:]...)
			s.logger.Info().Int("retrieved", len(res.Retrieved)).Int("remaining", total-i).Msg("Retrieve run cancelled")
			return res, nil
		}

		owner, ok := owners.Owner(uid)
		if !ok {
			rerr := &StudyRetrieveError{Index: i, StudyUID: uid, Err: ErrNoOwner}
			s.fail(res, rerr, uids[i+1:], total, notify)
			return res, rerr
		}

		rc := models.NewRetrieveContext(uid, owner, local)
		notify(StudyNotice{Index: i, Total: total, StudyUID: uid, Server: rc.Server, Phase: StudyStarted})
		s.logger.Info().
			Str("study", uid).
			Str("server", rc.Server).
			Str("calling_ae", rc.CallingAETitle).
			Str("called_ae", rc.CalledAETitle).
			Str("move_destination", rc.MoveDestinationAETitle).
			Int("calling_port", rc.CallingPort).
			Msgf("need to retrieve %s from %s", uid, rc.Host)

		if err := s.retrieveOne(ctx, rc, dest); err != nil {
			rerr := &StudyRetrieveError{Index: i, StudyUID: uid, Server: rc.Server, Endpoint: rc.Endpoint(), Err: err}
			s.fail(res, rerr, uids[i+1:], total, notify)
			return res, rerr
		}

		res.Retrieved = append(res.Retrieved, uid)
		notify(StudyNotice{Index: i, Total: total, StudyUID: uid, Server: rc.Server, Phase: StudyRetrieved})
	}

	s.logger.Info().Int("studies", len(res.Retrieved)).Msg("Retrieve run complete")
	return res, nil
}

// distinct returns uids without repeats, keeping first-seen order.
func distinct(uids []string) []string {
	seen := make(map[string]bool, len(uids))
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	return out
}

// retrieveOne runs the retrieve with a context that is never cancelled, so a
// study is either fully attempted or not attempted at all.
func (s *RetrieveSession) retrieveOne(ctx context.Context, rc *models.RetrieveContext, dest destination.Store) error {
	return s.retriever.RetrieveStudy(context.WithoutCancel(ctx), rc, dest)
}

func (s *RetrieveSession) fail(res *RetrieveResult, rerr *StudyRetrieveError, rest []string, total int, notify StudyNotifyFunc) {
	res.Failed = rerr
	res.NotAttempted = append(res.NotAttempted, rest...)

	ev := s.logger.Error().Str("study", rerr.StudyUID).Int("not_attempted", len(rest))
	if rerr.Server != "" {
		ev = ev.Str("server", rerr.Server)
	}
	if errors.Is(rerr.Err, ErrNoOwner) {
		ev.Msg("Retrieve halted: study was not reported by any server")
	} else {
		ev.Err(rerr.Err).Msg("Retrieve halted: study failed")
	}

	notify(StudyNotice{Index: rerr.Index, Total: total, StudyUID: rerr.StudyUID, Server: rerr.Server, Phase: StudyFailed, Err: rerr})
}
