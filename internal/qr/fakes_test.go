package qr

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/models"
)

// memStore is an in-memory StagingStore.
type memStore struct {
	mu     sync.Mutex
	rows   []models.Study
	closed bool
}

func (m *memStore) Load(_ context.Context, server string, studies []models.Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range studies {
		s.Server = server
		m.rows = append(m.rows, s)
	}
	return nil
}

func (m *memStore) RowCount() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memStore) Studies(context.Context) ([]models.Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Study(nil), m.rows...), nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fakeQuerier answers from a table keyed by server name.
type fakeQuerier struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	calls   []string

	// before runs at the start of each query; after runs once it has loaded.
	before func(ctx context.Context, qc *models.QueryContext, progress ProgressFunc)
	after  func(qc *models.QueryContext)
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{results: map[string][]string{}, errs: map[string]error{}}
}

func (f *fakeQuerier) Query(ctx context.Context, qc *models.QueryContext, idx Index, progress ProgressFunc) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, qc.Server)
	f.mu.Unlock()

	if f.before != nil {
		f.before(ctx, qc, progress)
	}
	progress(10, "Connecting")
	if err := f.errs[qc.Server]; err != nil {
		return nil, err
	}
	progress(60, "Processing results")

	uids := f.results[qc.Server]
	studies := make([]models.Study, 0, len(uids))
	for _, uid := range uids {
		studies = append(studies, models.Study{StudyInstanceUID: uid})
	}
	if err := idx.Load(ctx, qc.Server, studies); err != nil {
		return nil, err
	}
	progress(100, "Query complete")

	if f.after != nil {
		f.after(qc)
	}
	return uids, nil
}

func (f *fakeQuerier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeRetriever fails for the studies in fail.
type fakeRetriever struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []*models.RetrieveContext
}

func (f *fakeRetriever) RetrieveStudy(_ context.Context, rc *models.RetrieveContext, _ destination.Store) error {
	f.mu.Lock()
	f.calls = append(f.calls, rc)
	f.mu.Unlock()
	if err := f.fail[rc.StudyUID]; err != nil {
		return err
	}
	return nil
}

func (f *fakeRetriever) UIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, rc := range f.calls {
		out = append(out, rc.StudyUID)
	}
	return out
}

type fakeServers struct {
	servers []models.Server
	calling string
	local   models.LocalStorage
}

func (f *fakeServers) CheckedServers() []models.Server   { return f.servers }
func (f *fakeServers) CallingAETitle() string            { return f.calling }
func (f *fakeServers) LocalStorage() models.LocalStorage { return f.local }

type nopDest struct{}

func (nopDest) Put(context.Context, string, io.Reader, int64) error { return nil }
func (nopDest) Describe() string                                    { return "nop" }

func servers(names ...string) []models.Server {
	out := make([]models.Server, 0, len(names))
	for i, n := range names {
		out = append(out, models.Server{
			Name:          n,
			Address:       "host-" + n,
			Port:          104 + i,
			CalledAETitle: "AE_" + n,
			Checked:       true,
		})
	}
	return out
}

var errConnRefused = errors.New("dial tcp: connection refused")
