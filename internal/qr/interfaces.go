// Package qr coordinates federated query/retrieve runs.
//
// A QuerySession asks every checked server for matching studies, one server
// at a time, and records which server owns each study. A RetrieveSession then
// pulls the selected studies from their owners into a destination store. The
// Orchestrator sequences the two, owns the per-run staging store and reports
// to observers through the event bus.
//
// The protocol, staging and configuration collaborators are interfaces;
// concrete adapters live in internal/dicomweb, internal/staging and
// internal/config.
package qr

import (
	"context"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/models"
)

// ProgressFunc receives incremental progress from a single query operation.
// percent is in the range 0-100.
type ProgressFunc func(percent float64, label string)

// ProgressSink receives aggregate progress for a whole query run.
type ProgressSink func(models.Progress)

// Index is the staging index a query operation loads its results into.
type Index interface {
	Load(ctx context.Context, server string, studies []models.Study) error
	RowCount() (int64, error)
}

// StagingStore is an Index owned by one query run.
type StagingStore interface {
	Index
	Studies(ctx context.Context) ([]models.Study, error)
	Close() error
}

// StoreOpener opens a fresh staging store.
type StoreOpener func() (StagingStore, error)

// Querier runs one study-level query against one server. It loads matching
// studies into idx and returns their study instance UIDs.
type Querier interface {
	Query(ctx context.Context, qc *models.QueryContext, idx Index, progress ProgressFunc) ([]string, error)
}

// Retriever pulls one study from a server into dest.
type Retriever interface {
	RetrieveStudy(ctx context.Context, rc *models.RetrieveContext, dest destination.Store) error
}

// ServerProvider supplies the servers to query and the calling-side parameters.
type ServerProvider interface {
	CheckedServers() []models.Server
	CallingAETitle() string
	LocalStorage() models.LocalStorage
}
