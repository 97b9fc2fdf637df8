package qr

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a run is requested while another is in progress.
	ErrBusy = errors.New("a query or retrieve run is already in progress")

	// ErrNoResults is returned when a retrieve is requested but the last query
	// produced no rows.
	ErrNoResults = errors.New("no query results to retrieve from")

	// ErrNoOwner marks a study that no query in the current run reported.
	ErrNoOwner = errors.New("no owning query for study")
)

// StagingStoreError means the staging store could not be opened. The query
// run is aborted before any server is contacted.
type StagingStoreError struct {
	Err error
}

func (e *StagingStoreError) Error() string {
	return fmt.Sprintf("staging store: %v", e.Err)
}

func (e *StagingStoreError) Unwrap() error { return e.Err }

// ServerQueryError is a failed query against one server. It is recorded and
// the run continues with the next server.
type ServerQueryError struct {
	ServerIndex int
	Server      string
	Endpoint    string
	Err         error
}

func (e *ServerQueryError) Error() string {
	return fmt.Sprintf("query %s (%s): %v", e.Server, e.Endpoint, e.Err)
}

func (e *ServerQueryError) Unwrap() error { return e.Err }

// Label is the short operator-facing message for this failure.
func (e *ServerQueryError) Label() string {
	return "Query error: " + e.Server
}

// StudyRetrieveError is a failed retrieve of one study. It halts the batch.
type StudyRetrieveError struct {
	Index    int // 0-based position in the batch
	StudyUID string
	Server   string // Empty when the study had no owner
	Endpoint string
	Err      error
}

func (e *StudyRetrieveError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("retrieve %s: %v", e.StudyUID, e.Err)
	}
	return fmt.Sprintf("retrieve %s from %s (%s): %v", e.StudyUID, e.Server, e.Endpoint, e.Err)
}

func (e *StudyRetrieveError) Unwrap() error { return e.Err }
