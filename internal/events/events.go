// Package events carries query/retrieve notifications from the orchestrator
// to whatever renders them (CLI progress bars, logs, tests).
package events

import (
	"time"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventStateChange EventType = "state_change"

	// Query phase
	EventQueryProgress     EventType = "query_progress"     // Aggregate progress moved
	EventServerFailed      EventType = "server_failed"      // One server's query failed (isolated)
	EventOwnershipConflict EventType = "ownership_conflict" // Study reported by a second server
	EventQueryComplete     EventType = "query_complete"     // Query run finished or was cancelled

	// Retrieve phase
	EventStudyStarted     EventType = "study_started"
	EventStudyRetrieved   EventType = "study_retrieved"
	EventStudyFailed      EventType = "study_failed"
	EventRetrieveComplete EventType = "retrieve_complete"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
	RunID     string
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func newBase(t EventType, runID string) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now(), RunID: runID}
}

// StateChangeEvent represents orchestrator state transitions
type StateChangeEvent struct {
	BaseEvent
	OldState string
	NewState string
}

// QueryProgressEvent carries the aggregate progress of a query run.
type QueryProgressEvent struct {
	BaseEvent
	ServerIndex int     // Position of the server in the checked sequence
	ServerCount int     // Number of checked servers
	Server      string  // Server name
	Percent     float64 // Raw per-server progress, 0-100
	Value       float64 // Aggregate progress, 0-100
	Label       string  // Text reported by the query operation
}

// ServerFailedEvent reports an isolated per-server query failure.
type ServerFailedEvent struct {
	BaseEvent
	ServerIndex int
	Server      string
	Label       string // e.g. "Query error: PACS2"
	Error       error
}

// OwnershipConflictEvent reports that a study already owned by one server was
// reported again by another; the later server becomes the owner.
type OwnershipConflictEvent struct {
	BaseEvent
	StudyUID string
	Previous string
	Current  string
}

// QueryCompleteEvent summarizes a query run.
type QueryCompleteEvent struct {
	BaseEvent
	Servers   int // Servers attempted
	Failed    int // Servers whose query failed
	Studies   int // Distinct studies in the ownership map
	Rows      int64
	Cancelled bool
	Duration  time.Duration
}

// StudyEvent reports one study moving through the retrieve phase.
type StudyEvent struct {
	BaseEvent
	Index    int // 0-based position in the retrieve batch
	Total    int
	StudyUID string
	Server   string
	Error    error // Set for EventStudyFailed
}

// RetrieveCompleteEvent summarizes a retrieve run.
type RetrieveCompleteEvent struct {
	BaseEvent
	Retrieved    int
	NotAttempted int
	FailedStudy  string // Empty when no study failed
	Cancelled    bool
	Duration     time.Duration
}
