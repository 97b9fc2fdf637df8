package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/rescale-qr/internal/constants"
)

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for a full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes ch from every event type and from the all-events list.
// The channel is closed so a ranging reader terminates.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				close(subCh)
				return
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			close(subCh)
			return
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// PublishStateChange is a convenience method for publishing state change events
func (eb *EventBus) PublishStateChange(runID, oldState, newState string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: newBase(EventStateChange, runID),
		OldState:  oldState,
		NewState:  newState,
	})
}

// PublishQueryProgress publishes an aggregate progress update.
func (eb *EventBus) PublishQueryProgress(runID string, serverIndex, serverCount int, server string, percent, value float64, label string) {
	eb.Publish(&QueryProgressEvent{
		BaseEvent:   newBase(EventQueryProgress, runID),
		ServerIndex: serverIndex,
		ServerCount: serverCount,
		Server:      server,
		Percent:     percent,
		Value:       value,
		Label:       label,
	})
}

// PublishServerFailed publishes an isolated server failure.
func (eb *EventBus) PublishServerFailed(runID string, serverIndex int, server string, err error) {
	eb.Publish(&ServerFailedEvent{
		BaseEvent:   newBase(EventServerFailed, runID),
		ServerIndex: serverIndex,
		Server:      server,
		Label:       "Query error: " + server,
		Error:       err,
	})
}

// PublishOwnershipConflict publishes a study ownership change.
func (eb *EventBus) PublishOwnershipConflict(runID, studyUID, previous, current string) {
	eb.Publish(&OwnershipConflictEvent{
		BaseEvent: newBase(EventOwnershipConflict, runID),
		StudyUID:  studyUID,
		Previous:  previous,
		Current:   current,
	})
}

// PublishStudy publishes a retrieve-phase study event of the given type.
func (eb *EventBus) PublishStudy(eventType EventType, runID string, index, total int, studyUID, server string, err error) {
	eb.Publish(&StudyEvent{
		BaseEvent: newBase(eventType, runID),
		Index:     index,
		Total:     total,
		StudyUID:  studyUID,
		Server:    server,
		Error:     err,
	})
}

// PublishQueryComplete publishes the summary of a query run.
func (eb *EventBus) PublishQueryComplete(runID string, servers, failed, studies int, rows int64, cancelled bool, d time.Duration) {
	eb.Publish(&QueryCompleteEvent{
		BaseEvent: newBase(EventQueryComplete, runID),
		Servers:   servers,
		Failed:    failed,
		Studies:   studies,
		Rows:      rows,
		Cancelled: cancelled,
		Duration:  d,
	})
}

// PublishRetrieveComplete publishes the summary of a retrieve run.
func (eb *EventBus) PublishRetrieveComplete(runID string, retrieved, notAttempted int, failedStudy string, cancelled bool, d time.Duration) {
	eb.Publish(&RetrieveCompleteEvent{
		BaseEvent:    newBase(EventRetrieveComplete, runID),
		Retrieved:    retrieved,
		NotAttempted: notAttempted,
		FailedStudy:  failedStudy,
		Cancelled:    cancelled,
		Duration:     d,
	})
}
