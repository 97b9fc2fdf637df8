package progress

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/rescale/rescale-qr/internal/events"
)

// Lines reports runs as plain text lines, for logs and pipes.
// Query progress is printed when the server or label changes.
type Lines struct {
	mu        sync.Mutex
	w         io.Writer
	lastKey   string
	lastValue int
}

// NewLines returns a line reporter writing to w.
func NewLines(w io.Writer) *Lines {
	return &Lines{w: w, lastValue: -1}
}

func (l *Lines) Handle(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e := ev.(type) {
	case *events.QueryProgressEvent:
		key := e.Server + "\x00" + e.Label
		value := int(math.Floor(e.Value))
		if key == l.lastKey || value < l.lastValue {
			return
		}
		l.lastKey, l.lastValue = key, value
		fmt.Fprintf(l.w, "[%3d%%] %s: %s\n", value, e.Server, e.Label)

	case *events.ServerFailedEvent:
		fmt.Fprintf(l.w, "%s: %v\n", e.Label, e.Error)

	case *events.OwnershipConflictEvent:
		fmt.Fprintf(l.w, "Study %s reported by %s and %s; retrieving from %s\n",
			e.StudyUID, e.Previous, e.Current, e.Current)

	case *events.QueryCompleteEvent:
		fmt.Fprintln(l.w, querySummary(e))
		l.lastKey, l.lastValue = "", -1

	case *events.StudyEvent:
		switch e.Type() {
		case events.EventStudyStarted:
			fmt.Fprintf(l.w, "Retrieving [%d/%d] %s from %s\n", e.Index+1, e.Total, e.StudyUID, e.Server)
		case events.EventStudyRetrieved:
			fmt.Fprintf(l.w, "✓ %s\n", e.StudyUID)
		case events.EventStudyFailed:
			fmt.Fprintf(l.w, "✗ %s: %v\n", e.StudyUID, e.Error)
		}

	case *events.RetrieveCompleteEvent:
		fmt.Fprintln(l.w, retrieveSummary(e))
	}
}

// Wait returns immediately; lines are written synchronously.
func (l *Lines) Wait() {}

func (l *Lines) Writer() io.Writer { return l.w }

func (l *Lines) IsTerminal() bool { return false }
