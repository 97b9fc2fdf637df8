// Package progress renders query/retrieve runs for a human: a single
// aggregate bar while servers are queried, one bar per study while studies
// are retrieved, or plain lines when the output is not a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/rescale/rescale-qr/internal/events"
)

// Reporter renders run events.
type Reporter interface {
	// Handle renders one event. Calls arrive from a single goroutine.
	Handle(ev events.Event)

	// Wait blocks until all bars of the current run have been drawn.
	Wait()

	// Writer returns an io.Writer that prints above any active bars.
	Writer() io.Writer

	// IsTerminal returns true if progress bars are active
	IsTerminal() bool
}

// New returns a bar reporter when out is a terminal and a line reporter otherwise.
func New(out *os.File) Reporter {
	if term.IsTerminal(int(out.Fd())) {
		enableANSI(out)
		return NewTerminal(out)
	}
	return NewLines(out)
}

// Follow feeds every event published on bus to r until the returned stop
// function is called. stop delivers events already published before it
// returns.
func Follow(bus *events.EventBus, r Reporter) (stop func()) {
	ch := bus.SubscribeAll()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			r.Handle(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			bus.Unsubscribe(ch)
			<-done
		})
	}
}

func querySummary(e *events.QueryCompleteEvent) string {
	verb := "Query complete"
	if e.Cancelled {
		verb = "Query cancelled"
	}
	return fmt.Sprintf("%s: %d server(s), %d failed, %d stud%s (%d rows) in %s",
		verb, e.Servers, e.Failed, e.Studies, plural(e.Studies, "y", "ies"), e.Rows, e.Duration.Round(time.Millisecond))
}

func retrieveSummary(e *events.RetrieveCompleteEvent) string {
	var b strings.Builder
	switch {
	case e.Cancelled:
		b.WriteString("Retrieve cancelled")
	case e.FailedStudy != "":
		b.WriteString("Retrieve halted")
	default:
		b.WriteString("Retrieve complete")
	}
	fmt.Fprintf(&b, ": %d retrieved", e.Retrieved)
	if e.FailedStudy != "" {
		fmt.Fprintf(&b, ", failed on %s", e.FailedStudy)
	}
	if e.NotAttempted > 0 {
		fmt.Fprintf(&b, ", %d not attempted", e.NotAttempted)
	}
	fmt.Fprintf(&b, " in %s", e.Duration.Round(time.Millisecond))
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// truncateUID shortens long UIDs for bar labels, keeping the tail.
// Example: truncateUID("1.2.840.113619.2.55.3.604688", 16) → "…55.3.604688"
func truncateUID(uid string, max int) string {
	if len(uid) <= max || max < 2 {
		return uid
	}
	return "…" + uid[len(uid)-(max-1):]
}
