package progress

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rescale/rescale-qr/internal/events"
)

// Terminal draws an aggregate query bar with progressbar and per-study
// retrieve bars with mpb.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	queryBar *progressbar.ProgressBar

	retrieve *mpb.Progress
	overall  *mpb.Bar
	study    *mpb.Bar
}

// NewTerminal returns a bar reporter drawing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Handle(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *events.QueryProgressEvent:
		t.queryProgress(e)

	case *events.ServerFailedEvent:
		t.printf("✗ %s: %v\n", e.Label, e.Error)

	case *events.OwnershipConflictEvent:
		t.printf("! %s reported by %s and %s; retrieving from %s\n",
			truncateUID(e.StudyUID, 32), e.Previous, e.Current, e.Current)

	case *events.QueryCompleteEvent:
		if t.queryBar != nil {
			_ = t.queryBar.Finish()
			t.queryBar = nil
		}
		t.printf("%s\n", querySummary(e))

	case *events.StudyEvent:
		t.studyEvent(e)

	case *events.RetrieveCompleteEvent:
		if t.overall != nil && !t.overall.Completed() {
			t.overall.Abort(false)
		}
		if t.study != nil {
			t.study.Abort(false)
			t.study = nil
		}
		t.printf("%s\n", retrieveSummary(e))
	}
}

func (t *Terminal) queryProgress(e *events.QueryProgressEvent) {
	if t.queryBar == nil {
		t.queryBar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(t.out, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	label := fmt.Sprintf("[%d/%d] %s: %s", e.ServerIndex+1, e.ServerCount, e.Server, e.Label)
	t.queryBar.Describe(label)
	if v := int(math.Floor(e.Value)); v < 100 {
		_ = t.queryBar.Set(v)
	}
}

func (t *Terminal) studyEvent(e *events.StudyEvent) {
	switch e.Type() {
	case events.EventStudyStarted:
		if t.retrieve == nil {
			t.retrieve = mpb.New(
				mpb.WithOutput(t.out),
				mpb.WithRefreshRate(300*time.Millisecond),
				mpb.WithWidth(60),
			)
			t.overall = t.retrieve.New(int64(e.Total),
				mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
				mpb.PrependDecorators(decor.Name("Studies", decor.WCSyncSpaceR)),
				mpb.AppendDecorators(
					decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
					decor.Name("  "),
					decor.Elapsed(decor.ET_STYLE_GO),
				),
			)
		}
		label := fmt.Sprintf("[%d/%d] %s ← %s", e.Index+1, e.Total, truncateUID(e.StudyUID, 32), e.Server)
		t.study = t.retrieve.New(1,
			mpb.SpinnerStyle(),
			mpb.PrependDecorators(decor.Name(label, decor.WCSyncSpaceR)),
			mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
			mpb.BarRemoveOnComplete(),
		)

	case events.EventStudyRetrieved:
		if t.study != nil {
			t.study.SetCurrent(1)
			t.study = nil
		}
		if t.overall != nil {
			t.overall.Increment()
		}
		t.printf("✓ %s\n", e.StudyUID)

	case events.EventStudyFailed:
		if t.study != nil {
			t.study.Abort(false)
			t.study = nil
		}
		t.printf("✗ %s: %v\n", e.StudyUID, e.Error)
	}
}

// printf writes above the retrieve bars when they are active.
func (t *Terminal) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.writerLocked(), format, args...)
}

func (t *Terminal) writerLocked() io.Writer {
	if t.retrieve != nil {
		return t.retrieve
	}
	return t.out
}

// Wait blocks until the retrieve bars have finished rendering and resets
// the reporter for the next run. Bars still running are aborted, so Wait
// returns even when the run-complete event never arrived.
func (t *Terminal) Wait() {
	t.mu.Lock()
	p := t.retrieve
	for _, b := range []*mpb.Bar{t.study, t.overall} {
		if b != nil && !b.Completed() {
			b.Abort(false)
		}
	}
	t.retrieve, t.overall, t.study = nil, nil, nil
	t.mu.Unlock()

	if p != nil {
		p.Wait()
	}
}

func (t *Terminal) Writer() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writerLocked()
}

func (t *Terminal) IsTerminal() bool { return true }
