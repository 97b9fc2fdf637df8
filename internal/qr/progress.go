package qr

import (
	"sync"

	"github.com/rescale/rescale-qr/internal/constants"
)

// AggregateProgress maps one server's raw percent onto the whole run.
//
// Each of serverCount servers gets an equal weight of 100/serverCount. The
// raw percent is divided by 101 so a server reporting 100 stays strictly
// below the next server's starting value.
func AggregateProgress(serverIndex, serverCount int, percent float64) float64 {
	if serverCount <= 0 {
		return 100
	}
	weight := 100.0 / float64(serverCount)
	return (float64(serverIndex) + clampPercent(percent)/constants.ProgressPercentDivisor) * weight
}

func clampPercent(p float64) float64 {
	switch {
	case p != p, p < 0: // NaN or negative
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// progressScope forwards one operation's progress callbacks until closed.
// Reports that arrive after close, e.g. from a goroutine the operation left
// behind, are dropped. Percent never moves backwards within a scope.
type progressScope struct {
	mu     sync.Mutex
	closed bool
	high   float64
	emit   func(percent float64, label string)
}

func newProgressScope(emit func(percent float64, label string)) *progressScope {
	return &progressScope{emit: emit}
}

func (p *progressScope) report(percent float64, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	percent = clampPercent(percent)
	if percent < p.high {
		percent = p.high
	}
	p.high = percent
	p.emit(percent, label)
}

func (p *progressScope) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
