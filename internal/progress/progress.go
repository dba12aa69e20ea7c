// Package progress composes percentage reports from nested, weighted
// sub-operations into one 0..100 stream.
package progress

import (
	"math"
	"sync"
	"time"
)

// epsilon absorbs float error so a finished last item reaches exactly 100.
const epsilon = 1e-9

// Sink receives progress reports. Percent is in [0, 100].
type Sink interface {
	Report(percent int, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(percent int, message string)

// Report calls f.
func (f SinkFunc) Report(percent int, message string) {
	f(percent, message)
}

// Discard drops every report.
var Discard Sink = SinkFunc(func(int, string) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Span maps a sub-operation's local 0..100 progress onto
// [offset, offset+span] of the parent, floored to an integer.
func Span(parent Sink, offset, span float64) Sink {
	parent = OrDiscard(parent)
	return SinkFunc(func(local int, message string) {
		local = clamp(local)
		overall := math.Floor(offset + float64(local)*span/100 + epsilon)
		parent.Report(clamp(int(overall)), message)
	})
}

// Item returns the sink for item index (0-based) of count equally
// weighted items: overall = floor(index*w + local*w/100), w = 100/count.
func Item(parent Sink, index, count int) Sink {
	if count <= 0 {
		return OrDiscard(parent)
	}
	weight := 100 / float64(count)
	return Span(parent, float64(index)*weight, weight)
}

// Stages splits a parent sink into sequential stages with the given
// relative weights. Stage i starts where stage i-1 ends.
func Stages(parent Sink, weights ...float64) []Sink {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	out := make([]Sink, len(weights))
	if total <= 0 {
		for i := range out {
			out[i] = OrDiscard(parent)
		}
		return out
	}

	offset := 0.0
	for i, w := range weights {
		span := w * 100 / total
		out[i] = Span(parent, offset, span)
		offset += span
	}
	return out
}

// Monotonic wraps s so reported percentages never decrease. Messages are
// still forwarded when the percentage is clamped.
func Monotonic(s Sink) Sink {
	return &monotonic{next: OrDiscard(s)}
}

type monotonic struct {
	mu   sync.Mutex
	last int
	next Sink
}

func (m *monotonic) Report(percent int, message string) {
	m.mu.Lock()
	percent = clamp(percent)
	if percent < m.last {
		percent = m.last
	}
	m.last = percent
	m.mu.Unlock()
	m.next.Report(percent, message)
}

// Throttle forwards byte-level progress to a sink when the interval has
// elapsed and the percentage changed. Completion is always forwarded once.
type Throttle struct {
	sink     Sink
	interval time.Duration
	now      func() time.Time
	message  string

	mu          sync.Mutex
	lastPercent int
	lastEmit    time.Time
}

// NewThrottle builds a Throttle. A zero interval forwards every change.
func NewThrottle(sink Sink, interval time.Duration, message string) *Throttle {
	return &Throttle{
		sink:        OrDiscard(sink),
		interval:    interval,
		now:         time.Now,
		message:     message,
		lastPercent: -1,
	}
}

// Update reports done of total bytes.
func (t *Throttle) Update(done, total int64) {
	percent := 0
	if total > 0 {
		percent = clamp(int(done * 100 / total))
	}

	t.mu.Lock()
	now := t.now()
	complete := total > 0 && done >= total
	due := t.lastEmit.IsZero() || now.Sub(t.lastEmit) >= t.interval
	if !complete && (percent == t.lastPercent || !due) {
		t.mu.Unlock()
		return
	}
	if complete && t.lastPercent == 100 {
		t.mu.Unlock()
		return
	}
	t.lastPercent = percent
	t.lastEmit = now
	t.mu.Unlock()

	t.sink.Report(percent, t.message)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
