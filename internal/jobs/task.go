package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"audio-workbench/internal/progress"
)

// ErrCancelled marks the completion of a task stopped by Cancel.
var ErrCancelled = errors.New("task cancelled")

// UpdateKind distinguishes task updates.
type UpdateKind string

const (
	UpdateProgress UpdateKind = "progress"
	UpdateLog      UpdateKind = "log"
)

// Update is one progress or log message from a task body.
type Update struct {
	Kind    UpdateKind
	Percent int
	Level   string
	Message string
}

// Completion is delivered exactly once when a task body returns.
type Completion struct {
	Success   bool
	Cancelled bool
	// Result is the body's return value, partial when cancelled or failed.
	Result any
	Err    error
}

// Reporter is handed to a task body for progress and log output.
type Reporter interface {
	progress.Sink
	Log(level, message string)
}

// Body is the work run on a task goroutine. It must observe ctx at each
// suspension point.
type Body func(ctx context.Context, r Reporter) (any, error)

// Handle controls one spawned task.
type Handle struct {
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan Update
	done    chan struct{}

	once       sync.Once
	completion Completion
}

// Spawn runs body on its own goroutine. Progress updates are dropped when
// the buffer is full; log updates wait for the consumer, so Updates must be
// drained until it is closed.
func Spawn(parent context.Context, buffer int, body Body) *Handle {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Update, buffer),
		done:    make(chan struct{}),
	}
	go h.run(body)
	return h
}

// Cancel requests cooperative cancellation.
func (h *Handle) Cancel() {
	h.cancel()
}

// Updates returns the update stream. It is closed before Done fires.
func (h *Handle) Updates() <-chan Update {
	return h.updates
}

// Done is closed once the completion is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Completion returns the task outcome; it is valid after Done is closed.
func (h *Handle) Completion() Completion {
	<-h.done
	return h.completion
}

// Wait blocks until the task completes and returns its outcome.
func (h *Handle) Wait() Completion {
	return h.Completion()
}

// run executes body and publishes the single completion.
func (h *Handle) run(body Body) {
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		result, err = body(h.ctx, &reporter{h: h})
	}()
	h.finish(result, err)
}

// finish records the completion exactly once.
func (h *Handle) finish(result any, err error) {
	h.once.Do(func() {
		c := Completion{Result: result}
		switch {
		case err == nil:
			c.Success = true
		case errors.Is(err, context.Canceled) || h.ctx.Err() != nil:
			c.Cancelled = true
			c.Err = ErrCancelled
		default:
			c.Err = err
		}
		h.completion = c
		h.cancel()
		close(h.updates)
		close(h.done)
	})
}

// reporter forwards body output into the update channel.
type reporter struct {
	h *Handle
}

// Report sends a progress update without blocking.
func (r *reporter) Report(percent int, message string) {
	select {
	case r.h.updates <- Update{Kind: UpdateProgress, Percent: percent, Message: message}:
	default:
	}
}

// Log sends a log update, giving up if the task is cancelled.
func (r *reporter) Log(level, message string) {
	select {
	case r.h.updates <- Update{Kind: UpdateLog, Level: level, Message: message}:
	case <-r.h.ctx.Done():
		select {
		case r.h.updates <- Update{Kind: UpdateLog, Level: level, Message: message}:
		default:
		}
	}
}
