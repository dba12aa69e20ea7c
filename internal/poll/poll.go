// Package poll drives a remote job to completion by repeated queries, with
// a wall-clock deadline and a cap on consecutive transient errors.
package poll

import (
	"context"
	"time"

	"audio-workbench/internal/retry"
)

// Status classifies one successful query.
type Status int

const (
	// InProgress means the remote job is queued or still processing.
	InProgress Status = iota
	// Complete means the remote job finished and Tick.Value holds the payload.
	Complete
	// Failed means the remote job reached a terminal non-success state.
	Failed
)

// Tick is the classified answer of one query.
type Tick[T any] struct {
	Status Status
	Value  T
	// Err describes a Failed tick.
	Err error
}

// Outcome is the terminal result of Until.
type Outcome string

const (
	OutcomeDone            Outcome = "done"
	OutcomeFailed          Outcome = "failed"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeErrorsExhausted Outcome = "errors_exhausted"
	OutcomeCancelled       Outcome = "cancelled"
)

// State is a snapshot passed to Policy.OnTick after an in-progress query.
type State struct {
	Elapsed              time.Duration
	MaxWait              time.Duration
	Interval             time.Duration
	Queries              int
	ConsecutiveErrors    int
	MaxConsecutiveErrors int
}

// Policy configures Until. State is scoped to a single call.
type Policy struct {
	Interval             time.Duration
	MaxWait              time.Duration
	MaxConsecutiveErrors int
	OnTick               func(State)
	// OnError is called for each transient query error.
	OnError func(err error, consecutive int)
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Result carries the outcome, the payload on success and the cause otherwise.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
	Elapsed time.Duration
	Queries int
}

// Until queries until the job completes, fails, the deadline passes, or
// MaxConsecutiveErrors transient errors occur in a row. An in-progress
// answer resets the consecutive error count.
func Until[T any](ctx context.Context, p Policy, query func(ctx context.Context) (Tick[T], error)) Result[T] {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	maxErrors := p.MaxConsecutiveErrors
	if maxErrors < 1 {
		maxErrors = 1
	}

	start := now()
	state := State{
		MaxWait:              p.MaxWait,
		Interval:             p.Interval,
		MaxConsecutiveErrors: maxErrors,
	}
	var lastErr error

	for {
		state.Elapsed = now().Sub(start)
		if err := ctx.Err(); err != nil {
			return Result[T]{Outcome: OutcomeCancelled, Err: err, Elapsed: state.Elapsed, Queries: state.Queries}
		}
		if p.MaxWait > 0 && state.Elapsed >= p.MaxWait {
			return Result[T]{Outcome: OutcomeTimeout, Err: lastErr, Elapsed: state.Elapsed, Queries: state.Queries}
		}

		state.Queries++
		tick, err := query(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Result[T]{Outcome: OutcomeCancelled, Err: ctx.Err(), Elapsed: now().Sub(start), Queries: state.Queries}
			}
			lastErr = err
			state.ConsecutiveErrors++
			if p.OnError != nil {
				p.OnError(err, state.ConsecutiveErrors)
			}
			if state.ConsecutiveErrors >= maxErrors {
				return Result[T]{Outcome: OutcomeErrorsExhausted, Err: err, Elapsed: now().Sub(start), Queries: state.Queries}
			}
		case tick.Status == Complete:
			return Result[T]{Outcome: OutcomeDone, Value: tick.Value, Elapsed: now().Sub(start), Queries: state.Queries}
		case tick.Status == Failed:
			return Result[T]{Outcome: OutcomeFailed, Value: tick.Value, Err: tick.Err, Elapsed: now().Sub(start), Queries: state.Queries}
		default:
			state.ConsecutiveErrors = 0
			lastErr = nil
			if p.OnTick != nil {
				state.Elapsed = now().Sub(start)
				p.OnTick(state)
			}
		}

		if err := sleep(ctx, p.Interval); err != nil {
			return Result[T]{Outcome: OutcomeCancelled, Err: err, Elapsed: now().Sub(start), Queries: state.Queries}
		}
	}
}

// Percent maps elapsed wait onto the 5..95 band used while a remote job is
// pending: min(95, 5 + floor(90*elapsed/maxWait)).
func Percent(elapsed, maxWait time.Duration) int {
	if maxWait <= 0 {
		return 5
	}
	p := 5 + int(90*elapsed/maxWait)
	if p > 95 {
		return 95
	}
	if p < 5 {
		return 5
	}
	return p
}
