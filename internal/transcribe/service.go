package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"audio-workbench/internal/poll"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/retry"
)

// Options configures the submit retry and the status polling.
type Options struct {
	SubmitAttempts       int
	SubmitBaseDelay      time.Duration
	PollInterval         time.Duration
	MaxWait              time.Duration
	MaxConsecutiveErrors int
}

// DefaultOptions returns 3 submit attempts, 5s polling, a 30 minute cap and
// 3 tolerated consecutive query errors.
func DefaultOptions() Options {
	return Options{
		SubmitAttempts:       3,
		SubmitBaseDelay:      retry.DefaultBaseDelay,
		PollInterval:         5 * time.Second,
		MaxWait:              30 * time.Minute,
		MaxConsecutiveErrors: 3,
	}
}

// remote is the service surface used by Service.
type remote interface {
	Submit(ctx context.Context, audioURL, format string) (Task, error)
	Query(ctx context.Context, task Task) (QueryResult, error)
}

// Service transcribes one audio URL end to end.
type Service struct {
	remote remote
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewService builds a service over a remote client.
func NewService(r remote, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		remote: r,
		opts:   opts,
		logger: logger.With("component", "transcribe"),
		now:    time.Now,
		sleep:  retry.Sleep,
	}
}

// Transcribe submits audioURL, polls until the task completes, and returns
// the decoded transcript. Progress goes 0 -> 5 on submission, 5..95 while
// waiting, 95 on completion.
func (s *Service) Transcribe(ctx context.Context, audioURL string, sink progress.Sink) (Transcript, error) {
	sink = progress.OrDiscard(sink)
	sink.Report(0, "preparing transcription task")

	task, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: s.opts.SubmitAttempts,
		BaseDelay:   s.opts.SubmitBaseDelay,
		Sleep:       s.sleep,
		OnRetry: func(attempt int, delay time.Duration, cause error) {
			s.logger.Warn("submit failed, retrying", "attempt", attempt, "delay", delay, "error", cause)
			sink.Report(0, fmt.Sprintf("submission failed, retry %d in %s", attempt-1, delay))
		},
	}, func(ctx context.Context, attempt int) (Task, error) {
		return s.remote.Submit(ctx, audioURL, "")
	})
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	s.logger.Info("task submitted", "task_id", task.ID, "log_id", task.LogID)
	sink.Report(5, "task submitted, waiting for processing")

	res := poll.Until(ctx, poll.Policy{
		Interval:             s.opts.PollInterval,
		MaxWait:              s.opts.MaxWait,
		MaxConsecutiveErrors: s.opts.MaxConsecutiveErrors,
		Now:                  s.now,
		Sleep:                s.sleep,
		OnTick: func(st poll.State) {
			sink.Report(poll.Percent(st.Elapsed, st.MaxWait),
				fmt.Sprintf("transcribing, waited %ds", int(st.Elapsed.Seconds())))
		},
		OnError: func(err error, consecutive int) {
			s.logger.Warn("status query failed", "task_id", task.ID, "consecutive", consecutive, "error", err)
		},
	}, func(ctx context.Context) (poll.Tick[Transcript], error) {
		return s.classify(ctx, task)
	})

	switch res.Outcome {
	case poll.OutcomeDone:
		s.logger.Info("transcription complete", "task_id", task.ID, "duration_ms", res.Value.DurationMS())
		sink.Report(95, "transcription complete")
		return res.Value, nil
	case poll.OutcomeFailed:
		return Transcript{}, res.Err
	case poll.OutcomeTimeout:
		return Transcript{}, fmt.Errorf("%w after %s", ErrTimeout, s.opts.MaxWait)
	case poll.OutcomeErrorsExhausted:
		return Transcript{}, fmt.Errorf("%w: %w", ErrPollErrorsExhausted, res.Err)
	default:
		if res.Err != nil {
			return Transcript{}, res.Err
		}
		return Transcript{}, context.Canceled
	}
}

// classify maps one query onto a poll tick.
func (s *Service) classify(ctx context.Context, task Task) (poll.Tick[Transcript], error) {
	qr, err := s.remote.Query(ctx, task)
	if err != nil {
		return poll.Tick[Transcript]{}, err
	}
	switch qr.Code {
	case StatusComplete:
		t, err := decodeTranscript(qr.Body)
		if err != nil {
			return poll.Tick[Transcript]{Status: poll.Failed, Err: err}, nil
		}
		return poll.Tick[Transcript]{Status: poll.Complete, Value: t}, nil
	case StatusProcessing, StatusQueued:
		return poll.Tick[Transcript]{Status: poll.InProgress}, nil
	default:
		return poll.Tick[Transcript]{
			Status: poll.Failed,
			Err:    &StatusError{Step: "query", Code: qr.Code, Message: qr.Message},
		}, nil
	}
}
