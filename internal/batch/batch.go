// Package batch runs a per-item pipeline over an ordered work list,
// containing item failures and aggregating outcomes into one report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/progress"
)

// ErrEmptyWorkList is returned when Run is called without items.
var ErrEmptyWorkList = errors.New("empty work list")

// Outcome is what an item pipeline reports. Success false marks the item
// failed; returning an error instead marks it error.
type Outcome struct {
	Success    bool
	Message    string
	Outputs    map[string]string
	DurationMS int64
	Text       string
}

// ItemFunc processes one item, reporting local 0..100 progress to sink.
type ItemFunc func(ctx context.Context, item domain.WorkItem, sink progress.Sink) (Outcome, error)

// SummaryFunc renders batch-level artifacts and returns their paths. It
// may fill SummaryPath and ResultsPath on the result it is given.
type SummaryFunc func(result *domain.BatchResult) error

// Options configures Run.
type Options struct {
	Lane      domain.Lane
	OutputDir string
	Summarize SummaryFunc
	// OnItem receives a copy of each item when it starts and finishes.
	OnItem func(index int, item domain.WorkItem)
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Run processes items strictly in order. Per-item errors and panics are
// recorded on the item and never stop the batch. Cancellation is checked
// between items; items not started stay pending and Run returns the
// partial result with ctx.Err().
func Run(ctx context.Context, items []domain.WorkItem, fn ItemFunc, opts Options, sink progress.Sink) (domain.BatchResult, error) {
	if len(items) == 0 {
		return domain.BatchResult{}, ErrEmptyWorkList
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return domain.BatchResult{}, fmt.Errorf("create output directory %s: %w", opts.OutputDir, err)
		}
	}

	result := domain.BatchResult{
		ID:        newID(),
		Lane:      opts.Lane,
		StartedAt: now(),
		OutputDir: opts.OutputDir,
		Items:     make([]domain.WorkItem, len(items)),
	}
	for i, item := range items {
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s-%d", result.ID, i+1)
		}
		item.Status = domain.ItemStatusPending
		result.Items[i] = item
	}

	logger = logger.With("batch_id", result.ID, "lane", opts.Lane)
	overall := progress.Monotonic(sink)
	total := len(items)
	cancelled := false

	for i := range result.Items {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		item := &result.Items[i]
		item.Status = domain.ItemStatusRunning
		item.StartedAt = now()
		notify(opts.OnItem, i, *item)

		itemSink := progress.Item(overall, i, total)
		prefix := fmt.Sprintf("[%d/%d] ", i+1, total)
		itemSink.Report(0, prefix+"starting "+item.Name)
		logger.Info("item started", "index", i+1, "total", total, "name", item.Name)

		out, err := runItem(ctx, fn, *item, progress.SinkFunc(func(p int, msg string) {
			itemSink.Report(p, prefix+msg)
		}))
		item.FinishedAt = now()
		applyOutcome(item, out, err)
		if item.Status == domain.ItemStatusSuccess {
			itemSink.Report(100, prefix+"finished "+item.Name)
		}

		logger.Info("item finished", "index", i+1, "name", item.Name, "status", item.Status, "message", item.Message)
		notify(opts.OnItem, i, *item)
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	result.SuccessCount, result.FailCount = count(result.Items)
	switch {
	case cancelled:
		result.Status = domain.BatchStatusCancelled
	case result.SuccessCount == total:
		result.Status = domain.BatchStatusSuccess
	case result.SuccessCount == 0:
		result.Status = domain.BatchStatusFailed
	default:
		result.Status = domain.BatchStatusPartial
	}

	result.FinishedAt = now()
	if !cancelled && opts.Summarize != nil {
		if err := summarize(opts.Summarize, &result); err != nil {
			logger.Error("summary failed", "error", err)
			result.SummaryError = err.Error()
		}
	}

	if cancelled {
		logger.Info("batch cancelled", "succeeded", result.SuccessCount, "failed", result.FailCount)
		return result, ctx.Err()
	}
	overall.Report(100, fmt.Sprintf("batch complete: %d succeeded, %d failed", result.SuccessCount, result.FailCount))
	logger.Info("batch complete", "status", result.Status, "succeeded", result.SuccessCount, "failed", result.FailCount)
	return result, nil
}

// runItem calls fn, converting a panic into an error.
func runItem(ctx context.Context, fn ItemFunc, item domain.WorkItem, sink progress.Sink) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item, sink)
}

// summarize calls fn, converting a panic into an error.
func summarize(fn SummaryFunc, result *domain.BatchResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(result)
}

// applyOutcome maps a pipeline answer onto the item.
func applyOutcome(item *domain.WorkItem, out Outcome, err error) {
	item.Outputs = out.Outputs
	item.DurationMS = out.DurationMS
	item.Text = out.Text
	item.Message = out.Message
	switch {
	case err != nil:
		item.Status = domain.ItemStatusError
		item.Message = err.Error()
	case out.Success:
		item.Status = domain.ItemStatusSuccess
	default:
		item.Status = domain.ItemStatusFailed
	}
}

func count(items []domain.WorkItem) (success, failed int) {
	for _, item := range items {
		switch item.Status {
		case domain.ItemStatusSuccess:
			success++
		case domain.ItemStatusFailed, domain.ItemStatusError:
			failed++
		}
	}
	return success, failed
}

func notify(cb func(int, domain.WorkItem), index int, item domain.WorkItem) {
	if cb != nil {
		cb(index, item)
	}
}
