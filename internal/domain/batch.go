package domain

import "time"

// ItemStatus is the lifecycle state of one work item inside a batch.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusRunning ItemStatus = "running"
	ItemStatusSuccess ItemStatus = "success"
	// ItemStatusFailed marks an item whose pipeline reported a classified failure.
	ItemStatusFailed ItemStatus = "failed"
	// ItemStatusError marks an item whose pipeline returned an unexpected error or panicked.
	ItemStatusError ItemStatus = "error"
)

// Terminal reports whether the item has finished processing.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusSuccess || s == ItemStatusFailed || s == ItemStatusError
}

// BatchStatus is the aggregate outcome of a batch.
type BatchStatus string

const (
	BatchStatusSuccess   BatchStatus = "success"
	BatchStatusPartial   BatchStatus = "partial"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// WorkItem is one input of a batch together with its outcome.
type WorkItem struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Source     string            `json:"source"`
	Status     ItemStatus        `json:"status"`
	Message    string            `json:"message,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	DurationMS int64             `json:"durationMs,omitempty"`
	Text       string            `json:"text,omitempty"`
	StartedAt  time.Time         `json:"startedAt,omitempty"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
}

// BatchResult aggregates per-item outcomes and summary artifact locations.
type BatchResult struct {
	ID           string      `json:"id"`
	Lane         Lane        `json:"lane"`
	Status       BatchStatus `json:"status"`
	StartedAt    time.Time   `json:"startedAt"`
	FinishedAt   time.Time   `json:"finishedAt"`
	Items        []WorkItem  `json:"items"`
	OutputDir    string      `json:"outputDir,omitempty"`
	SummaryPath  string      `json:"summaryPath,omitempty"`
	ResultsPath  string      `json:"resultsPath,omitempty"`
	SummaryError string      `json:"summaryError,omitempty"`
	SuccessCount int         `json:"successCount"`
	FailCount    int         `json:"failCount"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r BatchResult) Clone() BatchResult {
	out := r
	out.Items = make([]WorkItem, len(r.Items))
	for i, item := range r.Items {
		if item.Outputs != nil {
			outputs := make(map[string]string, len(item.Outputs))
			for k, v := range item.Outputs {
				outputs[k] = v
			}
			item.Outputs = outputs
		}
		out.Items[i] = item
	}
	return out
}
