package domain

import "time"

// DiagnosticStatus is the outcome of one environment check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check result. Lanes lists the workflows that
// cannot run while the item is not passing.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
	Lanes   []Lane           `json:"lanes,omitempty"`
}

// DiagnosticReport aggregates environment checks for UI and API responses.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// Blocked reports the lanes affected by any non-passing item, in lane order.
func (r DiagnosticReport) Blocked() []Lane {
	hit := make(map[Lane]bool)
	for _, item := range r.Items {
		if item.Status == DiagnosticStatusPass {
			continue
		}
		for _, lane := range item.Lanes {
			hit[lane] = true
		}
	}
	var out []Lane
	for _, lane := range Lanes {
		if hit[lane] {
			out = append(out, lane)
		}
	}
	return out
}
