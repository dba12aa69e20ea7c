package lanes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/segment"
	"audio-workbench/internal/summary"
)

// SplitRequest cuts one audio file into fixed-length segments.
type SplitRequest struct {
	Input          string `json:"input"`
	OutputDir      string `json:"outputDir,omitempty"`
	SegmentSeconds int    `json:"segmentSeconds"`
	// Format is the output extension; empty keeps the input's.
	Format       string `json:"format,omitempty"`
	NameTemplate string `json:"nameTemplate,omitempty"`
}

// SplitResult is the batch over segments plus the plan facts.
type SplitResult struct {
	domain.BatchResult
	Duration          float64 `json:"duration"`
	SegmentCount      int     `json:"segmentCount"`
	LastSegmentLength float64 `json:"lastSegmentLength"`
}

// Split cuts an audio file along a segment plan.
type Split struct {
	Transcoder Transcoder
	Env        Env
}

// Run probes the input, plans the segments and cuts each as one batch
// item. An unknown duration aborts before any item runs.
func (s *Split) Run(ctx context.Context, req SplitRequest, sink progress.Sink) (SplitResult, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return SplitResult{}, &domain.ValidationError{Field: "input", Message: "input path is required"}
	}
	if _, err := os.Stat(input); err != nil {
		return SplitResult{}, &domain.ValidationError{Field: "input", Message: err.Error()}
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(input), segment.Stem(input)+"_segments")
	}
	ext := filepath.Ext(input)
	if req.Format != "" {
		ext = audioExtension(req.Format)
	}

	duration, err := s.Transcoder.Probe(ctx, input)
	if err != nil {
		return SplitResult{}, fmt.Errorf("probe %s: %w", filepath.Base(input), err)
	}
	plan, err := segment.Compute(duration, req.SegmentSeconds)
	if err != nil {
		return SplitResult{}, fmt.Errorf("plan %s: %w", filepath.Base(input), err)
	}
	plan = segment.Apply(plan, req.NameTemplate, input)

	items := make([]domain.WorkItem, 0, len(plan.Segments))
	byID := make(map[string]domain.Segment, len(plan.Segments))
	for _, seg := range plan.Segments {
		id := fmt.Sprintf("segment-%d", seg.Index)
		byID[id] = seg
		items = append(items, domain.WorkItem{
			ID:     id,
			Name:   seg.Name + ext,
			Source: filepath.Join(outputDir, seg.Name+ext),
		})
	}

	s.Env.logger().Info("split planned", "input", input, "duration", duration, "segments", len(plan.Segments))
	res, err := batch.Run(ctx, items, func(ctx context.Context, item domain.WorkItem, sink progress.Sink) (batch.Outcome, error) {
		seg := byID[item.ID]
		if err := s.Transcoder.Cut(ctx, input, item.Source, seg.Start, seg.Length()); err != nil {
			return batch.Outcome{}, err
		}
		return batch.Outcome{
			Success:    true,
			Message:    fmt.Sprintf("%.1fs-%.1fs", seg.Start, seg.End),
			DurationMS: int64(seg.Length() * 1000),
			Outputs:    map[string]string{summary.OutputAudio: item.Source},
		}, nil
	}, batch.Options{
		Lane:      domain.LaneSplitting,
		OutputDir: outputDir,
		OnItem:    s.Env.OnItem,
		Logger:    s.Env.logger(),
		Now:       s.Env.Now,
	}, sink)

	out := SplitResult{
		BatchResult:  res,
		Duration:     duration,
		SegmentCount: len(plan.Segments),
	}
	if n := len(plan.Segments); n > 0 {
		out.LastSegmentLength = plan.Segments[n-1].Length()
	}
	return out, err
}
