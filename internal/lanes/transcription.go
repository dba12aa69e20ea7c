package lanes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/summary"
	"audio-workbench/internal/transcribe"
)

// TranscriptionRequest lists public audio URLs to transcribe.
type TranscriptionRequest struct {
	URLs      []string `json:"urls"`
	OutputDir string   `json:"outputDir"`
}

// Transcription sends audio URLs to the speech service one by one.
type Transcription struct {
	Transcriber Transcriber
	Env         Env
}

// Run transcribes every URL and writes all_transcripts.txt and
// batch_results.json into the output directory.
func (t *Transcription) Run(ctx context.Context, req TranscriptionRequest, sink progress.Sink) (domain.BatchResult, error) {
	var items []domain.WorkItem
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			items = append(items, domain.WorkItem{
				ID:     fmt.Sprintf("url-%d", len(items)+1),
				Name:   urlFileName(u),
				Source: u,
			})
		}
	}
	if len(items) == 0 {
		return domain.BatchResult{}, batch.ErrEmptyWorkList
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	stems := make(map[string]string, len(items))
	for i, stem := range uniqueStems(names) {
		stems[items[i].ID] = stem
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return domain.BatchResult{}, &domain.ValidationError{Field: "outputDir", Message: "output directory is required"}
	}
	reference := t.Env.now()

	return batch.Run(ctx, items, func(ctx context.Context, item domain.WorkItem, sink progress.Sink) (batch.Outcome, error) {
		return t.transcribeItem(ctx, item, filepath.Join(req.OutputDir, stems[item.ID]), sink)
	}, batch.Options{
		Lane:      domain.LaneTranscription,
		OutputDir: req.OutputDir,
		OnItem:    t.Env.OnItem,
		Logger:    t.Env.logger(),
		Now:       t.Env.Now,
		Summarize: func(result *domain.BatchResult) error {
			path, err := summary.WriteTranscripts(req.OutputDir, *result, reference, t.Env.now())
			if err != nil {
				return err
			}
			result.SummaryPath = path
			result.ResultsPath = filepath.Join(req.OutputDir, summary.ResultsFile)
			_, err = summary.WriteResults(req.OutputDir, *result)
			return err
		},
	}, sink)
}

// transcribeItem transcribes one URL and saves outputBase.json and outputBase.txt.
// Classified service failures mark the item failed; anything else is an error.
func (t *Transcription) transcribeItem(ctx context.Context, item domain.WorkItem, outputBase string, sink progress.Sink) (batch.Outcome, error) {
	tr, err := t.Transcriber.Transcribe(ctx, item.Source, sink)
	if err != nil {
		if transcribe.IsFailure(err) && !errors.Is(err, context.Canceled) {
			return batch.Outcome{Message: err.Error()}, nil
		}
		return batch.Outcome{}, err
	}

	jsonPath, textPath, err := transcribe.Save(tr, outputBase, t.Env.now())
	if err != nil {
		return batch.Outcome{}, err
	}
	sink.Report(100, "saved "+filepath.Base(textPath))
	return batch.Outcome{
		Success:    true,
		DurationMS: tr.DurationMS(),
		Text:       tr.Result.Text,
		Outputs: map[string]string{
			summary.OutputJSON: jsonPath,
			summary.OutputText: textPath,
			summary.OutputURL:  item.Source,
		},
	}, nil
}
