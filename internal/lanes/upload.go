package lanes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/summary"
)

// UploadRequest lists local files to put into object storage.
type UploadRequest struct {
	Paths []string `json:"paths"`
	// OutputDir receives uploaded_urls.txt; defaults to the first file's directory.
	OutputDir string `json:"outputDir,omitempty"`
}

// Upload puts files into object storage one by one.
type Upload struct {
	Uploader Uploader
	Env      Env
}

// Run uploads every path and writes the URL list.
func (u *Upload) Run(ctx context.Context, req UploadRequest, sink progress.Sink) (domain.BatchResult, error) {
	if len(req.Paths) == 0 {
		return domain.BatchResult{}, batch.ErrEmptyWorkList
	}
	items := make([]domain.WorkItem, 0, len(req.Paths))
	for _, p := range req.Paths {
		items = append(items, domain.WorkItem{Name: filepath.Base(p), Source: p})
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(req.Paths[0])
	}

	return batch.Run(ctx, items, u.uploadItem, batch.Options{
		Lane:      domain.LaneUpload,
		OutputDir: outputDir,
		OnItem:    u.Env.OnItem,
		Logger:    u.Env.logger(),
		Now:       u.Env.Now,
		Summarize: func(result *domain.BatchResult) error {
			path, err := summary.WriteURLList(outputDir, *result)
			if err != nil {
				return err
			}
			result.SummaryPath = path
			return nil
		},
	}, sink)
}

// uploadItem uploads one file. A missing file is a classified failure.
func (u *Upload) uploadItem(ctx context.Context, item domain.WorkItem, sink progress.Sink) (batch.Outcome, error) {
	if _, err := os.Stat(item.Source); err != nil {
		return batch.Outcome{Message: fmt.Sprintf("file not found: %s", item.Source)}, nil
	}
	obj, err := u.Uploader.Upload(ctx, item.Source, sink)
	if err != nil {
		return batch.Outcome{}, err
	}
	return batch.Outcome{
		Success: true,
		Message: obj.URL,
		Outputs: map[string]string{
			summary.OutputURL: obj.URL,
			"key":             obj.Key,
		},
	}, nil
}
