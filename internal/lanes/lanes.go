// Package lanes holds the per-item pipelines of the four workflows and
// plugs them into the batch orchestrator.
package lanes

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"audio-workbench/internal/domain"
	"audio-workbench/internal/media"
	"audio-workbench/internal/progress"
	"audio-workbench/internal/segment"
	"audio-workbench/internal/storage"
	"audio-workbench/internal/transcribe"
)

// Transcoder is the media back-end used by extraction and splitting.
type Transcoder interface {
	Probe(ctx context.Context, path string) (float64, error)
	Extract(ctx context.Context, req media.ExtractRequest, sink progress.Sink) error
	Cut(ctx context.Context, input, output string, start, length float64) error
}

// Uploader is the object storage back-end used by the upload lane.
type Uploader interface {
	Upload(ctx context.Context, path string, sink progress.Sink) (storage.Object, error)
}

// Transcriber is the speech back-end used by the transcription lane.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string, sink progress.Sink) (transcribe.Transcript, error)
}

// Env carries the collaborators shared by every lane.
type Env struct {
	Logger *slog.Logger
	Now    func() time.Time
	// OnItem receives item snapshots as the batch advances.
	OnItem func(index int, item domain.WorkItem)
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// DefaultVideoExtensions are the file extensions picked up by a directory scan.
var DefaultVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".flv", ".webm", ".m4v"}

// audioExtension returns format as a file extension, defaulting to mp3.
func audioExtension(format string) string {
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if format == "" {
		format = "mp3"
	}
	return "." + format
}

// urlFileName returns the unescaped last path element of rawURL.
func urlFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return filepath.Base(rawURL)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// uniqueStems returns the extension-less names of files, suffixing repeats
// with "_2", "_3" and so on so that no two items share an output base.
func uniqueStems(files []string) []string {
	out := make([]string, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		stem := segment.Stem(f)
		name := stem
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}
