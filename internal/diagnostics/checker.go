package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"audio-workbench/internal/domain"
)

// Checker validates external tools, the output directory and credentials.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, secrets domain.Secrets) domain.DiagnosticReport {
	mediaLanes := []domain.Lane{domain.LaneExtraction, domain.LaneSplitting}
	items := []domain.DiagnosticItem{
		withLanes(c.checkTool("ffmpeg", settings.FFmpegPath), mediaLanes...),
		withLanes(c.checkTool("ffprobe", settings.FFprobePath), mediaLanes...),
		withLanes(c.checkOutputDir(settings.OutputDir), domain.LaneExtraction, domain.LaneTranscription),
		withLanes(checkCredentials("storage_credentials", "Object storage credentials", secrets.Storage.Validate(),
			"Uploads are disabled until access key, secret key, endpoint and bucket are set."), domain.LaneUpload),
		withLanes(checkCredentials("speech_credentials", "Speech service credentials", secrets.Speech.Validate(),
			"Transcription is disabled until app id and access token are set."), domain.LaneTranscription),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

func withLanes(item domain.DiagnosticItem, lanes ...domain.Lane) domain.DiagnosticItem {
	item.Lanes = lanes
	return item
}

// checkTool verifies a required CLI executable is resolvable.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	target := strings.TrimSpace(configured)
	if target == "" {
		target = name
	}
	path, err := c.lookPath(target)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", target),
			Hint:    "Install it and ensure the binary is on PATH, or set its full path in settings.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where audio and transcripts can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkCredentials turns a validation result into a warning item.
func checkCredentials(id, name string, err error, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}
	var verr *domain.ValidationError
	switch {
	case err == nil:
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Configured."
	case errors.As(err, &verr):
		item.Status = domain.DiagnosticStatusWarn
		item.Message = verr.Error()
		item.Hint = hint
	default:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = err.Error()
		item.Hint = hint
	}
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}

// ByStatus returns the IDs of items with the given status.
func ByStatus(report domain.DiagnosticReport, status domain.DiagnosticStatus) []string {
	var ids []string
	for _, item := range report.Items {
		if item.Status == status {
			ids = append(ids, item.ID)
		}
	}
	return ids
}
