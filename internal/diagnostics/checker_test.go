package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audio-workbench/internal/domain"
)

func validSecrets() domain.Secrets {
	return domain.Secrets{
		Storage: domain.StorageCredentials{AccessKey: "ak", SecretKey: "sk", Endpoint: "tos.example.com", Bucket: "audio"},
		Speech:  domain.SpeechCredentials{AppID: "app", AccessToken: "token"},
	}
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "output")
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{OutputDir: outputDir}, validSecrets())

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if warn := ByStatus(report, domain.DiagnosticStatusWarn); len(warn) != 0 {
		t.Fatalf("warnings = %v, want none", warn)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	var looked []string
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			looked = append(looked, name)
			return "", errors.New("not found")
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{FFmpegPath: "/opt/ffmpeg/bin/ffmpeg"}, domain.Secrets{})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	if looked[0] != "/opt/ffmpeg/bin/ffmpeg" || looked[1] != "ffprobe" {
		t.Fatalf("looked up %v", looked)
	}

	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "storage_credentials", domain.DiagnosticStatusWarn)
	assertStatusByID(t, report, "speech_credentials", domain.DiagnosticStatusWarn)

	if got := report.Blocked(); len(got) != len(domain.Lanes) {
		t.Fatalf("Blocked() = %v, want every lane", got)
	}
}

// TestBlockedFollowsMissingCredentials checks warnings only gate their lane.
func TestBlockedFollowsMissingCredentials(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)
	secrets := validSecrets()
	secrets.Speech = domain.SpeechCredentials{}

	report := checker.Run(domain.Settings{OutputDir: t.TempDir()}, secrets)

	got := report.Blocked()
	if len(got) != 1 || got[0] != domain.LaneTranscription {
		t.Fatalf("Blocked() = %v, want [transcription]", got)
	}
	if report.HasFailures {
		t.Fatal("missing credentials must not count as a failure")
	}
}

// TestCheckerRunUnwritableOutputFails validates the write probe.
func TestCheckerRunUnwritableOutputFails(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)
	report := checker.Run(domain.Settings{OutputDir: "/readonly"}, validSecrets())

	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
