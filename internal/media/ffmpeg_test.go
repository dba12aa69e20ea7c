package media

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"audio-workbench/internal/progress"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run    func(ctx context.Context, name string, args ...string) (commandResult, error)
	stream func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// Stream delegates to injected behavior.
func (f *fakeRunner) Stream(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
	if f.stream == nil {
		return commandResult{}, nil
	}
	return f.stream(ctx, onLine, name, args...)
}

// percentRecorder collects reported percentages.
type percentRecorder struct {
	values []int
}

// Report appends percent.
func (r *percentRecorder) Report(percent int, _ string) {
	r.values = append(r.values, percent)
}

var _ progress.Sink = (*percentRecorder)(nil)

// TestCheckMissingBinaryIsUnavailable checks the construction-time probe.
func TestCheckMissingBinaryIsUnavailable(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{ExitCode: -1}, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}}
	f := newFFmpeg("/missing/ffmpeg", "", runner, nil)
	if err := f.check(context.Background()); !errors.Is(err, ErrTranscoderUnavailable) {
		t.Fatalf("check() error = %v, want %v", err, ErrTranscoderUnavailable)
	}
}

// TestCheckPassesOnVersionOutput checks the happy path.
func TestCheckPassesOnVersionOutput(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if name != "ffmpeg" || len(args) != 1 || args[0] != "-version" {
			t.Fatalf("unexpected command %s %v", name, args)
		}
		return commandResult{Stdout: "ffmpeg version 6.1\nbuilt with gcc"}, nil
	}}
	if err := newFFmpeg("", "", runner, nil).check(context.Background()); err != nil {
		t.Fatalf("check() error = %v", err)
	}
}

// TestProbeParsesDuration checks ffprobe output parsing.
func TestProbeParsesDuration(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		if name != "ffprobe-custom" {
			t.Fatalf("name = %q, want ffprobe-custom", name)
		}
		if args[len(args)-1] != "/in/talk.mp4" {
			t.Fatalf("last arg = %q, want input path", args[len(args)-1])
		}
		return commandResult{Stdout: "5400.250000\n"}, nil
	}}
	got, err := newFFmpeg("", "ffprobe-custom", runner, nil).Probe(context.Background(), "/in/talk.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got != 5400.25 {
		t.Fatalf("duration = %v, want 5400.25", got)
	}
}

// TestProbeRejectsGarbage checks the parse error path.
func TestProbeRejectsGarbage(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stdout: "N/A\n"}, nil
	}}
	_, err := newFFmpeg("", "", runner, nil).Probe(context.Background(), "x.mp4")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Stage != "probe" {
		t.Fatalf("Probe() error = %v, want probe CommandError", err)
	}
}

// TestExtractBuildsFiltersAndReportsProgress checks args and progress parsing.
func TestExtractBuildsFiltersAndReportsProgress(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "audio_output", "talk.mp3")
	var gotArgs []string
	runner := &fakeRunner{stream: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
		gotArgs = append([]string{}, args...)
		for _, line := range []string{"out_time_us=25000000", "speed=2x", "out_time_us=50000000", "progress=end"} {
			onLine(line)
		}
		mustWriteFile(t, out, "mp3")
		return commandResult{}, nil
	}}

	rec := &percentRecorder{}
	err := newFFmpeg("", "", runner, nil).Extract(context.Background(), ExtractRequest{
		Input:    filepath.Join(root, "talk.mp4"),
		Output:   out,
		Duration: 100,
		Options: EncodeOptions{
			Bitrate:         "128k",
			Channels:        1,
			SampleRate:      16000,
			NoiseReduction:  true,
			NormalizeVolume: true,
		},
	}, rec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := argValue(gotArgs, "-af"); got != noiseReductionFilter+","+loudnessFilter {
		t.Fatalf("-af = %q", got)
	}
	if argValue(gotArgs, "-ar") != "16000" || argValue(gotArgs, "-ac") != "1" || argValue(gotArgs, "-b:a") != "128k" {
		t.Fatalf("encoding args = %v", gotArgs)
	}
	if !hasArg(gotArgs, "-vn") {
		t.Fatalf("expected -vn in %v", gotArgs)
	}
	if gotArgs[len(gotArgs)-1] != out {
		t.Fatalf("output arg = %q, want %q", gotArgs[len(gotArgs)-1], out)
	}
	want := []int{25, 50, 100}
	if len(rec.values) < len(want) {
		t.Fatalf("progress = %v, want prefix %v", rec.values, want)
	}
	for i := range want {
		if rec.values[i] != want[i] {
			t.Fatalf("progress = %v, want prefix %v", rec.values, want)
		}
	}
}

// TestExtractWithoutFiltersOmitsAudioFilter checks -af is omitted.
func TestExtractWithoutFiltersOmitsAudioFilter(t *testing.T) {
	args := buildExtractArgs("in.mp4", "out.mp3", EncodeOptions{Bitrate: "64k"})
	if hasArg(args, "-af") {
		t.Fatalf("did not expect -af in %v", args)
	}
}

// TestExtractMissingOutputIsNoOutput checks the silent-failure path.
func TestExtractMissingOutputIsNoOutput(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}
	err := newFFmpeg("", "", runner, nil).Extract(context.Background(), ExtractRequest{
		Input:  filepath.Join(root, "in.mp4"),
		Output: filepath.Join(root, "out", "in.mp3"),
	}, nil)
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("Extract() error = %v, want %v", err, ErrNoOutput)
	}
}

// TestExtractFailureCarriesCommandLog checks failure context and the log hook.
func TestExtractFailureCarriesCommandLog(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{stream: func(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found", ExitCode: 1}, errors.New("exit status 1")
	}}
	f := newFFmpeg("", "", runner, nil)
	var logs []CommandLog
	f.OnCommand(func(l CommandLog) { logs = append(logs, l) })

	err := f.Extract(context.Background(), ExtractRequest{Input: "bad.mp4", Output: filepath.Join(root, "bad.mp3")}, nil)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Extract() error = %v, want CommandError", err)
	}
	if cmdErr.CommandLog.ExitCode != 1 || !strings.Contains(cmdErr.CommandLog.Stderr, "Invalid data") {
		t.Fatalf("command log = %+v", cmdErr.CommandLog)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
}

// TestCutUsesStreamCopy checks segment cut args.
func TestCutUsesStreamCopy(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "a_segment_2.mp3")
	var gotArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		gotArgs = append([]string{}, args...)
		mustWriteFile(t, out, "seg")
		return commandResult{}, nil
	}}
	if err := newFFmpeg("", "", runner, nil).Cut(context.Background(), "a.mp3", out, 3600, 1800); err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if argValue(gotArgs, "-ss") != "3600" || argValue(gotArgs, "-t") != "1800" || argValue(gotArgs, "-c:a") != "copy" {
		t.Fatalf("cut args = %v", gotArgs)
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
