// Package media drives the local ffmpeg/ffprobe transcoder: duration
// probing, audio extraction with progress, and stream-copy cutting.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"audio-workbench/internal/progress"
)

// ErrTranscoderUnavailable is returned when ffmpeg cannot be executed.
var ErrTranscoderUnavailable = errors.New("transcoder unavailable")

// ErrNoOutput is returned when ffmpeg exits cleanly but the output file is missing.
var ErrNoOutput = errors.New("transcoder produced no output")

const (
	noiseReductionFilter = "afftdn=nf=-20"
	loudnessFilter       = "loudnorm=I=-16:TP=-1.5:LRA=11"
)

// EncodeOptions controls audio encoding during extraction.
type EncodeOptions struct {
	Format          string
	Bitrate         string
	Channels        int
	SampleRate      int
	NoiseReduction  bool
	NormalizeVolume bool
}

// ExtractRequest describes one audio extraction.
type ExtractRequest struct {
	Input   string
	Output  string
	Options EncodeOptions
	// Duration of the input in seconds, used to compute percent progress.
	Duration float64
}

// CommandError is a stage-aware error with optional command context.
type CommandError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats transcoder failures for logs and UI.
func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FFmpeg runs ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	logger      *slog.Logger
	onLog       func(CommandLog)
}

// NewFFmpeg verifies ffmpeg is executable and returns a transcoder.
// Empty paths default to "ffmpeg" and "ffprobe" on PATH.
func NewFFmpeg(ctx context.Context, ffmpegPath, ffprobePath string, logger *slog.Logger) (*FFmpeg, error) {
	f := newFFmpeg(ffmpegPath, ffprobePath, &execRunner{}, logger)
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func newFFmpeg(ffmpegPath, ffprobePath string, runner commandRunner, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		logger:      logger.With("component", "ffmpeg"),
	}
}

// OnCommand registers a callback receiving every command log.
func (f *FFmpeg) OnCommand(cb func(CommandLog)) {
	f.onLog = cb
}

// check runs `ffmpeg -version`.
func (f *FFmpeg) check(ctx context.Context) error {
	res, err := f.runner.Run(ctx, f.ffmpegPath, "-version")
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return fmt.Errorf("%w: %s not found", ErrTranscoderUnavailable, f.ffmpegPath)
		}
		return fmt.Errorf("%w: %s -version exited %d", ErrTranscoderUnavailable, f.ffmpegPath, res.ExitCode)
	}
	version, _, _ := strings.Cut(res.Stdout, "\n")
	f.logger.Info("transcoder available", "version", strings.TrimSpace(version))
	return nil
}

// Probe returns the media duration in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := f.runner.Run(ctx, f.ffprobePath, args...)
	log := f.record(f.ffprobePath, args, res)
	if err != nil {
		return 0, &CommandError{Stage: "probe", Message: "ffprobe failed", CommandLog: log, Err: err}
	}

	value := strings.TrimSpace(res.Stdout)
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &CommandError{
			Stage:      "probe",
			Message:    fmt.Sprintf("unparseable duration %q", value),
			CommandLog: log,
			Err:        err,
		}
	}
	return duration, nil
}

// Extract encodes the audio stream of req.Input into req.Output, reporting
// percent progress parsed from ffmpeg's -progress output.
func (f *FFmpeg) Extract(ctx context.Context, req ExtractRequest, sink progress.Sink) error {
	sink = progress.OrDiscard(sink)
	if err := f.mkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return &CommandError{Stage: "extract", Message: "cannot create output directory", Err: err}
	}

	args := buildExtractArgs(req.Input, req.Output, req.Options)
	parser := &progressParser{duration: req.Duration, sink: sink, message: "extracting audio"}
	res, err := f.runner.Stream(ctx, parser.line, f.ffmpegPath, args...)
	log := f.record(f.ffmpegPath, args, res)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CommandError{Stage: "extract", Message: "ffmpeg audio extraction failed", CommandLog: log, Err: err}
	}
	if _, err := f.stat(req.Output); err != nil {
		return &CommandError{Stage: "extract", Message: "ffmpeg completed but output file is missing", CommandLog: log, Err: ErrNoOutput}
	}
	sink.Report(100, "audio extracted")
	return nil
}

// Cut copies [start, start+length) of input into output without re-encoding.
func (f *FFmpeg) Cut(ctx context.Context, input, output string, start, length float64) error {
	args := buildCutArgs(input, output, start, length)
	res, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	log := f.record(f.ffmpegPath, args, res)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CommandError{Stage: "cut", Message: "ffmpeg segment cut failed", CommandLog: log, Err: err}
	}
	if _, err := f.stat(output); err != nil {
		return &CommandError{Stage: "cut", Message: "ffmpeg completed but segment file is missing", CommandLog: log, Err: ErrNoOutput}
	}
	return nil
}

// record builds a CommandLog and forwards it to the registered callback.
func (f *FFmpeg) record(command string, args []string, res commandResult) CommandLog {
	log := CommandLog{
		Command:  command,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	f.logger.Debug("command finished", "command", command, "exit_code", res.ExitCode)
	if f.onLog != nil {
		f.onLog(log)
	}
	return log
}

// buildExtractArgs builds ffmpeg args for audio-only encoding with optional filters.
func buildExtractArgs(input, output string, opts EncodeOptions) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input}

	var filters []string
	if opts.NoiseReduction {
		filters = append(filters, noiseReductionFilter)
	}
	if opts.NormalizeVolume {
		filters = append(filters, loudnessFilter)
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	args = append(args, "-vn")
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	if opts.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(opts.Channels))
	}
	if opts.Bitrate != "" {
		args = append(args, "-b:a", opts.Bitrate)
	}
	return append(args, "-progress", "pipe:1", "-nostats", output)
}

// buildCutArgs builds ffmpeg args for a stream-copy segment cut.
func buildCutArgs(input, output string, start, length float64) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-ss", strconv.FormatFloat(start, 'f', -1, 64),
		"-t", strconv.FormatFloat(length, 'f', -1, 64),
		"-c:a", "copy",
		output,
	}
}

// progressParser converts ffmpeg -progress key=value lines into percentages.
type progressParser struct {
	duration float64
	sink     progress.Sink
	message  string
	last     int
}

// line handles one line of -progress output.
func (p *progressParser) line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if p.duration <= 0 {
			return
		}
		us, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		pct := int(us / 1e6 / p.duration * 100)
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.sink.Report(pct, p.message)
		}
	case "progress":
		if value == "end" && p.last < 100 {
			p.last = 100
			p.sink.Report(100, p.message)
		}
	}
}
