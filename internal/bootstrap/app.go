package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"audio-workbench/internal/config"
	"audio-workbench/internal/diagnostics"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/history"
	"audio-workbench/internal/jobs"
	"audio-workbench/internal/lanes"
	"audio-workbench/internal/media"
	"audio-workbench/internal/segment"
	"audio-workbench/internal/storage"
	"audio-workbench/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventName is the runtime event carrying every published task event.
const EventName = "task:event"

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.avi;*.mkv;*.wmv;*.flv;*.webm;*.m4v",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// historyStore persists finished batches.
type historyStore interface {
	Record(ctx context.Context, r domain.BatchResult) error
	List(ctx context.Context, lane domain.Lane, limit int) ([]domain.BatchResult, error)
}

// statusMirror publishes lane state to an external observer.
type statusMirror interface {
	Publish(ctx context.Context, task domain.Task) error
}

// storageBackend is an uploader that can also probe its bucket.
type storageBackend interface {
	lanes.Uploader
	Check(ctx context.Context) error
}

// Backends builds the external collaborators from a settings snapshot.
type Backends struct {
	Transcoder  func(ctx context.Context, s domain.Settings, logger *slog.Logger) (lanes.Transcoder, error)
	Storage     func(creds domain.StorageCredentials, logger *slog.Logger) (storageBackend, error)
	Transcriber func(s domain.Settings, creds domain.SpeechCredentials, logger *slog.Logger) (lanes.Transcriber, error)
}

// DefaultBackends wires ffmpeg, minio and the speech HTTP client.
func DefaultBackends() Backends {
	return Backends{
		Transcoder: func(ctx context.Context, s domain.Settings, logger *slog.Logger) (lanes.Transcoder, error) {
			ff, err := media.NewFFmpeg(ctx, s.FFmpegPath, s.FFprobePath, logger)
			if err != nil {
				return nil, err
			}
			return ff, nil
		},
		Storage: func(creds domain.StorageCredentials, logger *slog.Logger) (storageBackend, error) {
			up, err := storage.NewUploader(creds, logger)
			if err != nil {
				return nil, err
			}
			return up, nil
		},
		Transcriber: func(s domain.Settings, creds domain.SpeechCredentials, logger *slog.Logger) (lanes.Transcriber, error) {
			client, err := transcribe.NewClient(creds, nil)
			if err != nil {
				return nil, err
			}
			return transcribe.NewService(client, transcriptionOptions(s), logger), nil
		},
	}
}

// App wires configuration, lanes, events and UI runtime callbacks.
type App struct {
	Store       config.Store
	Secrets     *config.SecretsStore
	Jobs        *jobs.Manager
	Backends    Backends
	Archive     historyStore
	Mirror      statusMirror
	Logger      *slog.Logger
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker

	mu         sync.Mutex
	drains     sync.WaitGroup
	settings   domain.Settings
	handles    map[domain.Lane]*jobs.Handle
	events     *jobs.EventBus
	runtimeCtx context.Context
	emit       func(ctx context.Context, name string, data ...interface{})
}

// Options configures New.
type Options struct {
	// Dir holds settings.json, secrets.json and history.db; empty means ~/.audio-workbench.
	Dir    string
	Logger *slog.Logger
	Assets fs.FS
}

// New builds the application with persisted settings and startup diagnostics.
func New(opts Options) (*App, error) {
	dir := opts.Dir
	if dir == "" {
		dir = config.DefaultDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureLocalBinOnPATH(dir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(dir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	secrets := config.NewSecretsStore(filepath.Join(dir, "secrets.json"))

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	app := &App{
		Store:    store,
		Secrets:  secrets,
		Jobs:     jobs.NewManager(),
		Backends: DefaultBackends(),
		Archive:  hist,
		Logger:   logger,
		assets:   opts.Assets,
		checker:  diagnostics.NewChecker(),
		settings: settings,
		events:   jobs.NewEventBus(1000),
	}
	if _, err := app.RefreshDiagnostics(); err != nil {
		logger.Warn("startup diagnostics failed", "error", err)
	}
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Audio Workbench",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.Shutdown()
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
	if a.emit == nil {
		a.emit = wailsruntime.EventsEmit
	}
}

// shutdownWait bounds how long Shutdown waits for cancelled lanes to finish.
const shutdownWait = 15 * time.Second

// Shutdown cancels running lanes, waits for their completions to be
// recorded and detaches the runtime context.
func (a *App) Shutdown() {
	a.mu.Lock()
	a.runtimeCtx = nil
	handles := make([]*jobs.Handle, 0, len(a.handles))
	for _, h := range a.handles {
		handles = append(handles, h)
	}
	a.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	done := make(chan struct{})
	go func() {
		a.drains.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownWait):
		a.logger().Warn("lanes still running at shutdown", "count", len(handles))
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.settings = normalized
	a.mu.Unlock()
	a.refreshDiagnostics(normalized)

	return normalized, nil
}

// GetSecrets returns the stored credentials.
func (a *App) GetSecrets() (domain.Secrets, error) {
	if a.Secrets == nil {
		return domain.Secrets{}, nil
	}
	secrets, err := a.Secrets.Load()
	if err != nil {
		return domain.Secrets{}, fmt.Errorf("load secrets: %w", err)
	}
	return config.ApplySecretsEnv(secrets), nil
}

// SaveSecrets persists credentials and refreshes diagnostics.
func (a *App) SaveSecrets(secrets domain.Secrets) error {
	if a.Secrets == nil {
		return fmt.Errorf("secrets store is not configured")
	}
	if err := a.Secrets.Save(trimSecrets(secrets)); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	_, err := a.RefreshDiagnostics()
	return err
}

// TestStorage checks the configured bucket is reachable.
func (a *App) TestStorage() error {
	secrets, err := a.GetSecrets()
	if err != nil {
		return err
	}
	backend, err := a.Backends.Storage(secrets.Storage, a.logger())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return backend.Check(ctx)
}

// RefreshDiagnostics reloads settings and credentials and reruns checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
	return a.refreshDiagnostics(settings), nil
}

// refreshDiagnostics reruns checks against settings and cached credentials.
func (a *App) refreshDiagnostics(settings domain.Settings) domain.DiagnosticReport {
	if a.checker == nil {
		return a.GetDiagnostics()
	}
	secrets, err := a.GetSecrets()
	if err != nil {
		a.logger().Warn("load secrets for diagnostics", "error", err)
	}
	report := a.checker.Run(settings, secrets)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Diagnostics = report
	return report
}

// Lanes returns a snapshot of every lane task.
func (a *App) Lanes() []domain.Task {
	return a.Jobs.All()
}

// Events returns all events with sequence greater than since.
func (a *App) Events(since int64) []jobs.Event {
	return a.events.Since(since)
}

// History returns the most recent finished batches.
func (a *App) History(limit int) ([]domain.BatchResult, error) {
	if a.Archive == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Archive.List(ctx, "", limit)
}

// PickVideoFile opens a native file dialog for a single video.
func (a *App) PickVideoFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select video file",
		Filters:          videoDialogFilter,
		DefaultDirectory: a.currentSettings().LastInputDir,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickAudioFiles opens a native dialog for selecting audio files.
func (a *App) PickAudioFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	return wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select audio files",
		Filters:          audioDialogFilter,
		DefaultDirectory: a.currentSettings().LastInputDir,
	})
}

// PickDirectory opens a native directory picker.
func (a *App) PickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(title) == "" {
		title = "Select directory"
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// currentSettings returns the cached settings snapshot.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and restores defaults for invalid values.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.FFprobePath = strings.TrimSpace(settings.FFprobePath)
	settings.AudioFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(settings.AudioFormat)), ".")
	settings.SplitNameTemplate = strings.TrimSpace(settings.SplitNameTemplate)

	if settings.AudioFormat == "" {
		settings.AudioFormat = defaults.AudioFormat
	}
	if settings.SplitNameTemplate == "" {
		settings.SplitNameTemplate = segment.DefaultNameTemplate
	}
	if settings.SegmentDuration < 0 {
		settings.SegmentDuration = 0
	}
	if settings.MaxWaitTime <= 0 {
		settings.MaxWaitTime = defaults.MaxWaitTime
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaults.PollInterval
	}
	if settings.SubmitRetries <= 0 {
		settings.SubmitRetries = defaults.SubmitRetries
	}
	return settings
}

// trimSecrets strips whitespace pasted around credential values.
func trimSecrets(s domain.Secrets) domain.Secrets {
	s.Storage.AccessKey = strings.TrimSpace(s.Storage.AccessKey)
	s.Storage.SecretKey = strings.TrimSpace(s.Storage.SecretKey)
	s.Storage.Endpoint = strings.TrimSpace(s.Storage.Endpoint)
	s.Storage.Region = strings.TrimSpace(s.Storage.Region)
	s.Storage.Bucket = strings.TrimSpace(s.Storage.Bucket)
	s.Storage.Prefix = strings.TrimSpace(s.Storage.Prefix)
	s.Speech.AppID = strings.TrimSpace(s.Speech.AppID)
	s.Speech.AccessToken = strings.TrimSpace(s.Speech.AccessToken)
	s.Speech.ResourceID = strings.TrimSpace(s.Speech.ResourceID)
	s.Speech.BaseURL = strings.TrimSpace(s.Speech.BaseURL)
	return s
}

// transcriptionOptions maps settings seconds onto service options.
func transcriptionOptions(s domain.Settings) transcribe.Options {
	opts := transcribe.DefaultOptions()
	if s.SubmitRetries > 0 {
		opts.SubmitAttempts = s.SubmitRetries
	}
	if s.PollInterval > 0 {
		opts.PollInterval = time.Duration(s.PollInterval) * time.Second
	}
	if s.MaxWaitTime > 0 {
		opts.MaxWait = time.Duration(s.MaxWaitTime) * time.Second
	}
	return opts
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
