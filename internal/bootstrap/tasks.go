package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/jobs"
	"audio-workbench/internal/lanes"
	"audio-workbench/internal/media"
)

// laneBody is the work of one lane task.
type laneBody func(ctx context.Context, r jobs.Reporter, env lanes.Env) (any, error)

// StartExtraction extracts and splits the audio of a video or a directory of videos.
func (a *App) StartExtraction(req lanes.ExtractionRequest) (domain.Task, error) {
	if err := requirePath("input", req.Input); err != nil {
		return domain.Task{}, err
	}
	settings, err := a.taskSettings()
	if err != nil {
		return domain.Task{}, err
	}
	transcoder, err := a.Backends.Transcoder(context.Background(), settings, a.logger())
	if err != nil {
		return domain.Task{}, err
	}
	a.rememberInputDir(req.Input)

	return a.start(domain.LaneExtraction, func(ctx context.Context, r jobs.Reporter, env lanes.Env) (any, error) {
		observeCommands(transcoder, r)
		lane := &lanes.Extraction{Transcoder: transcoder, Settings: settings, Env: env}
		return lane.Run(ctx, req, r)
	})
}

// StartSplit cuts one audio file into segments.
func (a *App) StartSplit(req lanes.SplitRequest) (domain.Task, error) {
	if err := requirePath("input", req.Input); err != nil {
		return domain.Task{}, err
	}
	settings, err := a.taskSettings()
	if err != nil {
		return domain.Task{}, err
	}
	if req.SegmentSeconds == 0 {
		req.SegmentSeconds = settings.SegmentDuration
	}
	if req.NameTemplate == "" {
		req.NameTemplate = settings.SplitNameTemplate
	}
	transcoder, err := a.Backends.Transcoder(context.Background(), settings, a.logger())
	if err != nil {
		return domain.Task{}, err
	}
	a.rememberInputDir(req.Input)

	return a.start(domain.LaneSplitting, func(ctx context.Context, r jobs.Reporter, env lanes.Env) (any, error) {
		observeCommands(transcoder, r)
		lane := &lanes.Split{Transcoder: transcoder, Env: env}
		return lane.Run(ctx, req, r)
	})
}

// StartUpload puts local audio files into object storage.
func (a *App) StartUpload(req lanes.UploadRequest) (domain.Task, error) {
	if len(req.Paths) == 0 {
		return domain.Task{}, batch.ErrEmptyWorkList
	}
	secrets, err := a.GetSecrets()
	if err != nil {
		return domain.Task{}, err
	}
	uploader, err := a.Backends.Storage(secrets.Storage, a.logger())
	if err != nil {
		return domain.Task{}, err
	}

	return a.start(domain.LaneUpload, func(ctx context.Context, r jobs.Reporter, env lanes.Env) (any, error) {
		lane := &lanes.Upload{Uploader: uploader, Env: env}
		return lane.Run(ctx, req, r)
	})
}

// StartTranscription transcribes public audio URLs.
func (a *App) StartTranscription(req lanes.TranscriptionRequest) (domain.Task, error) {
	if len(req.URLs) == 0 {
		return domain.Task{}, batch.ErrEmptyWorkList
	}
	settings, err := a.taskSettings()
	if err != nil {
		return domain.Task{}, err
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		req.OutputDir = filepath.Join(settings.OutputDir, "transcripts_"+time.Now().Format("20060102_150405"))
	}
	secrets, err := a.GetSecrets()
	if err != nil {
		return domain.Task{}, err
	}
	transcriber, err := a.Backends.Transcriber(settings, secrets.Speech, a.logger())
	if err != nil {
		return domain.Task{}, err
	}

	return a.start(domain.LaneTranscription, func(ctx context.Context, r jobs.Reporter, env lanes.Env) (any, error) {
		lane := &lanes.Transcription{Transcriber: transcriber, Env: env}
		return lane.Run(ctx, req, r)
	})
}

// Cancel requests cooperative cancellation of the task running on lane.
func (a *App) Cancel(lane domain.Lane) error {
	taskID, err := a.Jobs.Cancel(lane)
	if err != nil {
		return err
	}

	a.mu.Lock()
	handle := a.handles[lane]
	a.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}

	a.publishStatus(lane, taskID, domain.TaskStatusRunning, "Cancellation requested")
	return nil
}

// start registers a task on lane and runs body on its own goroutine.
func (a *App) start(lane domain.Lane, body laneBody) (domain.Task, error) {
	taskID := uuid.NewString()
	if err := a.Jobs.Start(lane, taskID); err != nil {
		return domain.Task{}, err
	}

	logger := a.logger().With("lane", lane, "task_id", taskID)
	env := lanes.Env{
		Logger: logger,
		OnItem: func(index int, item domain.WorkItem) {
			snapshot := domain.BatchResult{Items: []domain.WorkItem{item}}.Clone().Items[0]
			a.publishEvent(jobs.Event{
				TaskID:  taskID,
				Lane:    lane,
				Type:    jobs.EventTypeItem,
				Message: fmt.Sprintf("%s: %s", item.Name, item.Status),
				Item:    &snapshot,
			})
		},
	}

	handle := jobs.Spawn(context.Background(), 256, func(ctx context.Context, r jobs.Reporter) (any, error) {
		return body(ctx, r, env)
	})

	a.register(lane, taskID, handle)

	logger.Info("task started")
	a.publishStatus(lane, taskID, domain.TaskStatusRunning, "Task started")
	a.drains.Add(1)
	go func() {
		defer a.drains.Done()
		a.drain(lane, taskID, handle)
	}()
	return a.Jobs.Current(lane), nil
}

// register stores handle as the running task of lane. A Cancel that
// arrived between Jobs.Start and registration is applied here.
func (a *App) register(lane domain.Lane, taskID string, handle *jobs.Handle) {
	a.mu.Lock()
	if a.handles == nil {
		a.handles = make(map[domain.Lane]*jobs.Handle)
	}
	a.handles[lane] = handle
	a.mu.Unlock()

	if current := a.Jobs.Current(lane); current.ID == taskID && current.CancelRequested {
		handle.Cancel()
	}
}

// drain forwards task updates into the event bus, then applies the completion.
func (a *App) drain(lane domain.Lane, taskID string, handle *jobs.Handle) {
	for update := range handle.Updates() {
		switch update.Kind {
		case jobs.UpdateProgress:
			a.Jobs.Progress(lane, taskID, update.Percent, update.Message)
			a.publishEvent(jobs.Event{
				TaskID:  taskID,
				Lane:    lane,
				Type:    jobs.EventTypeProgress,
				Status:  domain.TaskStatusRunning,
				Percent: update.Percent,
				Message: update.Message,
			})
			a.mirror(lane)
		case jobs.UpdateLog:
			a.publishEvent(jobs.Event{
				TaskID:  taskID,
				Lane:    lane,
				Type:    jobs.EventTypeLog,
				Level:   update.Level,
				Message: update.Message,
			})
		}
	}

	a.complete(lane, taskID, handle.Completion())

	a.mu.Lock()
	if a.handles[lane] == handle {
		delete(a.handles, lane)
	}
	a.mu.Unlock()
}

// complete maps a task completion onto lane status, events and history.
func (a *App) complete(lane domain.Lane, taskID string, c jobs.Completion) {
	logger := a.logger().With("lane", lane, "task_id", taskID)
	result, hasResult := batchOf(c.Result)

	status := domain.TaskStatusDone
	message := "Task completed"
	switch {
	case c.Cancelled:
		status = domain.TaskStatusCancelled
		message = "Task cancelled"
	case !c.Success:
		status = domain.TaskStatusFailed
		message = "Task failed"
		a.publishFailure(lane, taskID, c.Err)
	}
	if hasResult {
		message = fmt.Sprintf("%s: %d succeeded, %d failed", message, result.SuccessCount, result.FailCount)
		if result.SummaryError != "" {
			message += " (summary failed: " + result.SummaryError + ")"
		}
	}

	if hasResult && a.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Archive.Record(ctx, result); err != nil {
			logger.Error("record batch history", "error", err)
		}
		cancel()
	}

	if err := a.Jobs.Finish(lane, taskID, status, message); err != nil {
		logger.Error("finish task", "error", err)
	}
	a.publishStatus(lane, taskID, status, message)
	if hasResult {
		a.publishEvent(jobs.Event{
			TaskID:  taskID,
			Lane:    lane,
			Type:    jobs.EventTypeResult,
			Status:  status,
			Message: message,
			Result:  c.Result,
		})
	}

	logger.Info("task finished", "status", status, "message", message)
}

// publishFailure emits the error and, for transcoder failures, the failed command.
func (a *App) publishFailure(lane domain.Lane, taskID string, err error) {
	if err == nil {
		return
	}
	a.publishEvent(jobs.Event{
		TaskID:  taskID,
		Lane:    lane,
		Type:    jobs.EventTypeError,
		Status:  domain.TaskStatusFailed,
		Message: err.Error(),
	})

	var cmdErr *media.CommandError
	if errors.As(err, &cmdErr) && cmdErr.CommandLog.Command != "" {
		a.publishEvent(jobs.Event{
			TaskID:   taskID,
			Lane:     lane,
			Type:     jobs.EventTypeLog,
			Level:    "error",
			Message:  "Failed command",
			Command:  cmdErr.CommandLog.Command,
			Args:     cmdErr.CommandLog.Args,
			ExitCode: cmdErr.CommandLog.ExitCode,
			Stderr:   cmdErr.CommandLog.Stderr,
		})
	}
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(lane domain.Lane, taskID string, status domain.TaskStatus, message string) {
	a.publishEvent(jobs.Event{
		TaskID:  taskID,
		Lane:    lane,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
	a.mirror(lane)
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx, emit := a.runtimeCtx, a.emit
	a.mu.Unlock()
	if ctx != nil && emit != nil {
		emit(ctx, EventName, published)
	}
}

// mirror pushes the lane snapshot to the status mirror, if configured.
func (a *App) mirror(lane domain.Lane) {
	if a.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Mirror.Publish(ctx, a.Jobs.Current(lane)); err != nil {
		a.logger().Debug("mirror lane status", "lane", lane, "error", err)
	}
}

// taskSettings returns the settings snapshot handed to a new task.
func (a *App) taskSettings() (domain.Settings, error) {
	settings, err := a.GetSettings()
	if err != nil {
		return domain.Settings{}, err
	}
	return normalizeSettings(settings), nil
}

// rememberInputDir records the directory of path as the last input location.
func (a *App) rememberInputDir(path string) {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	settings := a.currentSettings()
	if settings.LastInputDir == dir {
		return
	}
	settings.LastInputDir = dir
	if err := a.Store.Save(settings); err != nil {
		a.logger().Warn("save last input directory", "error", err)
		return
	}
	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()
}

// Close releases the history database.
func (a *App) Close() error {
	a.Shutdown()
	if closer, ok := a.Archive.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// observeCommands forwards transcoder command logs to the task log stream.
func observeCommands(t lanes.Transcoder, r jobs.Reporter) {
	observable, ok := t.(interface{ OnCommand(func(media.CommandLog)) })
	if !ok {
		return
	}
	observable.OnCommand(func(log media.CommandLog) {
		level := "debug"
		if log.ExitCode != 0 {
			level = "warn"
		}
		r.Log(level, fmt.Sprintf("%s exited %d", filepath.Base(log.Command), log.ExitCode))
	})
}

// batchOf extracts the batch report from a lane result. Results of tasks
// that failed before any item ran carry no batch ID and are ignored.
func batchOf(result any) (domain.BatchResult, bool) {
	var r domain.BatchResult
	switch v := result.(type) {
	case domain.BatchResult:
		r = v
	case lanes.SplitResult:
		r = v.BatchResult
	}
	return r, r.ID != ""
}

// requirePath validates that path names an existing file or directory.
func requirePath(field, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return &domain.ValidationError{Field: field, Message: "path is required"}
	}
	if _, err := os.Stat(path); err != nil {
		return &domain.ValidationError{Field: field, Message: err.Error()}
	}
	return nil
}
