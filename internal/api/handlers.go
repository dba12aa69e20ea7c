package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"audio-workbench/internal/batch"
	"audio-workbench/internal/domain"
	"audio-workbench/internal/jobs"
	"audio-workbench/internal/lanes"
	"audio-workbench/internal/media"
)

type handler struct {
	c            Controller
	historyLimit int
	logger       *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *handler) listLanes(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.c.Lanes(), http.StatusOK)
}

// startLane decodes the lane-specific request body and starts a task.
func (h *handler) startLane(w http.ResponseWriter, r *http.Request) {
	lane := domain.Lane(chi.URLParam(r, "lane"))

	var (
		task domain.Task
		err  error
	)
	switch lane {
	case domain.LaneExtraction:
		var req lanes.ExtractionRequest
		if !decode(w, r, &req) {
			return
		}
		task, err = h.c.StartExtraction(req)
	case domain.LaneSplitting:
		var req lanes.SplitRequest
		if !decode(w, r, &req) {
			return
		}
		task, err = h.c.StartSplit(req)
	case domain.LaneUpload:
		var req lanes.UploadRequest
		if !decode(w, r, &req) {
			return
		}
		task, err = h.c.StartUpload(req)
	case domain.LaneTranscription:
		var req lanes.TranscriptionRequest
		if !decode(w, r, &req) {
			return
		}
		task, err = h.c.StartTranscription(req)
	default:
		err = jobs.ErrUnknownLane
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonResponse(w, task, http.StatusAccepted)
}

func (h *handler) cancelLane(w http.ResponseWriter, r *http.Request) {
	lane := domain.Lane(chi.URLParam(r, "lane"))
	if !lane.Valid() {
		h.fail(w, jobs.ErrUnknownLane)
		return
	}
	if err := h.c.Cancel(lane); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// events returns events newer than the since query parameter.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			jsonError(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = v
	}
	events := h.c.Events(since)
	if events == nil {
		events = []jobs.Event{}
	}
	jsonResponse(w, events, http.StatusOK)
}

func (h *handler) batches(w http.ResponseWriter, r *http.Request) {
	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = v
	}
	results, err := h.c.History(limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if results == nil {
		results = []domain.BatchResult{}
	}
	jsonResponse(w, results, http.StatusOK)
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.c.GetSettings()
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonResponse(w, settings, http.StatusOK)
}

func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if !decode(w, r, &settings) {
		return
	}
	saved, err := h.c.SaveSettings(settings)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonResponse(w, saved, http.StatusOK)
}

func (h *handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.c.GetDiagnostics(), http.StatusOK)
}

func (h *handler) refreshDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := h.c.RefreshDiagnostics()
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonResponse(w, report, http.StatusOK)
}

// fail maps controller errors onto HTTP status codes.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	jsonError(w, err.Error(), status)
}

func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, batch.ErrEmptyWorkList):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrUnknownLane):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrLaneBusy), errors.Is(err, jobs.ErrNoRunningTask):
		return http.StatusConflict
	case errors.Is(err, media.ErrTranscoderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
