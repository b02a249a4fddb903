// Package httpx provides the HTTP surface of the judge API: user routes for rooms,
// motions and verdicts, and worker routes for the job queue.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

const defaultClaimLimit = 1

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Jobs  *service.JobService
	Rooms *service.RoomService
	// MaxWait caps the long-poll wait of ClaimNext.
	MaxWait time.Duration
	Logger  *slog.Logger
}

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parseTypes reads the comma-delimited types query parameter.
func parseTypes(r *http.Request) []model.JobType {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}
	var out []model.JobType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, model.JobType(part))
		}
	}
	return out
}

// Get handles GET /api/jobs/{id}. Jobs tied to a room are visible to its members only.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Jobs.Get(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.checkMember(r.Context(), job, requester(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandlers) checkMember(ctx context.Context, job *model.Job, userID string) error {
	if job.RoomID == nil || h.Rooms == nil {
		return nil
	}
	room, err := h.Rooms.Get(ctx, *job.RoomID)
	if err != nil {
		return err
	}
	if !room.IsMember(userID) {
		return apperrors.Forbiddenf("user %s is not a member of room %s", userID, room.ID)
	}
	return nil
}

// Cancel handles POST /api/jobs/{id}/cancel.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.Jobs.Cancel(r.Context(), jobID, requester(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Next handles GET /api/jobs/next. It answers 204 when no job turned up within the
// requested wait (seconds, capped by MaxWait).
func (h *JobHandlers) Next(w http.ResponseWriter, r *http.Request) {
	wait := time.Duration(max(parseIntQuery(r, "wait", 0), 0)) * time.Second
	if h.MaxWait > 0 && wait > h.MaxWait {
		wait = h.MaxWait
	}

	jobs, err := h.Jobs.ClaimNext(r.Context(), service.ClaimParams{
		Types: parseTypes(r),
		Limit: parseIntQuery(r, "limit", defaultClaimLimit),
		Wait:  wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			// Client went away mid long-poll.
			return
		}
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if len(jobs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type beginRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
}

// Begin handles POST /api/jobs/{id}/begin. The worker id defaults to the authenticated
// worker identity; a body worker_id is appended to it to tell replicas apart.
func (h *JobHandlers) Begin(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req beginRequest
	if !DecodeOptionalJSON(w, r, &req) {
		return
	}
	workerID, _ := WorkerIDFromContext(r.Context())
	if instance := strings.TrimSpace(req.WorkerID); instance != "" && instance != workerID {
		workerID += "/" + instance
	}

	job, err := h.Jobs.BeginExecution(r.Context(), jobID, workerID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

type progressRequest struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// Progress handles POST /api/jobs/{id}/progress.
func (h *JobHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req progressRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.Jobs.UpdateProgress(r.Context(), jobID, req.Step, req.Total)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

type completeRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// Complete handles POST /api/jobs/{id}/complete.
func (h *JobHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req completeRequest
	if !DecodeOptionalJSON(w, r, &req) {
		return
	}
	job, err := h.Jobs.CompleteExecution(r.Context(), jobID, req.Result)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

type failRequest struct {
	Error     string `json:"error"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// Fail handles POST /api/jobs/{id}/fail.
func (h *JobHandlers) Fail(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req failRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Error) == "" {
		writeServiceError(w, r, h.Logger, apperrors.ValidationField("error", "error message is required"))
		return
	}
	job, err := h.Jobs.FailExecution(r.Context(), jobID, service.FailParams{Message: req.Error, Retryable: req.Retryable})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Stats handles GET /api/jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Jobs.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
