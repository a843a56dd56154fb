package httpx

import (
	"net/http"
	"time"

	"github.com/loomchat/loom-api/internal/domain/model"
	"github.com/loomchat/loom-api/internal/service"
)

// OutboxHandlers exposes the worker-facing queue contract: pull claims a
// batch, ack reports delivery outcomes. Both sit behind the internal auth
// guard, not behind user sessions.
type OutboxHandlers struct {
	Svc *service.OutboxService
}

type pullRequest struct {
	Limit    int    `json:"limit,omitempty"`
	WorkerID string `json:"workerId,omitempty"`
}

type pullResponse struct {
	OK       bool              `json:"ok"`
	Jobs     []model.PulledJob `json:"jobs"`
	Pulled   int               `json:"pulled"`
	WorkerID string            `json:"workerId"`
}

// Pull claims up to limit pending jobs for the calling worker. An empty
// batch is a normal 200 response.
func (h *OutboxHandlers) Pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.Svc.Pull(r.Context(), req.Limit, req.WorkerID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, pullResponse{
		OK:       true,
		Jobs:     result.Jobs,
		Pulled:   result.Pulled,
		WorkerID: result.WorkerID,
	})
}

type ackRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ackResponse struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	Exhausted bool   `json:"exhausted,omitempty"`
	RetryInMs int64  `json:"retryInMs,omitempty"`
	RetryAt   string `json:"retryAt,omitempty"`
}

// Ack records a delivery outcome reported by a worker.
func (h *OutboxHandlers) Ack(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.Svc.Ack(r.Context(), req.ID, req.Status, req.Error)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	resp := ackResponse{
		OK:        true,
		Status:    string(outcome.Status),
		Exhausted: outcome.Exhausted,
		RetryInMs: outcome.RetryInMs,
	}
	if outcome.RetryAt != nil {
		resp.RetryAt = outcome.RetryAt.UTC().Format(time.RFC3339Nano)
	}
	WriteJSON(w, http.StatusOK, resp)
}

type enqueueRequest struct {
	PhoneE164   string `json:"phoneE164"`
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"`
	MaxAttempts int    `json:"maxAttempts,omitempty"`
}

// Enqueue inserts a pending job. Internal surface for sibling services that
// need to send SMS without going through the auth flow.
func (h *OutboxHandlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Enqueue(r.Context(), &model.EnqueueOutboxRequest{
		PhoneE164:   req.PhoneE164,
		Message:     req.Message,
		Context:     req.Context,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "job": job})
}

// Stats reports per-status job counts, for dashboards and smoke checks.
func (h *OutboxHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "stats": stats})
}
