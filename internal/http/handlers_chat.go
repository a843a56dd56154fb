package httpx

import (
	"net/http"
	"strconv"

	"github.com/loomchat/loom-api/internal/service"
)

const defaultMessagePageSize = 50

// ChatHandlers provides the session-scoped chat endpoints. Every handler
// derives tenant and user from the request's session; chat IDs from other
// tenants read as not found.
type ChatHandlers struct {
	Svc *service.ChatService
}

// List returns the caller's chats.
// GET /api/chats.
func (h *ChatHandlers) List(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errMissingSession})
		return
	}

	chats, err := h.Svc.List(r.Context(), session.TenantID, session.UserID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "chats": chats})
}

type startChatRequest struct {
	Title string `json:"title,omitempty"`
}

// Start creates a chat.
// POST /api/chats.
func (h *ChatHandlers) Start(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errMissingSession})
		return
	}

	var req startChatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	chat, err := h.Svc.Start(r.Context(), session.TenantID, session.UserID, req.Title)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "chat": chat})
}

// Messages lists the most recent messages of a chat.
// GET /api/chats/{id}/messages?limit=N.
func (h *ChatHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errMissingSession})
		return
	}

	limit := defaultMessagePageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	msgs, err := h.Svc.Messages(r.Context(), session.TenantID, session.UserID, r.PathValue("id"), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})
}

type postMessageRequest struct {
	Body string `json:"body"`
}

// Post appends a message to a chat.
// POST /api/chats/{id}/messages.
func (h *ChatHandlers) Post(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errMissingSession})
		return
	}

	var req postMessageRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Svc.Post(r.Context(), session.TenantID, session.UserID, r.PathValue("id"), req.Body)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "message": msg})
}
