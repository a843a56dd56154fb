package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/loomchat/loom-api/internal/domain/auth"
	"github.com/loomchat/loom-api/internal/service"
)

var errMissingSession = errors.New("no session in request context")

// AuthHandlers provides HTTP handlers for the SMS-code login flow.
type AuthHandlers struct {
	Svc          *service.AuthService
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

// RequestCode issues a one-time sign-in code over SMS.
// POST /api/auth/request-code.
func (h *AuthHandlers) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.RequestCode(r.Context(), req.Phone); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type verifyCodeRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	TenantID string `json:"tenantId,omitempty"`
}

// VerifyCode redeems a sign-in code. On success the session cookie is set
// and the session is bound to this client's user agent and IP prefix.
// POST /api/auth/verify.
func (h *AuthHandlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	session, err := h.Svc.VerifyCode(r.Context(), service.VerifyParams{
		Phone:     req.Phone,
		Code:      req.Code,
		TenantID:  req.TenantID,
		UserAgent: r.UserAgent(),
		IPPrefix:  ClientIPPrefix(r),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.setSessionCookie(w, r, *session)
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"session": map[string]any{
			"userId":    session.UserID,
			"tenantId":  session.TenantID,
			"phoneE164": session.PhoneE164,
			"role":      session.Role,
			"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// Logout invalidates the server-side session and clears the cookie.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), cookie.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}
	h.clearSessionCookie(w, r)
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Me returns the authenticated caller's session, for client bootstrapping.
// GET /api/auth/me (behind RequireSession).
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errMissingSession,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"session": map[string]any{
			"userId":    session.UserID,
			"tenantId":  session.TenantID,
			"phoneE164": session.PhoneE164,
			"role":      session.Role,
			"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}

func (h *AuthHandlers) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
