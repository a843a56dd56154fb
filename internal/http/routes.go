package httpx

import (
	"log/slog"
	"net/http"

	"github.com/loomchat/loom-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Outbox *service.OutboxService
	Auth   *service.AuthService
	Chats  *service.ChatService

	InternalKeys InternalAuthKeys
	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router. Worker-facing outbox
// routes sit behind the internal shared-secret guard; user-facing chat
// routes sit behind session auth; the auth flow itself is public.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	outboxHandlers := &OutboxHandlers{Svc: services.Outbox}
	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	chatHandlers := &ChatHandlers{Svc: services.Chats}

	registerOutboxRoutes(mux, outboxHandlers, services.InternalKeys, logger)
	registerAuthRoutes(mux, authHandlers, services.Auth)
	registerChatRoutes(mux, chatHandlers, services.Auth)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerOutboxRoutes(mux *http.ServeMux, h *OutboxHandlers, keys InternalAuthKeys, logger *slog.Logger) {
	guard := InternalAuth(keys, logger)
	mux.Handle("POST /api/internal/outbox/pull", guard(http.HandlerFunc(h.Pull)))
	mux.Handle("POST /api/internal/outbox/ack", guard(http.HandlerFunc(h.Ack)))
	mux.Handle("POST /api/internal/outbox/enqueue", guard(http.HandlerFunc(h.Enqueue)))
	mux.Handle("GET /api/internal/outbox/stats", guard(http.HandlerFunc(h.Stats)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, auth *service.AuthService) {
	mux.Handle("POST /api/auth/request-code", http.HandlerFunc(h.RequestCode))
	mux.Handle("POST /api/auth/verify", http.HandlerFunc(h.VerifyCode))
	mux.Handle("POST /api/auth/logout", http.HandlerFunc(h.Logout))
	mux.Handle("GET /api/auth/me", RequireSession(auth)(http.HandlerFunc(h.Me)))
}

func registerChatRoutes(mux *http.ServeMux, h *ChatHandlers, auth *service.AuthService) {
	requireSession := RequireSession(auth)
	mux.Handle("GET /api/chats", requireSession(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/chats", requireSession(http.HandlerFunc(h.Start)))
	mux.Handle("GET /api/chats/{id}/messages", requireSession(http.HandlerFunc(h.Messages)))
	mux.Handle("POST /api/chats/{id}/messages", requireSession(http.HandlerFunc(h.Post)))
}
