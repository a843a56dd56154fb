package httpx

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/loomchat/loom-api/internal/domain/auth"
)

// SessionCookieName is the cookie carrying the opaque session identifier.
const SessionCookieName = "loom_session"

// SessionService validates a session ID against the client binding captured
// at login. Implemented by service.AuthService.
type SessionService interface {
	GetSession(ctx context.Context, id, userAgent, ipPrefix string) (*domainauth.Session, error)
}

// sessionKey is an unexported context key type to avoid collisions across packages.
type sessionKey struct{}

// SetSessionInContext returns a child context carrying the given session.
// A nil session returns the original ctx unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session from context and whether one is present.
func SessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// RequireSession returns a middleware that rejects requests without a valid
// bound session. The session is validated against the caller's user agent
// and IP prefix, so a stolen cookie alone is not enough.
func RequireSession(auth SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFromRequest(r, auth)
			if session == nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			ctx := SetSessionInContext(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request, auth SessionService) *domainauth.Session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}

	session, err := auth.GetSession(r.Context(), cookie.Value, r.UserAgent(), ClientIPPrefix(r))
	if err != nil {
		return nil
	}
	return session
}
