package httpx

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
// Stack traces go to the log, never into the response body.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal_error",
						Err:     errors.New("internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuthKeys holds the shared-secret credentials accepted on internal
// endpoints: the primary key plus any rotated keys still being phased out.
type InternalAuthKeys struct {
	Primary string
	Rotated []string
}

func (k InternalAuthKeys) accepted() []string {
	keys := make([]string, 0, 1+len(k.Rotated))
	if k.Primary != "" {
		keys = append(keys, k.Primary)
	}
	for _, r := range k.Rotated {
		if r != "" {
			keys = append(keys, r)
		}
	}
	return keys
}

// InternalAuth guards worker-facing endpoints with a shared secret. The
// credential may arrive as "Authorization: Bearer <key>" or as
// "X-Internal-Key: <key>"; the first header present wins. It fails closed:
// with no keys configured every request is rejected as 503 so operators can
// tell "nobody can use this" apart from "someone tried and failed" (401).
func InternalAuth(keys InternalAuthKeys, logger *slog.Logger) func(http.Handler) http.Handler {
	accepted := keys.accepted()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(accepted) == 0 {
				if logger != nil {
					logger.Error("internal api key not configured", slog.String("path", r.URL.Path))
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "not_configured",
					Err:     errors.New("internal api key not configured"),
				})
				return
			}

			credential, ok := extractInternalCredential(r)
			if !ok || !matchesAnyKey(credential, accepted) {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "unauthorized",
					Err:     errors.New("invalid internal credential"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractInternalCredential accepts either header convention; first match wins.
func extractInternalCredential(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return auth[len(prefix):], true
		}
		return "", false
	}
	if key := r.Header.Get("X-Internal-Key"); key != "" {
		return key, true
	}
	return "", false
}

// matchesAnyKey compares in constant time against every accepted key. Every
// candidate is checked regardless of earlier matches so timing does not
// reveal which key (if any) matched.
func matchesAnyKey(credential string, accepted []string) bool {
	matched := false
	for _, key := range accepted {
		if subtle.ConstantTimeCompare([]byte(credential), []byte(key)) == 1 {
			matched = true
		}
	}
	return matched
}

// ClientIPPrefix derives the binding prefix from the request's remote
// address: the first three octets for IPv4, the first four groups for IPv6.
func ClientIPPrefix(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return strings.Join(strings.Split(v4.String(), ".")[:3], ".")
	}
	parts := strings.Split(ip.String(), ":")
	if len(parts) < 4 {
		return ip.String()
	}
	return strings.Join(parts[:4], ":")
}
