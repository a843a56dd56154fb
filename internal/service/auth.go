package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/loomchat/loom-api/internal/core"
	"github.com/loomchat/loom-api/internal/data"
	domainauth "github.com/loomchat/loom-api/internal/domain/auth"
	"github.com/loomchat/loom-api/internal/domain/model"
	domainoutbox "github.com/loomchat/loom-api/internal/domain/outbox"
	apperrors "github.com/loomchat/loom-api/internal/errors"
)

const (
	loginCodeLength = 6
	// loginCodeTTL mirrors the outbox auth-context TTL so a code that can
	// still be delivered can still be redeemed.
	loginCodeTTL = 12 * time.Minute

	// DefaultSessionTTL bounds how long a login survives without re-auth.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Sessions   core.SessionStore   // Required
	LoginCodes core.LoginCodeStore // Required
	Outbox     *OutboxService      // Required: delivers login codes via SMS
	SessionTTL time.Duration       // Optional: default 30 days
	Clock      data.TimeProvider   // Optional: clock override for tests
	Logger     *slog.Logger        // Optional
}

// AuthService implements SMS-code login and session management. Sessions are
// bound to the requesting client's user agent and IP prefix at creation.
type AuthService struct {
	sessions   core.SessionStore
	loginCodes core.LoginCodeStore
	outbox     *OutboxService
	sessionTTL time.Duration
	clock      data.TimeProvider
	logger     *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.LoginCodes == nil {
		return nil, errors.New("LoginCodeStore is required")
	}
	if opts.Outbox == nil {
		return nil, errors.New("OutboxService is required")
	}

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "auth_service")
	}

	return &AuthService{
		sessions:   opts.Sessions,
		loginCodes: opts.LoginCodes,
		outbox:     opts.Outbox,
		sessionTTL: ttl,
		clock:      clock,
		logger:     logger,
	}, nil
}

// RequestCode generates a one-time login code for the phone number and
// enqueues it as an auth-context outbox job. Stale codes are failed by the
// queue before dispatch, never delivered.
func (s *AuthService) RequestCode(ctx context.Context, phone string) error {
	normalized, ok := domainoutbox.NormalizePhoneE164(phone)
	if !ok {
		return apperrors.ValidationField("phone", "invalid phone number")
	}

	code, err := generateLoginCode()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate login code")
	}

	if err := s.loginCodes.SaveCode(ctx, normalized, code, loginCodeTTL); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "store login code")
	}

	_, err = s.outbox.Enqueue(ctx, &model.EnqueueOutboxRequest{
		PhoneE164: normalized,
		Message:   fmt.Sprintf("Your loom sign-in code is %s. It expires in 10 minutes.", code),
		Context:   model.ContextAuth,
	})
	if err != nil {
		return fmt.Errorf("enqueue login code: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "login code requested", "phone", normalized)
	}
	return nil
}

// VerifyParams carries everything needed to redeem a code and mint a session.
type VerifyParams struct {
	Phone     string
	Code      string
	TenantID  string
	UserAgent string
	IPPrefix  string
}

// VerifyCode redeems a login code. On success it creates and persists a
// client-bound session.
func (s *AuthService) VerifyCode(ctx context.Context, p VerifyParams) (*domainauth.Session, error) {
	normalized, ok := domainoutbox.NormalizePhoneE164(p.Phone)
	if !ok {
		return nil, apperrors.ValidationField("phone", "invalid phone number")
	}
	if p.Code == "" {
		return nil, apperrors.ValidationField("code", "code is required")
	}

	stored, err := s.loginCodes.ConsumeCode(ctx, normalized)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "load login code")
	}
	if stored == "" || stored != p.Code {
		return nil, apperrors.Unauthorized("invalid or expired code")
	}

	now := s.clock.Now().UTC()
	sess := domainauth.Session{
		ID:            newSessionID(),
		UserID:        normalized,
		TenantID:      p.TenantID,
		PhoneE164:     normalized,
		Role:          domainauth.RoleMember,
		UserAgentHash: domainauth.HashUserAgent(p.UserAgent),
		IPPrefix:      p.IPPrefix,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.sessionTTL),
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "persist session")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session created", "session_id", sess.ID, "tenant", sess.TenantID)
	}
	return &sess, nil
}

// GetSession loads a session and enforces its client binding.
func (s *AuthService) GetSession(ctx context.Context, id, userAgent, ipPrefix string) (*domainauth.Session, error) {
	if id == "" {
		return nil, apperrors.Unauthorized("missing session")
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "load session")
	}
	if sess.Expired(s.clock.Now()) {
		return nil, apperrors.Unauthorized("session expired")
	}
	if !sess.MatchesBinding(userAgent, ipPrefix) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "session binding mismatch", "session_id", sess.ID)
		}
		return nil, apperrors.Unauthorized("session binding mismatch")
	}
	return &sess, nil
}

// Logout deletes the session. Deleting an unknown session is not an error.
func (s *AuthService) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "delete session")
	}
	return nil
}

// generateLoginCode produces a zero-padded numeric one-time code.
func generateLoginCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < loginCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", loginCodeLength, n), nil
}

// newSessionID returns an opaque URL-safe session identifier.
func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("read random session id: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
