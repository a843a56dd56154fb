package authmem

// Package authmem contains simple hand-written in-memory doubles for the
// auth ports. These are lightweight and suitable for unit tests without
// codegen or a running Redis.

import (
	"context"
	"sync"
	"time"

	"github.com/loomchat/loom-api/internal/core"
	domainauth "github.com/loomchat/loom-api/internal/domain/auth"
	"github.com/loomchat/loom-api/internal/errors"
)

// Ensure compile-time conformance to the core ports.
var (
	_ core.SessionStore   = (*MemorySessionStore)(nil)
	_ core.LoginCodeStore = (*MemoryLoginCodeStore)(nil)
)

// MemorySessionStore keeps sessions in a map guarded by a mutex.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// SaveErr, GetErr, DeleteErr force errors for failure-path tests.
	SaveErr   error
	GetErr    error
	DeleteErr error
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (s *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	if s.GetErr != nil {
		return domainauth.Session{}, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domainauth.Session{}, errors.NotFound("session not found")
	}
	return sess, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len reports the current number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type storedCode struct {
	code      string
	expiresAt time.Time
}

// MemoryLoginCodeStore keeps one-time login codes in memory with TTLs.
type MemoryLoginCodeStore struct {
	mu    sync.Mutex
	codes map[string]storedCode
	now   func() time.Time

	SaveErr    error
	ConsumeErr error
}

// NewMemoryLoginCodeStore creates an empty MemoryLoginCodeStore.
func NewMemoryLoginCodeStore() *MemoryLoginCodeStore {
	return &MemoryLoginCodeStore{
		codes: make(map[string]storedCode),
		now:   time.Now,
	}
}

// SetNow overrides the clock, for expiry tests.
func (s *MemoryLoginCodeStore) SetNow(now func() time.Time) {
	s.now = now
}

func (s *MemoryLoginCodeStore) SaveCode(_ context.Context, phoneE164, code string, ttl time.Duration) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phoneE164] = storedCode{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryLoginCodeStore) ConsumeCode(_ context.Context, phoneE164 string) (string, error) {
	if s.ConsumeErr != nil {
		return "", s.ConsumeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[phoneE164]
	if !ok {
		return "", nil
	}
	delete(s.codes, phoneE164)
	if s.now().After(stored.expiresAt) {
		return "", nil
	}
	return stored.code, nil
}
