// Package credential holds the locally cached bearer token and identity and
// mirrors them to durable storage on every mutation.
package credential

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sobandev/careerpilot-ai/internal/domain"
)

// Storage keys for the persisted credential values.
const (
	TokenKey    = "cp_token"
	IdentityKey = "cp_user"
)

// Store is the single source of truth for the token and cached identity.
// Clearing is always applied to both values in one critical section.
type Store struct {
	mu       sync.RWMutex
	token    string
	identity *domain.Identity

	storage  domain.Storage
	degraded bool
	logger   *slog.Logger
}

// NewStore creates a store and eagerly loads any persisted credentials.
func NewStore(storage domain.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}

	s := &Store{storage: storage, logger: logger}
	s.load()
	return s
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.storage.Load()
	if err != nil {
		s.degradeLocked("load", err)
		return
	}

	s.token = values[TokenKey]
	if raw := values[IdentityKey]; raw != "" {
		var id domain.Identity
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			s.logger.Warn("discarding unreadable cached identity", "error", err)
			return
		}
		s.identity = &id
	}

	s.logger.Debug("credentials loaded",
		"has_token", s.token != "",
		"has_identity", s.identity != nil)
}

// Token returns the current bearer token, or "" when none is held.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Identity returns a copy of the cached identity.
func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

// SetToken stores token and writes it through to storage. An empty token
// clears the cached identity as well.
func (s *Store) SetToken(token string) {
	if token == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.persistLocked()
}

// SetIdentity replaces the cached identity.
func (s *Store) SetIdentity(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = &id
	s.persistLocked()
}

// SetSession stores the token and identity returned by a login in one step.
func (s *Store) SetSession(token string, id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.identity = &id
	s.persistLocked()
}

// Clear removes both the token and the cached identity.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.identity = nil
	s.persistLocked()
}

// Persistent reports whether mutations still reach durable storage.
func (s *Store) Persistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.degraded
}

func (s *Store) persistLocked() {
	if s.degraded {
		return
	}

	values := make(map[string]string, 2)
	if s.token != "" {
		values[TokenKey] = s.token
	}
	if s.identity != nil {
		raw, err := json.Marshal(s.identity)
		if err != nil {
			s.logger.Warn("failed to encode cached identity", "error", err)
		} else {
			values[IdentityKey] = string(raw)
		}
	}

	if err := s.storage.Save(values); err != nil {
		s.degradeLocked("save", err)
	}
}

// degradeLocked switches the store to memory-only operation for the rest of
// the process.
func (s *Store) degradeLocked(op string, err error) {
	s.degraded = true
	s.logger.Warn("credential storage unavailable, continuing in memory",
		"op", op,
		"error", fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err))
}
