// Package session tracks who the user is and keeps the cached identity
// consistent with the server's view of the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/sobandev/careerpilot-ai/internal/apiclient"
	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
)

// Identity backend endpoints.
const (
	LoginPath    = "/api/auth/login"
	RegisterPath = "/api/auth/register"
	MePath       = "/api/auth/me"
	LogoutPath   = "/api/auth/logout"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is what a view observes: the state and the identity it may show.
// During hydration the identity is the cached hint, not yet verified.
type Snapshot struct {
	State       State
	Identity    domain.Identity
	HasIdentity bool
}

// Session is the application-wide authentication state.
type Session struct {
	client *apiclient.Client
	store  *credential.Store
	logger *slog.Logger

	bootstrapped atomic.Bool

	mu        sync.RWMutex
	current   Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

// New creates a session over client and store. Requests that end in
// ErrSessionExpired move the session to StateUnauthenticated.
func New(client *apiclient.Client, store *credential.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		client:    client,
		store:     store,
		logger:    logger,
		listeners: make(map[int]func(Snapshot)),
	}
	client.OnSessionExpired(s.expire)
	return s
}

// Bootstrap hydrates the session from the cached identity and then verifies
// it with the server. It runs once per Session.
//
// Whatever the outcome the final state is Authenticated or Unauthenticated
// when Bootstrap returns. Rejection and an empty identity are ordinary
// outcomes; only unexpected failures (transport, server errors) are returned.
func (s *Session) Bootstrap(ctx context.Context) error {
	if !s.bootstrapped.CompareAndSwap(false, true) {
		return domain.ErrAlreadyBootstrapped
	}

	cached, ok := s.store.Identity()
	s.transition(Snapshot{State: StateHydrating, Identity: cached, HasIdentity: ok})
	s.logger.DebugContext(ctx, "verifying session", "cached_identity", ok)

	var me *domain.Identity
	err := s.client.Do(ctx, apiclient.Request{Path: MePath}, &me)
	if err == nil && me != nil && me.ID != "" {
		s.store.SetIdentity(*me)
		s.transition(Snapshot{State: StateAuthenticated, Identity: *me, HasIdentity: true})
		s.logger.InfoContext(ctx, "session verified", "user_id", me.ID, "role", me.Role)
		return nil
	}

	s.store.Clear()
	s.transition(Snapshot{State: StateUnauthenticated})

	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "no active session")
		return nil
	case errors.Is(err, domain.ErrSessionExpired):
		s.logger.InfoContext(ctx, "cached session rejected by server")
		return nil
	default:
		s.logger.WarnContext(ctx, "session verification failed", "error", err)
		return fmt.Errorf("verifying session: %w", err)
	}
}

// Login authenticates with email and password and stores the new session.
// A failed login leaves the session unchanged.
func (s *Session) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	var res domain.LoginResult
	err := s.client.Do(ctx, apiclient.Request{
		Method:       http.MethodPost,
		Path:         LoginPath,
		Body:         domain.Credentials{Email: email, Password: password},
		SkipRecovery: true,
	}, &res)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("login: %w", err)
	}
	if res.User.ID == "" {
		return domain.Identity{}, fmt.Errorf("login: response carried no user")
	}

	s.store.SetSession(res.AccessToken, res.User)
	s.transition(Snapshot{State: StateAuthenticated, Identity: res.User, HasIdentity: true})
	s.logger.InfoContext(ctx, "logged in", "user_id", res.User.ID, "role", res.User.Role)
	return res.User, nil
}

// Register creates an account and then logs in with the same credentials.
func (s *Session) Register(ctx context.Context, reg domain.Registration) (domain.Identity, error) {
	if reg.Role == "" {
		reg.Role = domain.RoleJobseeker
	}
	if !reg.Role.Valid() {
		return domain.Identity{}, fmt.Errorf("register: unknown role %q", reg.Role)
	}

	var res domain.RegisterResult
	err := s.client.Do(ctx, apiclient.Request{
		Method:       http.MethodPost,
		Path:         RegisterPath,
		Body:         reg,
		SkipRecovery: true,
	}, &res)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("register: %w", err)
	}
	s.logger.InfoContext(ctx, "account registered", "user_id", res.UserID)

	return s.Login(ctx, reg.Email, reg.Password)
}

// Logout drops the local session first and then tells the server. The
// server call is best effort and its failure is only logged.
func (s *Session) Logout(ctx context.Context) {
	token := s.store.Token()
	s.store.Clear()
	s.transition(Snapshot{State: StateUnauthenticated})

	req := apiclient.Request{
		Method:       http.MethodPost,
		Path:         LogoutPath,
		SkipRecovery: true,
	}
	if token != "" {
		req.Header = http.Header{"Authorization": {"Bearer " + token}}
	}
	if err := s.client.Do(ctx, req, nil); err != nil {
		s.logger.WarnContext(ctx, "server logout failed", "error", err)
	}

	s.client.ResetCookies()
	s.logger.InfoContext(ctx, "logged out")
}

// Current returns the latest snapshot.
func (s *Session) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.Current().State
}

// Subscribe registers fn to receive every snapshot change. The returned
// function removes the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) expire() {
	s.transition(Snapshot{State: StateUnauthenticated})
	s.logger.Info("session expired")
}

// transition installs next and notifies listeners outside the lock.
// Repeating the current snapshot is not a change.
func (s *Session) transition(next Snapshot) {
	s.mu.Lock()
	if s.current == next {
		s.mu.Unlock()
		return
	}
	s.current = next
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}
