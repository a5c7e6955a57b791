package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobandev/careerpilot-ai/internal/apiclient"
	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/stubserver"
)

var ada = domain.Identity{
	ID:       "user-123",
	Email:    "ada@example.com",
	FullName: "Ada Lovelace",
	Role:     domain.RoleJobseeker,
}

type fixture struct {
	session *Session
	client  *apiclient.Client
	store   *credential.Store
	storage *credential.MemoryStorage
}

func newFixture(t *testing.T, baseURL string, seed map[string]string) *fixture {
	t.Helper()
	storage := credential.NewMemoryStorage()
	if seed != nil {
		require.NoError(t, storage.Save(seed))
	}
	store := credential.NewStore(storage, slog.Default())
	client, err := apiclient.NewClient(apiclient.Config{BaseURL: baseURL}, store, slog.Default(), nil)
	require.NoError(t, err)
	return &fixture{
		session: New(client, store, slog.Default()),
		client:  client,
		store:   store,
		storage: storage,
	}
}

func cachedSession(t *testing.T, token string, id domain.Identity) map[string]string {
	t.Helper()
	raw, err := json.Marshal(id)
	require.NoError(t, err)
	return map[string]string{credential.TokenKey: token, credential.IdentityKey: string(raw)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newStub(t *testing.T) (*stubserver.Server, *httptest.Server) {
	t.Helper()
	stub, err := stubserver.New(stubserver.Config{Secret: "session-test", Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(ts.Close)
	return stub, ts
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "hydrating", StateHydrating.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestSession_Bootstrap(t *testing.T) {
	t.Run("rejected cached token ends unauthenticated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok_A", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
		}))
		defer server.Close()

		f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))

		require.NoError(t, f.session.Bootstrap(context.Background()))

		assert.Equal(t, StateUnauthenticated, f.session.State())
		assert.False(t, f.session.Current().HasIdentity)
		assert.Empty(t, f.store.Token())
		persisted, err := f.storage.Load()
		require.NoError(t, err)
		assert.Empty(t, persisted, "durable storage holds no token")
	})

	t.Run("verified identity replaces the cached hint", func(t *testing.T) {
		fresh := ada
		fresh.FullName = "Augusta Ada King"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, fresh)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))

		require.NoError(t, f.session.Bootstrap(context.Background()))

		snap := f.session.Current()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, "Augusta Ada King", snap.Identity.FullName)
		cached, ok := f.store.Identity()
		require.True(t, ok)
		assert.Equal(t, "Augusta Ada King", cached.FullName)
		assert.Equal(t, "tok_A", f.store.Token())
	})

	t.Run("null identity ends unauthenticated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, nil)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))

		require.NoError(t, f.session.Bootstrap(context.Background()))
		assert.Equal(t, StateUnauthenticated, f.session.State())
		assert.Empty(t, f.store.Token())
	})

	t.Run("record without id ends unauthenticated", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"email": "ada@example.com"})
		}))
		defer server.Close()

		f := newFixture(t, server.URL, nil)

		require.NoError(t, f.session.Bootstrap(context.Background()))
		assert.Equal(t, StateUnauthenticated, f.session.State())
	})

	t.Run("server failure is returned after clearing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "maintenance"})
		}))
		defer server.Close()

		f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))

		err := f.session.Bootstrap(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRequestFailed)
		assert.Equal(t, StateUnauthenticated, f.session.State())
		assert.Empty(t, f.store.Token())
	})

	t.Run("runs once", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, ada)
		}))
		defer server.Close()

		f := newFixture(t, server.URL, nil)
		require.NoError(t, f.session.Bootstrap(context.Background()))
		assert.ErrorIs(t, f.session.Bootstrap(context.Background()), domain.ErrAlreadyBootstrapped)
	})
}

func TestSession_BootstrapShowsCachedIdentityWhileHydrating(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, ada)
	}))
	defer server.Close()
	defer close(release)

	f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))

	hydrating := make(chan Snapshot, 1)
	cancel := f.session.Subscribe(func(s Snapshot) {
		if s.State == StateHydrating {
			hydrating <- s
		}
	})
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.session.Bootstrap(context.Background()) }()

	select {
	case snap := <-hydrating:
		assert.True(t, snap.HasIdentity)
		assert.Equal(t, ada.ID, snap.Identity.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("session never entered hydration")
	}

	release <- struct{}{}
	require.NoError(t, <-done)
	assert.Equal(t, StateAuthenticated, f.session.State())
}

func TestSession_LoginRoundTrip(t *testing.T) {
	stub, ts := newStub(t)
	_, err := stub.AddUser(domain.Registration{Email: "ada@example.com", Password: "secret", FullName: "Ada Lovelace"})
	require.NoError(t, err)

	f := newFixture(t, ts.URL, nil)
	ctx := context.Background()
	require.NoError(t, f.session.Bootstrap(ctx))
	assert.Equal(t, StateUnauthenticated, f.session.State())

	_, err = f.session.Login(ctx, "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.Equal(t, StateUnauthenticated, f.session.State())

	id, err := f.session.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, f.session.State())
	assert.NotEmpty(t, f.store.Token())

	me, err := apiclient.Send[domain.Identity](ctx, f.client, apiclient.Request{Path: MePath})
	require.NoError(t, err)
	assert.Equal(t, id.ID, me.ID)
}

func TestSession_Register(t *testing.T) {
	_, ts := newStub(t)
	f := newFixture(t, ts.URL, nil)
	ctx := context.Background()

	id, err := f.session.Register(ctx, domain.Registration{
		Email: "grace@example.com", Password: "hopper", FullName: "Grace Hopper", Role: domain.RoleEmployer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEmployer, id.Role)
	assert.Equal(t, StateAuthenticated, f.session.State())

	_, err = f.session.Register(ctx, domain.Registration{Email: "x@example.com", Password: "p", Role: "recruiter"})
	assert.Error(t, err)
}

func TestSession_Logout(t *testing.T) {
	t.Run("server session is revoked", func(t *testing.T) {
		stub, ts := newStub(t)
		_, err := stub.AddUser(domain.Registration{Email: "ada@example.com", Password: "secret"})
		require.NoError(t, err)

		f := newFixture(t, ts.URL, nil)
		ctx := context.Background()
		_, err = f.session.Login(ctx, "ada@example.com", "secret")
		require.NoError(t, err)
		token := f.store.Token()

		f.session.Logout(ctx)

		assert.Equal(t, StateUnauthenticated, f.session.State())
		assert.Empty(t, f.store.Token())

		// The old token no longer works even if presented explicitly.
		err = f.client.Do(ctx, apiclient.Request{
			Path:         MePath,
			Header:       http.Header{"Authorization": {"Bearer " + token}},
			SkipRecovery: true,
		}, nil)
		var reqErr *domain.RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	})

	t.Run("local state clears when the server is unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		f := newFixture(t, url, cachedSession(t, "tok_A", ada))
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		f.session.Logout(ctx)

		assert.Equal(t, StateUnauthenticated, f.session.State())
		assert.Empty(t, f.store.Token())
		_, ok := f.store.Identity()
		assert.False(t, ok)
		persisted, err := f.storage.Load()
		require.NoError(t, err)
		assert.Empty(t, persisted)
	})

	t.Run("captured token is sent", func(t *testing.T) {
		var got string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		}))
		defer server.Close()

		f := newFixture(t, server.URL, cachedSession(t, "tok_A", ada))
		f.session.Logout(context.Background())

		assert.Equal(t, "Bearer tok_A", got)
		assert.Equal(t, StateUnauthenticated, f.session.State())
	})
}

func TestSession_ExpiryFromAnyRequest(t *testing.T) {
	stub, ts := newStub(t)
	_, err := stub.AddUser(domain.Registration{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	f := newFixture(t, ts.URL, nil)
	ctx := context.Background()
	_, err = f.session.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []State
	cancel := f.session.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
	})
	defer cancel()

	stub.RevokeAll()
	err = f.client.Do(ctx, apiclient.Request{Path: "/api/applications"}, nil)

	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, StateUnauthenticated, f.session.State())
	mu.Lock()
	assert.Equal(t, []State{StateUnauthenticated}, seen)
	mu.Unlock()
}

func TestSession_RefreshKeepsSessionAlive(t *testing.T) {
	stub, ts := newStub(t)
	_, err := stub.AddUser(domain.Registration{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)

	store := credential.NewStore(credential.NewMemoryStorage(), nil)
	client, err := apiclient.NewClient(apiclient.Config{BaseURL: ts.URL, RenewalMode: apiclient.RenewalEndpoint}, store, nil, nil)
	require.NoError(t, err)
	sess := New(client, store, nil)
	ctx := context.Background()

	_, err = sess.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	before := store.Token()

	stub.ExpireAccessTokens()
	require.NoError(t, client.Do(ctx, apiclient.Request{Path: "/api/jobs/feed"}, nil))

	assert.NotEqual(t, before, store.Token())
	assert.Equal(t, StateAuthenticated, sess.State())
}

func TestSession_SubscribeCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ada)
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	var calls atomic.Int32
	cancel := f.session.Subscribe(func(Snapshot) { calls.Add(1) })
	cancel()

	require.NoError(t, f.session.Bootstrap(context.Background()))
	assert.Zero(t, calls.Load())
}
