package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/metrics"
)

var ada = domain.Identity{
	ID:       "user-123",
	Email:    "ada@example.com",
	FullName: "Ada Lovelace",
	Role:     domain.RoleJobseeker,
}

// countingRenewer records how many renewals actually ran.
type countingRenewer struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (domain.Renewal, error)
}

func (r *countingRenewer) Renew(ctx context.Context) (domain.Renewal, error) {
	r.calls.Add(1)
	return r.fn(ctx)
}

func failingRenewer() *countingRenewer {
	return &countingRenewer{fn: func(context.Context) (domain.Renewal, error) {
		return domain.Renewal{}, domain.ErrRenewalUnavailable
	}}
}

func renewingTo(token string) *countingRenewer {
	return &countingRenewer{fn: func(context.Context) (domain.Renewal, error) {
		return domain.Renewal{Token: token}, nil
	}}
}

func newTestClient(t *testing.T, baseURL string, renewer domain.Renewer) (*Client, *credential.Store, *metrics.Client) {
	t.Helper()
	store := credential.NewStore(credential.NewMemoryStorage(), slog.Default())
	m := metrics.NewClient(prometheus.NewRegistry())
	c, err := NewClient(Config{BaseURL: baseURL, UserAgent: "cpctl/test", Renewer: renewer}, store, slog.Default(), m)
	require.NoError(t, err)
	return c, store, m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Do_AttachesCredentials(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/jobs", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{}, "total": 0})
	}))
	defer server.Close()

	client, store, m := newTestClient(t, server.URL, failingRenewer())
	store.SetToken("tok_A")

	type jobList struct {
		Total int `json:"total"`
	}
	list, err := Send[jobList](context.Background(), client, Request{
		Path:   "/api/jobs",
		Query:  map[string][]string{"q": {"golang"}},
		Header: http.Header{"X-Client-Feature": {"search"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
	assert.Equal(t, "Bearer tok_A", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "search", got.Get("X-Client-Feature"))
	assert.Equal(t, "cpctl/test", got.Get("User-Agent"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestClient_Do_WithoutTokenReliesOnCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "cookie-tok", Path: "/", HttpOnly: true})
			writeJSON(w, http.StatusOK, map[string]any{"user": ada})
		case "/api/auth/me":
			assert.Empty(t, r.Header.Get("Authorization"))
			cookie, err := r.Cookie("access_token")
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
				return
			}
			assert.Equal(t, "cookie-tok", cookie.Value)
			writeJSON(w, http.StatusOK, ada)
		}
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, failingRenewer())
	ctx := context.Background()

	require.NoError(t, client.Do(ctx, Request{Method: http.MethodPost, Path: "/api/auth/login", SkipRecovery: true}, nil))

	me, err := Send[domain.Identity](ctx, client, Request{Path: "/api/auth/me"})
	require.NoError(t, err)
	assert.Equal(t, ada.ID, me.ID)

	client.ResetCookies()
	_, err = Send[domain.Identity](ctx, client, Request{Path: "/api/auth/me"})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestClient_Do_RequestFailedDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusNotFound, `{"detail":"Job not found"}`, "Job not found"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","email"],"msg":"field required"}]}`, `[{"loc":["body","email"],"msg":"field required"}]`},
		{"json without detail", http.StatusInternalServerError, `{"message":"boom"}`, "HTTP 500"},
		{"null detail", http.StatusBadRequest, `{"detail":null}`, "HTTP 400"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "Request failed"},
		{"markup in detail", http.StatusBadRequest, `{"detail":"<b>Invalid</b> email & password"}`, "Invalid email & password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client, _, m := newTestClient(t, server.URL, failingRenewer())
			err := client.Do(context.Background(), Request{Path: "/api/jobs/42"}, nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRequestFailed)
			var reqErr *domain.RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.Status)
			assert.Equal(t, tt.want, reqErr.Detail)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.OutcomeRequestFailed)))
		})
	}
}

func TestClient_Do_EmptyBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/no-content":
			w.WriteHeader(http.StatusNoContent)
		case "/null":
			_, _ = io.WriteString(w, "null")
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, failingRenewer())
	ctx := context.Background()

	var out map[string]any
	require.NoError(t, client.Do(ctx, Request{Path: "/no-content"}, &out))
	require.NoError(t, client.Do(ctx, Request{Path: "/empty"}, &out))
	assert.Nil(t, out)

	var me *domain.Identity
	require.NoError(t, client.Do(ctx, Request{Path: "/null"}, &me))
	assert.Nil(t, me)
}

func TestClient_Do_RecoveryFailureExpiresSession(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
	}))
	defer server.Close()

	renewer := failingRenewer()
	client, store, m := newTestClient(t, server.URL, renewer)
	store.SetSession("tok_A", ada)

	var expired atomic.Int32
	client.OnSessionExpired(func() { expired.Add(1) })

	err := client.Do(context.Background(), Request{Path: "/api/applications"}, nil)

	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.NotErrorIs(t, err, domain.ErrRequestFailed)
	assert.Equal(t, int32(1), hits.Load(), "no retry after failed recovery")
	assert.Equal(t, int32(1), renewer.calls.Load())
	assert.Equal(t, int32(1), expired.Load())
	assert.Empty(t, store.Token())
	_, ok := store.Identity()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFailures))
}

func TestClient_Do_RecoverySuccessRetriesOnce(t *testing.T) {
	var requestIDs []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestIDs = append(requestIDs, r.Header.Get("X-Request-ID"))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok_B" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "job-1", body["job_id"], "retry must replay the body")
		writeJSON(w, http.StatusOK, map[string]string{"id": "app-1"})
	}))
	defer server.Close()

	renewer := renewingTo("tok_B")
	client, store, m := newTestClient(t, server.URL, renewer)
	store.SetSession("tok_A", ada)

	out, err := Send[map[string]string](context.Background(), client, Request{
		Method: http.MethodPost,
		Path:   "/api/applications",
		Body:   map[string]string{"job_id": "job-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "app-1", out["id"])
	require.Len(t, requestIDs, 2)
	assert.Equal(t, requestIDs[0], requestIDs[1], "retry keeps the request id")
	assert.Equal(t, "tok_B", store.Token())
	id, ok := store.Identity()
	require.True(t, ok, "renewal keeps the cached identity")
	assert.Equal(t, ada.ID, id.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))
}

func TestClient_Do_SecondRejectionIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
	}))
	defer server.Close()

	renewer := renewingTo("tok_B")
	client, store, _ := newTestClient(t, server.URL, renewer)
	store.SetToken("tok_A")

	err := client.Do(context.Background(), Request{Path: "/api/jobs/feed"}, nil)

	var reqErr *domain.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Equal(t, "Invalid or expired token", reqErr.Detail)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), renewer.calls.Load())
}

func TestClient_Do_SkipRecovery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
	}))
	defer server.Close()

	renewer := failingRenewer()
	client, _, _ := newTestClient(t, server.URL, renewer)

	err := client.Do(context.Background(), Request{
		Method:       http.MethodPost,
		Path:         "/api/auth/login",
		Body:         domain.Credentials{Email: "ada@example.com", Password: "wrong"},
		SkipRecovery: true,
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Zero(t, renewer.calls.Load())
}

// barrier holds the first n arrivals until all of them are in flight.
type barrier struct {
	n       int
	mu      sync.Mutex
	count   int
	release chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	b.count++
	if b.count == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
	}
}

// awaitWaiters blocks until n callers have joined the coordinator.
func awaitWaiters(c *Coordinator, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for c.Waiting() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
}

func TestClient_ConcurrentRejections_SingleFailedRenewal(t *testing.T) {
	const n = 5
	gate := newBarrier(n)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gate.wait()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token"})
	}))
	defer server.Close()

	var client *Client
	renewer := &countingRenewer{fn: func(context.Context) (domain.Renewal, error) {
		awaitWaiters(client.Coordinator(), n)
		return domain.Renewal{}, domain.ErrRenewalUnavailable
	}}
	client, store, m := newTestClient(t, server.URL, renewer)
	store.SetSession("tok_A", ada)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Do(context.Background(), Request{Path: "/api/jobs"}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, domain.ErrSessionExpired, "request %d", i)
	}
	assert.Equal(t, int32(1), renewer.calls.Load(), "exactly one renewal attempt")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshAttempts))
	assert.Equal(t, float64(n), testutil.ToFloat64(m.Requests.WithLabelValues(metrics.OutcomeSessionExpired)))
	assert.Empty(t, store.Token())
	_, ok := store.Identity()
	assert.False(t, ok)
}

func TestClient_ConcurrentRejections_SingleSuccessfulRenewal(t *testing.T) {
	const n = 5
	gate := newBarrier(n)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") == "Bearer tok_B" {
			writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
			return
		}
		gate.wait()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
	}))
	defer server.Close()

	var client *Client
	renewer := &countingRenewer{fn: func(context.Context) (domain.Renewal, error) {
		awaitWaiters(client.Coordinator(), n)
		return domain.Renewal{Token: "tok_B"}, nil
	}}
	client, store, m := newTestClient(t, server.URL, renewer)
	store.SetSession("tok_A", ada)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Do(context.Background(), Request{Path: "/api/applications"}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), renewer.calls.Load())
	assert.Equal(t, int32(2*n), hits.Load(), "every request retried exactly once")
	assert.Equal(t, float64(n), testutil.ToFloat64(m.Retries))
	assert.Equal(t, "tok_B", store.Token())
}

func TestClient_Upload_SharesRecovery(t *testing.T) {
	var contents []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/resume/upload", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(file)
		mu.Lock()
		contents = append(contents, header.Filename+":"+string(raw))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok_B" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"resume_id": "res-1"})
	}))
	defer server.Close()

	renewer := renewingTo("tok_B")
	client, store, _ := newTestClient(t, server.URL, renewer)
	store.SetToken("tok_A")

	var out map[string]string
	err := client.Upload(context.Background(), Upload{
		Path:     "/api/resume/upload",
		FileName: "cv.pdf",
		Content:  strings.NewReader("%PDF-1.7"),
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "res-1", out["resume_id"])
	assert.Equal(t, []string{"cv.pdf:%PDF-1.7", "cv.pdf:%PDF-1.7"}, contents)
	assert.Equal(t, int32(1), renewer.calls.Load())
}

func TestClient_Upload_Failures(t *testing.T) {
	t.Run("recovery failure expires session", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client, store, _ := newTestClient(t, server.URL, failingRenewer())
		store.SetToken("tok_A")

		err := client.Upload(context.Background(), Upload{Path: "/api/resume/upload", FileName: "cv.pdf", Content: strings.NewReader("x")}, nil)
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("non-json failure uses upload fallback", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = io.WriteString(w, "too large")
		}))
		defer server.Close()

		client, _, _ := newTestClient(t, server.URL, failingRenewer())

		err := client.Upload(context.Background(), Upload{Path: "/api/resume/upload", FileName: "cv.pdf", Content: strings.NewReader("x")}, nil)
		var reqErr *domain.RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, "Upload failed", reqErr.Detail)
	})

	t.Run("missing content", func(t *testing.T) {
		client, _, _ := newTestClient(t, "http://127.0.0.1:1", failingRenewer())
		assert.Error(t, client.Upload(context.Background(), Upload{Path: "/api/resume/upload"}, nil))
	})
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, _, m := newTestClient(t, url, failingRenewer())
	err := client.Do(context.Background(), Request{Path: "/api/jobs"}, nil)

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.OutcomeTransport)))
}

func TestClient_RateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	defer server.Close()

	store := credential.NewStore(nil, slog.Default())
	client, err := NewClient(Config{BaseURL: server.URL, RateLimit: 100, Burst: 2}, store, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, client.Do(context.Background(), Request{Path: "/api/jobs"}, nil))
	}
	assert.Equal(t, int32(4), hits.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, client.Do(ctx, Request{Path: "/api/jobs"}, nil))
}

func TestNewClient_Validation(t *testing.T) {
	store := credential.NewStore(nil, nil)

	_, err := NewClient(Config{}, store, nil, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost", RenewalMode: "magic"}, store, nil, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://localhost/", RenewalMode: RenewalEndpoint}, store, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.BaseURL())
	assert.IsType(t, &EndpointRenewal{}, c.Coordinator().renewer)
}

func TestClient_Do_AuthorizationOverride(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}))
	defer server.Close()

	client, store, _ := newTestClient(t, server.URL, failingRenewer())
	store.SetToken("tok_current")

	err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/auth/logout",
		Header: http.Header{"Authorization": {"Bearer tok_captured"}},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_captured", got)
}
