// Package apiclient is the single choke point for calls to the CareerPilot API.
// It attaches credentials, interprets responses and recovers from
// authentication rejection through a single-flight Coordinator.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/metrics"
)

// Renewal modes accepted in Config.RenewalMode.
const (
	RenewalNone     = "none"
	RenewalEndpoint = "endpoint"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRefreshPath = "/api/auth/refresh"
	tracerName         = "github.com/sobandev/careerpilot-ai/internal/apiclient"
)

// Config holds the API client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	RateLimit   float64 // requests per second, 0 disables limiting
	Burst       int
	RenewalMode string // none or endpoint
	RefreshPath string
	// Renewer overrides RenewalMode when set.
	Renewer   domain.Renewer
	Transport http.RoundTripper
}

// Client executes requests against the API with the current credentials.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	jar         *resettableJar
	store       *credential.Store
	coordinator *Coordinator
	limiter     *rate.Limiter
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	metrics     *metrics.Client
	logger      *slog.Logger
	userAgent   string

	hooksMu     sync.RWMutex
	expiryHooks []func()
}

// NewClient creates a client bound to store. m may be nil.
func NewClient(cfg Config, store *credential.Store, logger *slog.Logger, m *metrics.Client) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaultRefreshPath
	}

	jar, err := newResettableJar()
	if err != nil {
		return nil, fmt.Errorf("apiclient: creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			Jar:       jar,
		},
		jar:       jar,
		store:     store,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer(tracerName),
		metrics:   m,
		logger:    logger,
		userAgent: cfg.UserAgent,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	renewer := cfg.Renewer
	if renewer == nil {
		switch cfg.RenewalMode {
		case "", RenewalNone:
			renewer = NoRenewal{}
		case RenewalEndpoint:
			renewer = NewEndpointRenewal(c.httpClient, c.baseURL+cfg.RefreshPath, cfg.UserAgent)
		default:
			return nil, fmt.Errorf("apiclient: unknown renewal mode %q", cfg.RenewalMode)
		}
	}
	c.coordinator = NewCoordinator(store, renewer, logger, m)

	return c, nil
}

// Coordinator returns the client's refresh coordinator.
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnSessionExpired registers fn to run whenever a request ends in ErrSessionExpired.
func (c *Client) OnSessionExpired(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.expiryHooks = append(c.expiryHooks, fn)
}

// ResetCookies drops every ambient cookie held for the API.
func (c *Client) ResetCookies() {
	c.jar.Reset()
}

// Do executes req and decodes a successful JSON response into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	build, err := c.jsonAttempt(req)
	if err != nil {
		return err
	}
	return c.execute(ctx, req.method(), req.Path, req.SkipRecovery, fallbackRequestDetail, build, out)
}

// Send executes req and returns the response decoded as T.
func Send[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	err := c.Do(ctx, req, &out)
	return out, err
}

// Upload sends a multipart file upload with the same credential and
// recovery handling as Do.
func (c *Client) Upload(ctx context.Context, up Upload, out any) error {
	build, err := c.uploadAttempt(up)
	if err != nil {
		return err
	}
	return c.execute(ctx, http.MethodPost, up.Path, false, fallbackUploadDetail, build, out)
}

// attemptFunc builds a fresh request for one attempt with the given token.
type attemptFunc func(ctx context.Context, token string) (*http.Request, error)

// execute runs the attempt, recovery and single retry sequence shared by
// JSON requests and uploads.
func (c *Client) execute(ctx context.Context, method, path string, skipRecovery bool, fallback string, build attemptFunc, out any) error {
	ctx, span := c.tracer.Start(ctx, "apiclient.request", trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	))
	defer span.End()

	requestID := uuid.NewString()
	logger := c.logger.With("method", method, "path", path, "request_id", requestID)

	token := c.store.Token()
	resp, err := c.send(ctx, build, token, requestID)
	if err != nil {
		return c.fail(span, metrics.OutcomeTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !skipRecovery {
		drain(resp)
		logger.DebugContext(ctx, "authentication rejected, attempting recovery")

		if !c.coordinator.Recover(ctx, token) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.fail(span, metrics.OutcomeTransport, ctxErr)
			}
			logger.InfoContext(ctx, "session could not be recovered")
			c.fireExpiry()
			return c.fail(span, metrics.OutcomeSessionExpired,
				fmt.Errorf("%s %s: %w", method, path, domain.ErrSessionExpired))
		}

		c.metrics.ObserveRetry()
		span.SetAttributes(attribute.Bool("cpctl.retried", true))
		resp, err = c.send(ctx, build, c.store.Token(), requestID)
		if err != nil {
			return c.fail(span, metrics.OutcomeTransport, err)
		}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := c.requestError(resp, fallback)
		logger.DebugContext(ctx, "request failed", "status", resp.StatusCode, "detail", reqErr.Detail)
		return c.fail(span, metrics.OutcomeRequestFailed, reqErr)
	}

	if err := decode(resp, out); err != nil {
		return c.fail(span, metrics.OutcomeRequestFailed, err)
	}

	c.metrics.ObserveRequest(metrics.OutcomeSuccess)
	return nil
}

func (c *Client) send(ctx context.Context, build attemptFunc, token, requestID string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrTransport, err)
		}
	}

	req, err := build(ctx, token)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return resp, nil
}

func (c *Client) fail(span trace.Span, outcome string, err error) error {
	c.metrics.ObserveRequest(outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	return err
}

func (c *Client) fireExpiry() {
	c.hooksMu.RLock()
	hooks := make([]func(), len(c.expiryHooks))
	copy(hooks, c.expiryHooks)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
