package apiclient

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sobandev/careerpilot-ai/internal/credential"
	"github.com/sobandev/careerpilot-ai/internal/domain"
	"github.com/sobandev/careerpilot-ai/internal/metrics"
)

const renewalKey = "session_renewal"

// Coordinator collapses concurrent recovery attempts into one renewal whose
// outcome every waiting caller observes.
type Coordinator struct {
	// Single-flight group: joining an active flight and starting a new one
	// happen under the group's mutex, so two callers can never both see
	// "no renewal active".
	group   singleflight.Group
	waiting atomic.Int64

	store   *credential.Store
	renewer domain.Renewer
	metrics *metrics.Client
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator that renews through renewer.
func NewCoordinator(store *credential.Store, renewer domain.Renewer, logger *slog.Logger, m *metrics.Client) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if renewer == nil {
		renewer = NoRenewal{}
	}
	return &Coordinator{
		store:   store,
		renewer: renewer,
		metrics: m,
		logger:  logger,
	}
}

// Recover reports whether a usable session exists after the server rejected
// staleToken. Failures are reported as false, never as errors; on failure the
// token and cached identity have been cleared. A caller whose ctx ends stops
// waiting and gets false while the shared renewal continues for the others.
func (c *Coordinator) Recover(ctx context.Context, staleToken string) bool {
	// Another flight already replaced the token this request was sent with.
	if current := c.store.Token(); current != "" && current != staleToken {
		c.logger.DebugContext(ctx, "credentials already renewed, skipping recovery")
		return true
	}

	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	ch := c.group.DoChan(renewalKey, func() (interface{}, error) {
		return c.renew(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.ObserveSharedRefresh()
		}
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// Waiting returns the number of callers currently inside Recover.
func (c *Coordinator) Waiting() int {
	return int(c.waiting.Load())
}

func (c *Coordinator) renew(ctx context.Context) bool {
	c.logger.InfoContext(ctx, "renewing session (single-flight protected)")

	renewal, err := c.renewer.Renew(ctx)
	c.metrics.ObserveRefresh(err == nil)
	if err != nil {
		c.logger.WarnContext(ctx, "session renewal failed, clearing cached credentials", "error", err)
		c.store.Clear()
		return false
	}

	if renewal.Token != "" {
		c.store.SetToken(renewal.Token)
	}
	c.logger.InfoContext(ctx, "session renewed", "token_rotated", renewal.Token != "")
	return true
}
