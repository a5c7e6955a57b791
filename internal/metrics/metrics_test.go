package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClient_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClient(reg)

	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(OutcomeSuccess)
	m.ObserveRequest(OutcomeSessionExpired)
	m.ObserveRefresh(true)
	m.ObserveRefresh(false)
	m.ObserveSharedRefresh()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(OutcomeSessionExpired)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshShared))
}

func TestClient_NilIsNoop(t *testing.T) {
	var m *Client

	assert.NotPanics(t, func() {
		m.ObserveRequest(OutcomeSuccess)
		m.ObserveRetry()
		m.ObserveRefresh(false)
		m.ObserveSharedRefresh()
	})
}

func TestNewStub_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStub(reg)
	m.Logins.WithLabelValues("ok").Inc()

	assert.Equal(t, 1, testutil.CollectAndCount(m.Logins))
}
