// Package metrics defines the Prometheus collectors for the API client and the stub server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by the API client.
const (
	OutcomeSuccess        = "success"
	OutcomeRequestFailed  = "request_failed"
	OutcomeSessionExpired = "session_expired"
	OutcomeTransport      = "transport_error"
)

// Client holds the API client collectors. A nil *Client records nothing.
type Client struct {
	Requests        *prometheus.CounterVec
	Retries         prometheus.Counter
	RefreshAttempts prometheus.Counter
	RefreshFailures prometheus.Counter
	RefreshShared   prometheus.Counter
}

// NewClient creates the client collectors and registers them when reg is non-nil.
func NewClient(reg prometheus.Registerer) *Client {
	m := &Client{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpctl",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Logical API requests by outcome.",
		}, []string{"outcome"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpctl",
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Requests replayed after a successful session renewal.",
		}),
		RefreshAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpctl",
			Subsystem: "refresh",
			Name:      "attempts_total",
			Help:      "Session renewal attempts actually executed.",
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpctl",
			Subsystem: "refresh",
			Name:      "failures_total",
			Help:      "Session renewal attempts that failed.",
		}),
		RefreshShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpctl",
			Subsystem: "refresh",
			Name:      "shared_total",
			Help:      "Callers that received the result of a shared renewal attempt.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Retries, m.RefreshAttempts, m.RefreshFailures, m.RefreshShared)
	}
	return m
}

// ObserveRequest counts one logical request with the given outcome.
func (m *Client) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one replayed request.
func (m *Client) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// ObserveRefresh counts one executed renewal attempt and its result.
func (m *Client) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	m.RefreshAttempts.Inc()
	if !ok {
		m.RefreshFailures.Inc()
	}
}

// ObserveSharedRefresh counts a caller that joined a renewal already in flight.
func (m *Client) ObserveSharedRefresh() {
	if m == nil {
		return
	}
	m.RefreshShared.Inc()
}

// Stub holds the stub server collectors.
type Stub struct {
	Logins    *prometheus.CounterVec
	Refreshes prometheus.Counter
	Rejected  prometheus.Counter
}

// NewStub creates the stub server collectors and registers them when reg is non-nil.
func NewStub(reg prometheus.Registerer) *Stub {
	m := &Stub{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpstub",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpstub",
			Name:      "refreshes_total",
			Help:      "Successful session refreshes.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cpstub",
			Name:      "rejected_total",
			Help:      "Requests rejected with 401.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Logins, m.Refreshes, m.Rejected)
	}
	return m
}
