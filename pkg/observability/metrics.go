package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "switchyard"

// Metrics records engine activity on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	hookCalls    *prometheus.CounterVec
	hookDuration *prometheus.HistogramVec
	lastCommit   prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed transitions by transition id and target state",
		},
		[]string{"transition_id", "to"},
	)
	m.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_rejected_total",
			Help:      "Rejected transitions by reason",
		},
		[]string{"reason"},
	)
	m.hookCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_calls_total",
			Help:      "Hook invocations by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)
	m.hookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hook_duration_seconds",
			Help:      "Duration of hook invocations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"phase"},
	)
	m.lastCommit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_transition_timestamp_seconds",
			Help:      "Unix time of the last committed transition",
		},
	)

	m.registry.MustRegister(m.transitions, m.rejections, m.hookCalls, m.hookDuration, m.lastCommit)
	return m
}

// Registry exposes the underlying registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle callbacks that feed the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, ev *domain.TransitionEvent) {
			m.transitions.WithLabelValues(formatID(ev.TransitionID), ev.NewState.String()).Inc()
			m.lastCommit.Set(float64(ev.Timestamp.Unix()))
		},
		OnRejected: func(ctx context.Context, err *domain.TransitionError) {
			m.rejections.WithLabelValues(Reason(err)).Inc()
		},
		OnHookReturn: func(ctx context.Context, ev *domain.HookEvent) {
			outcome := "ok"
			if ev.Failed() {
				outcome = "failed"
			}
			m.hookCalls.WithLabelValues(ev.Phase.String(), outcome).Inc()
			m.hookDuration.WithLabelValues(ev.Phase.String()).Observe(ev.Duration.Seconds())
		},
	}
}

var reasons = []struct {
	err   error
	label string
}{
	{domain.ErrReentrantCall, "reentrant"},
	{domain.ErrNotInitialized, "not_initialized"},
	{domain.ErrPaused, "paused"},
	{domain.ErrTransitionNotAllowed, "not_allowed"},
	{domain.ErrUnauthorized, "unauthorized"},
	{domain.ErrValidationFailed, "validation_failed"},
	{domain.ErrInvalidState, "invalid_state"},
}

// Reason maps a rejection onto a short, bounded label.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "internal"
}
