package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes.
const (
	outcomeOK           = "ok"
	outcomeTimeout      = "timeout"
	outcomeNotConnected = "not_connected"
	outcomeCanceled     = "canceled"
)

// Push kinds.
const (
	pushZones = "zones"
	pushQueue = "queue"
)

// Metrics holds the session meters. A nil *Metrics records nothing.
type Metrics struct {
	State                *prometheus.GaugeVec
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      prometheus.Histogram
	PushesTotal          *prometheus.CounterVec
	ReconnectsTotal      prometheus.Counter
	DroppedContinuations prometheus.Counter
	ServerRequestsTotal  *prometheus.CounterVec
}

// NewMetrics creates the session meters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corelink_session_state",
			Help: "Current session state (1 for the active state).",
		}, []string{"state"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corelink_requests_total",
			Help: "Requests sent to the Core by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "corelink_request_duration_seconds",
			Help:    "Time from request to COMPLETE.",
			Buckets: prometheus.DefBuckets,
		}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corelink_pushes_total",
			Help: "Subscription payloads received by kind.",
		}, []string{"kind"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corelink_reconnects_total",
			Help: "Reconnection attempts scheduled.",
		}),
		DroppedContinuations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corelink_dropped_continuations_total",
			Help: "CONTINUE frames matching no subscription or request.",
		}),
		ServerRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corelink_server_requests_total",
			Help: "Requests initiated by the Core by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.State,
			m.RequestsTotal,
			m.RequestDuration,
			m.PushesTotal,
			m.ReconnectsTotal,
			m.DroppedContinuations,
			m.ServerRequestsTotal,
		)
	}
	return m
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for p := PhaseDisconnected; p <= PhaseFailed; p++ {
		v := 0.0
		if p == s.Phase {
			v = 1
		}
		m.State.WithLabelValues(p.String()).Set(v)
	}
}

func (m *Metrics) request(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeOK {
		m.RequestDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) push(kind string) {
	if m == nil {
		return
	}
	m.PushesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

func (m *Metrics) droppedContinuation() {
	if m == nil {
		return
	}
	m.DroppedContinuations.Inc()
}

func (m *Metrics) serverRequest(kind string) {
	if m == nil {
		return
	}
	m.ServerRequestsTotal.WithLabelValues(kind).Inc()
}
