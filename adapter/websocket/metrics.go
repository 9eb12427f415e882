package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// clientMetrics tracks connection health of one client
type clientMetrics struct {
	reconnects           prometheus.Counter
	connectFailures      prometheus.Counter
	credentialRetries    prometheus.Counter
	requestsSent         *prometheus.CounterVec
	acknowledgments      prometheus.Counter
	unmatchedAcks        prometheus.Counter
	feedDropped          prometheus.Counter
	pendingConfirmations prometheus.Gauge
	subscriptions        prometheus.Gauge
	connected            prometheus.Gauge
}

func newClientMetrics() *clientMetrics {
	return &clientMetrics{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "reconnects_total",
			Help:      "Connections lost and re-established",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "connect_failures_total",
			Help:      "Failed WebSocket dial attempts",
		}),
		credentialRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "credential_retries_total",
			Help:      "Polls of the credential supplier that found nothing",
		}),
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "requests_sent_total",
			Help:      "Subscribe/unsubscribe frames written, by verb",
		}, []string{"verb"}),
		acknowledgments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "acknowledgments_total",
			Help:      "Acknowledgment frames matched to a pending request",
		}),
		unmatchedAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "unmatched_acknowledgments_total",
			Help:      "Acknowledgment frames received with no pending request",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "feed_messages_dropped_total",
			Help:      "Feed messages dropped because the consumer was too slow",
		}),
		pendingConfirmations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "pending_confirmations",
			Help:      "Requests awaiting acknowledgment on the current connection",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "subscriptions",
			Help:      "Events the client intends to stay subscribed to",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riot",
			Subsystem: "websocket",
			Name:      "connected",
			Help:      "1 while a connection is open",
		}),
	}
}

func (m *clientMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.reconnects,
		m.connectFailures,
		m.credentialRetries,
		m.requestsSent,
		m.acknowledgments,
		m.unmatchedAcks,
		m.feedDropped,
		m.pendingConfirmations,
		m.subscriptions,
		m.connected,
	}
}

// register adds every collector to reg
func (m *clientMetrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
