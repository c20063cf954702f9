package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay-side instruments. All counters are safe for
// concurrent use and registered against the given registerer.
type Metrics struct {
	RoomsActive       prometheus.Gauge
	ConnectionsActive prometheus.Gauge
	EnvelopesRelayed  *prometheus.CounterVec
	MalformedDropped  prometheus.Counter
	WriteFailures     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signaling",
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one member.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signaling",
			Name:      "connections_active",
			Help:      "Number of open websocket connections.",
		}),
		EnvelopesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signaling",
			Name:      "envelopes_relayed_total",
			Help:      "Envelopes forwarded by the relay, by type.",
		}, []string{"type"}),
		MalformedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signaling",
			Name:      "malformed_dropped_total",
			Help:      "Inbound messages dropped due to protocol errors.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signaling",
			Name:      "write_failures_total",
			Help:      "Per-member delivery failures during fan-out.",
		}),
	}
	reg.MustRegister(m.RoomsActive, m.ConnectionsActive, m.EnvelopesRelayed,
		m.MalformedDropped, m.WriteFailures)
	return m
}
