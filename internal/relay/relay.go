package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/monitoring"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// Relay accepts websocket connections, assigns each a fresh id and
// routes parsed envelopes through the registry. Every failure mode is
// contained to a single connection; nothing here is fatal to the
// process.
type Relay struct {
	conf     config.Relay
	registry *Registry
	metrics  *monitoring.Metrics
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func New(conf config.Relay, registry *Registry, metrics *monitoring.Metrics, log *logger.Logger) *Relay {
	return &Relay{
		conf:     conf,
		registry: registry,
		metrics:  metrics,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			// Room tokens are unguessable; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the relay's HTTP surface: the websocket endpoint and a
// liveness probe.
func (r *Relay) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("signaling relay is healthy"))
	})
	mux.HandleFunc("/ws", r.Handler())
	return mux
}

// Handler upgrades the HTTP request and starts the connection's pumps.
func (r *Relay) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ws, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := newConn(ws, r.conf.SendBuffer, r.log)
		r.metrics.ConnectionsActive.Inc()
		c.log.Debug().Str("remote", ws.RemoteAddr().String()).Msg("connection opened")

		go c.writePump()
		go c.readPump(
			func(data []byte) { r.dispatch(c, data) },
			func() { r.drop(c) },
		)
	}
}

// dispatch routes one inbound frame. Malformed messages are dropped
// and logged; one bad message must not terminate an otherwise healthy
// connection.
func (r *Relay) dispatch(c *Conn, data []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.metrics.MalformedDropped.Inc()
		c.log.Warn().Err(err).Msg("unparsable envelope dropped")
		return
	}
	if err := env.Validate(); err != nil {
		r.metrics.MalformedDropped.Inc()
		c.log.Warn().Err(err).Msg("invalid envelope dropped")
		return
	}
	if env.Type == signal.TypeNewParticipant {
		// Relay-originated type; a client sending it is spoofing.
		r.metrics.MalformedDropped.Inc()
		c.log.Warn().Msg("client-sent new-participant dropped")
		return
	}

	// The sender identity is always relay-assigned.
	env.From = c.id

	switch env.Type {
	case signal.TypeJoin:
		if err := r.registry.Join(c, env.Room); err != nil {
			r.metrics.MalformedDropped.Inc()
			c.log.Warn().Err(err).Str("room", env.Room).Msg("join rejected")
			return
		}
		// Let existing members discover the newcomer.
		note := &signal.Envelope{Type: signal.TypeNewParticipant, ID: c.id, From: c.id}
		r.registry.Broadcast(env.Room, c, note)
		r.metrics.EnvelopesRelayed.WithLabelValues(string(signal.TypeNewParticipant)).Inc()

	case signal.TypeLeave:
		r.announceLeave(c)

	default:
		roomID, ok := r.registry.RoomOf(c)
		if !ok {
			r.metrics.MalformedDropped.Inc()
			c.log.Warn().Str("type", string(env.Type)).Msg("message before join dropped")
			return
		}
		if env.To != "" {
			if err := r.registry.Unicast(roomID, env.To, &env); err != nil {
				// Not fatal to the relay: log and drop.
				c.log.Warn().Err(err).Str("to", env.To).Msg("unicast dropped")
				return
			}
		} else {
			r.registry.Broadcast(roomID, c, &env)
		}
		r.metrics.EnvelopesRelayed.WithLabelValues(string(env.Type)).Inc()
	}
}

// drop handles transport close: leave the room, tell former room-mates
// and release the connection.
func (r *Relay) drop(c *Conn) {
	r.announceLeave(c)
	c.close()
	r.metrics.ConnectionsActive.Dec()
	c.log.Debug().Msg("connection closed")
}

// announceLeave removes c from its room and broadcasts a synthetic
// leave envelope so room-mates can tear down their peer sessions.
func (r *Relay) announceLeave(c *Conn) {
	roomID, rest := r.registry.Leave(c)
	if roomID == "" {
		return
	}
	leave := &signal.Envelope{Type: signal.TypeLeave, ID: c.id, From: c.id}
	for _, m := range rest {
		r.registry.deliver(m, leave)
	}
	r.metrics.EnvelopesRelayed.WithLabelValues(string(signal.TypeLeave)).Inc()
}
