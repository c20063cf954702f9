package peer

import (
	"sync"
	"time"

	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/rtc"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// Orchestrator consumes relay envelopes and drives one session per
// remote participant through its negotiation states. All negotiation
// errors are contained to the affected session.
type Orchestrator struct {
	store   *Store
	engine  rtc.Engine
	sources *rtc.SourceManager
	send    func(*signal.Envelope)
	log     *logger.Logger

	setupTimeout time.Duration
	queueCap     int
	recvOnly     bool

	onTrack         func(participantID string, track rtc.RemoteTrack)
	onSessionClosed func(participantID string)

	mu      sync.Mutex
	localID string
}

const (
	defaultSetupTimeout = 30 * time.Second
	defaultQueueCap     = 64
)

type OrchestratorParams struct {
	Engine  rtc.Engine
	Sources *rtc.SourceManager
	Send    func(*signal.Envelope)
	Log     *logger.Logger

	// SetupTimeout and QueueCap fall back to defaults when zero; a
	// zero timeout would kill every session at birth and a zero cap
	// would drop every early candidate.
	SetupTimeout time.Duration
	QueueCap     int

	// RecvOnly marks a deliberately receive-only client, which may
	// initiate sessions without a local source. A merely missing
	// source (failed or pending acquisition) never initiates.
	RecvOnly bool

	OnTrack         func(participantID string, track rtc.RemoteTrack)
	OnSessionClosed func(participantID string)
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.SetupTimeout <= 0 {
		p.SetupTimeout = defaultSetupTimeout
	}
	if p.QueueCap <= 0 {
		p.QueueCap = defaultQueueCap
	}
	return &Orchestrator{
		store:           NewStore(),
		engine:          p.Engine,
		sources:         p.Sources,
		send:            p.Send,
		log:             p.Log,
		setupTimeout:    p.SetupTimeout,
		queueCap:        p.QueueCap,
		recvOnly:        p.RecvOnly,
		onTrack:         p.OnTrack,
		onSessionClosed: p.OnSessionClosed,
	}
}

// Handle dispatches one inbound envelope. Protocol errors are dropped
// with a log entry and never crash a session.
func (o *Orchestrator) Handle(env *signal.Envelope) {
	o.learnLocalID(env)

	switch env.Type {
	case signal.TypeNewParticipant:
		o.handleNewParticipant(env.ID)
	case signal.TypeOffer:
		o.handleOffer(env)
	case signal.TypeAnswer:
		o.forward(env.From, answerEvent{sdp: env.SDP})
	case signal.TypeCandidate:
		o.forward(env.From, candidateEvent{candidate: env.Candidate})
	case signal.TypeLeave:
		o.handleLeave(leaverID(env))
	default:
		o.log.Warn().Str("type", string(env.Type)).Msg("unexpected envelope dropped")
	}
}

// learnLocalID records our relay-assigned id the first time an
// addressed envelope reveals it. It is needed for glare tie-breaks.
func (o *Orchestrator) learnLocalID(env *signal.Envelope) {
	if env.To == "" {
		return
	}
	o.mu.Lock()
	if o.localID == "" {
		o.localID = env.To
	}
	o.mu.Unlock()
}

// handleNewParticipant creates an initiator session toward the joiner.
func (o *Orchestrator) handleNewParticipant(id string) {
	if id == "" {
		o.log.Warn().Msg("new-participant without id dropped")
		return
	}

	src := o.sources.Current()
	if src == nil && !o.recvOnly {
		// No session until a source exists for our own tracks.
		o.log.Warn().Str("participant", id).Msg("no local source, not initiating")
		return
	}

	_, created, err := o.store.GetOrCreate(id, func() (*Session, error) {
		return o.newSession(id, RoleInitiator, src)
	})
	if err != nil {
		o.log.Error().Err(err).Str("participant", id).Msg("initiator session failed")
		return
	}
	if !created {
		o.log.Debug().Str("participant", id).Msg("session already exists")
	}
}

// handleOffer creates a responder session, resolving offer/offer glare
// deterministically: the lexicographically smaller participant id
// keeps the initiator role, the other side discards its offer and
// answers instead.
func (o *Orchestrator) handleOffer(env *signal.Envelope) {
	id := env.From
	if id == "" {
		o.log.Warn().Msg("offer without sender dropped")
		return
	}

	var replaced *Session
	if existing, ok := o.store.Get(id); ok {
		if existing.State() == StateOfferSent && env.To != "" && id < env.To {
			o.log.Info().Str("participant", id).Msg("offer glare, yielding initiator role")
			replaced, _ = o.store.Remove(id)
		} else {
			o.log.Warn().Str("participant", id).
				Str("state", existing.State().String()).Msg("unexpected offer ignored")
			return
		}
	}

	sess, created, err := o.store.GetOrCreate(id, func() (*Session, error) {
		return o.newSession(id, RoleResponder, o.sources.Current())
	})
	// The discarded initiator is closed only after its successor is in
	// the store, so its teardown sees the replacement and leaves the
	// participant's client state alone.
	if replaced != nil {
		replaced.Close()
	}
	if err != nil {
		o.log.Error().Err(err).Str("participant", id).Msg("responder session failed")
		return
	}
	if created {
		sess.deliver(offerEvent{sdp: env.SDP})
	}
}

// forward delivers an event to an existing session; envelopes for
// unknown participants are dropped with a log entry.
func (o *Orchestrator) forward(id string, ev event) {
	if id == "" {
		o.log.Warn().Msg("envelope without sender dropped")
		return
	}
	sess, ok := o.store.Get(id)
	if !ok {
		o.log.Warn().Str("participant", id).Msg("envelope for unknown participant dropped")
		return
	}
	sess.deliver(ev)
}

// handleLeave tears down the departed participant's session. Leave for
// a participant with no active session is a no-op.
func (o *Orchestrator) handleLeave(id string) {
	if id == "" {
		return
	}
	sess, ok := o.store.Remove(id)
	if !ok {
		o.log.Debug().Str("participant", id).Msg("leave for unknown participant")
		return
	}
	sess.Close()
}

// CloseAll tears down every session, for local leave.
func (o *Orchestrator) CloseAll() {
	for _, s := range o.store.Drain() {
		s.Close()
	}
}

// Session exposes a session for inspection.
func (o *Orchestrator) Session(id string) (*Session, bool) { return o.store.Get(id) }

// SessionCount reports how many sessions are live.
func (o *Orchestrator) SessionCount() int { return o.store.Len() }

func (o *Orchestrator) newSession(id string, role Role, src rtc.Source) (*Session, error) {
	conn, err := o.engine.NewConn(src)
	if err != nil {
		return nil, err
	}
	return newSession(sessionParams{
		id:           id,
		role:         role,
		conn:         conn,
		send:         o.send,
		onClosed:     o.sessionClosed,
		onTrack:      o.onTrack,
		setupTimeout: o.setupTimeout,
		queueCap:     o.queueCap,
		log:          o.log,
	}), nil
}

func (o *Orchestrator) sessionClosed(s *Session) {
	o.store.CompareAndRemove(s.id, s)
	// A session replaced under the same participant id (glare) must not
	// announce the participant as gone while its successor is live.
	if cur, ok := o.store.Get(s.id); ok && cur != s {
		return
	}
	if o.onSessionClosed != nil {
		o.onSessionClosed(s.id)
	}
}

func leaverID(env *signal.Envelope) string {
	if env.ID != "" {
		return env.ID
	}
	return env.From
}
