package peer

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/rtc"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// Every inbound network or device event becomes a typed event on the
// session's queue, processed one at a time by the session's own
// goroutine. Sessions for different participants progress
// independently.
type event interface{ isEvent() }

type offerEvent struct{ sdp json.RawMessage }

type answerEvent struct{ sdp json.RawMessage }

type candidateEvent struct{ candidate json.RawMessage }

type localCandidateEvent struct{ candidate json.RawMessage }

type transportEvent struct{ state rtc.TransportState }

type trackEvent struct{ track rtc.RemoteTrack }

func (offerEvent) isEvent()          {}
func (answerEvent) isEvent()         {}
func (candidateEvent) isEvent()      {}
func (localCandidateEvent) isEvent() {}
func (transportEvent) isEvent()      {}
func (trackEvent) isEvent()          {}

const eventQueueSize = 32

type sessionParams struct {
	id   string // remote participant id
	role Role
	conn rtc.Conn

	send     func(*signal.Envelope)
	onClosed func(s *Session)
	onTrack  func(participantID string, track rtc.RemoteTrack)

	setupTimeout time.Duration
	queueCap     int

	log *logger.Logger
}

// Session holds the negotiation state for one remote participant. It
// exclusively owns its media connection and the queue of candidates
// that arrived before the remote description.
type Session struct {
	id   string
	role Role
	conn rtc.Conn

	send     func(*signal.Envelope)
	onClosed func(*Session)
	onTrack  func(string, rtc.RemoteTrack)
	log      *logger.Logger

	setupTimeout time.Duration
	queueCap     int

	state  atomic.Int32
	events chan event
	closed chan struct{}

	closeOnce sync.Once

	// Owned by the run goroutine.
	remoteSet bool
	pending   []json.RawMessage
}

func newSession(p sessionParams) *Session {
	s := &Session{
		id:           p.id,
		role:         p.role,
		conn:         p.conn,
		send:         p.send,
		onClosed:     p.onClosed,
		onTrack:      p.onTrack,
		setupTimeout: p.setupTimeout,
		queueCap:     p.queueCap,
		log: p.log.Extend(p.log.With().
			Str("participant", p.id).
			Str("role", p.role.String())),
		events: make(chan event, eventQueueSize),
		closed: make(chan struct{}),
	}
	s.state.Store(int32(StateNew))

	s.conn.OnCandidate(func(c json.RawMessage) {
		s.deliver(localCandidateEvent{candidate: c})
	})
	s.conn.OnStateChange(func(st rtc.TransportState) {
		s.deliver(transportEvent{state: st})
	})
	s.conn.OnTrack(func(t rtc.RemoteTrack) {
		s.deliver(trackEvent{track: t})
	})

	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Role() Role { return s.role }

func (s *Session) State() State { return State(s.state.Load()) }

// deliver enqueues ev without ever blocking the caller; a session that
// cannot keep up loses the event instead of stalling other sessions.
func (s *Session) deliver(ev event) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.closed:
	default:
		s.log.Warn().Msg("session event queue full, event dropped")
	}
}

// Close tears the session down from any state. Safe to call more than
// once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) run() {
	timer := time.NewTimer(s.setupTimeout)
	defer timer.Stop()
	defer s.teardown()

	if s.role == RoleInitiator {
		if !s.sendOffer() {
			return
		}
	}

	for {
		select {
		case ev := <-s.events:
			if !s.handle(ev, timer) {
				return
			}
		case <-timer.C:
			if s.State() != StateStable {
				s.log.Warn().Dur("timeout", s.setupTimeout).Msg("negotiation timed out")
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) teardown() {
	s.Close()
	s.conn.Close()
	s.pending = nil
	s.setState(StateClosed)
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// handle processes one event; it returns false once the session should
// stop.
func (s *Session) handle(ev event, timer *time.Timer) bool {
	switch ev := ev.(type) {
	case offerEvent:
		return s.handleOffer(ev.sdp)
	case answerEvent:
		return s.handleAnswer(ev.sdp)
	case candidateEvent:
		s.handleCandidate(ev.candidate)
	case localCandidateEvent:
		s.send(&signal.Envelope{Type: signal.TypeCandidate, To: s.id, Candidate: ev.candidate})
	case transportEvent:
		return s.handleTransport(ev.state, timer)
	case trackEvent:
		if s.onTrack != nil {
			s.onTrack(s.id, ev.track)
		}
	}
	return true
}

func (s *Session) sendOffer() bool {
	sdp, err := s.conn.CreateOffer()
	if err != nil {
		s.log.Error().Err(err).Msg("offer creation failed")
		return false
	}
	s.send(&signal.Envelope{Type: signal.TypeOffer, To: s.id, SDP: sdp})
	s.setState(StateOfferSent)
	return true
}

// handleOffer answers the remote offer. Offers are only legal on a
// fresh responder session; the orchestrator resolves glare before the
// event reaches here.
func (s *Session) handleOffer(sdp json.RawMessage) bool {
	if s.State() != StateNew {
		s.log.Warn().Str("state", s.State().String()).Msg("offer in wrong state ignored")
		return true
	}
	if !s.applyRemote(sdp) {
		return false
	}
	s.setState(StateOfferReceived)

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		s.log.Error().Err(err).Msg("answer creation failed")
		return false
	}
	s.send(&signal.Envelope{Type: signal.TypeAnswer, To: s.id, SDP: answer})
	s.setState(StateAnswerExchanged)
	return true
}

// handleAnswer applies the remote answer. An answer outside OfferSent
// is a protocol violation: logged and ignored, the session keeps its
// state.
func (s *Session) handleAnswer(sdp json.RawMessage) bool {
	if s.State() != StateOfferSent {
		s.log.Warn().Str("state", s.State().String()).Msg("answer in wrong state ignored")
		return true
	}
	if !s.applyRemote(sdp) {
		return false
	}
	s.setState(StateAnswerExchanged)
	return true
}

// handleCandidate queues candidates that arrive before the remote
// description and applies them live afterwards.
func (s *Session) handleCandidate(candidate json.RawMessage) {
	if !s.remoteSet {
		if len(s.pending) >= s.queueCap {
			s.log.Warn().Int("cap", s.queueCap).Msg("candidate queue full, candidate dropped")
			return
		}
		s.pending = append(s.pending, candidate)
		return
	}
	if err := s.conn.AddCandidate(candidate); err != nil {
		s.log.Warn().Err(err).Msg("candidate rejected")
	}
}

// applyRemote sets the remote description and drains the pending
// candidate queue in arrival order. A rejected description is a
// negotiation error and ends the session.
func (s *Session) applyRemote(sdp json.RawMessage) bool {
	if err := s.conn.SetRemoteDescription(sdp); err != nil {
		s.log.Error().Err(err).Msg("remote description rejected")
		return false
	}
	s.remoteSet = true
	for _, c := range s.pending {
		if err := s.conn.AddCandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
	s.pending = nil
	return true
}

func (s *Session) handleTransport(state rtc.TransportState, timer *time.Timer) bool {
	switch state {
	case rtc.TransportConnected:
		if s.State() != StateClosed {
			s.setState(StateStable)
			timer.Stop()
		}
	case rtc.TransportDisconnected:
		// ICE recovers from these on its own; wait for Connected or
		// Failed instead of tearing down.
		s.log.Warn().Msg("media transport disconnected, awaiting recovery")
	case rtc.TransportFailed, rtc.TransportClosed:
		s.log.Warn().Str("transport", state.String()).Msg("media transport lost")
		return false
	}
	return true
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("session state")
	}
}
