package peer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/merhawi-21/video-meeting/internal/rtc"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// fakeEngine hands out scripted media connections so negotiation can be
// tested without the webrtc stack.
type fakeEngine struct {
	mu        sync.Mutex
	conns     []*fakeConn
	sourceErr error
}

func (e *fakeEngine) NewConn(src rtc.Source) (rtc.Conn, error) {
	c := newFakeConn()
	c.src = src
	e.mu.Lock()
	e.conns = append(e.conns, c)
	e.mu.Unlock()
	return c, nil
}

func (e *fakeEngine) NewSource(ctx context.Context, q rtc.Quality) (rtc.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sourceErr != nil {
		return nil, e.sourceErr
	}
	return &fakeSource{quality: q, audioOn: true, videoOn: true}, nil
}

func (e *fakeEngine) conn(i int) *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.conns) {
		return nil
	}
	return e.conns[i]
}

func (e *fakeEngine) connCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

var errRejected = errors.New("description rejected")

type fakeConn struct {
	mu sync.Mutex

	src        rtc.Source
	remote     []json.RawMessage
	candidates []json.RawMessage
	offers     int
	answers    int
	closed     bool

	remoteErr error

	onCandidate func(json.RawMessage)
	onState     func(rtc.TransportState)
	onTrack     func(rtc.RemoteTrack)
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) CreateOffer() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return json.RawMessage(`{"type":"offer","sdp":"v=0"}`), nil
}

func (c *fakeConn) CreateAnswer() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers++
	return json.RawMessage(`{"type":"answer","sdp":"v=0"}`), nil
}

func (c *fakeConn) SetRemoteDescription(sdp json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.remote = append(c.remote, sdp)
	return nil
}

func (c *fakeConn) AddCandidate(candidate json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) OnCandidate(fn func(json.RawMessage)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(rtc.TransportState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(fn func(rtc.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) fireCandidate(raw json.RawMessage) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func (c *fakeConn) fireState(st rtc.TransportState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (c *fakeConn) fireTrack(tr rtc.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(tr)
	}
}

func (c *fakeConn) remoteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.remote)
}

func (c *fakeConn) appliedCandidates() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.candidates...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSource struct {
	mu      sync.Mutex
	quality rtc.Quality
	audioOn bool
	videoOn bool
	closed  bool
}

func (s *fakeSource) Quality() rtc.Quality { return s.quality }

func (s *fakeSource) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.audioOn = enabled
	s.mu.Unlock()
}

func (s *fakeSource) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

func (s *fakeSource) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoOn = enabled
	s.mu.Unlock()
}

func (s *fakeSource) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sentSink collects envelopes the orchestrator emits toward the relay.
type sentSink struct {
	mu   sync.Mutex
	envs []*signal.Envelope
}

func (s *sentSink) send(env *signal.Envelope) {
	s.mu.Lock()
	s.envs = append(s.envs, env)
	s.mu.Unlock()
}

func (s *sentSink) byType(t signal.Type) []*signal.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*signal.Envelope
	for _, e := range s.envs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
