package rtc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
)

// stubEngine hands out stub sources and lets a test stall NewSource to
// provoke supersede races deterministically.
type stubEngine struct {
	mu      sync.Mutex
	gate    chan struct{} // when set, NewSource blocks until closed
	started chan struct{} // receives once per NewSource call that hit the gate
	created []*stubSource
}

func (e *stubEngine) NewConn(src Source) (Conn, error) { panic("not used") }

func (e *stubEngine) NewSource(ctx context.Context, q Quality) (Source, error) {
	e.mu.Lock()
	gate, started := e.gate, e.started
	e.mu.Unlock()
	if gate != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := &stubSource{quality: q}
	e.mu.Lock()
	e.created = append(e.created, s)
	e.mu.Unlock()
	return s, nil
}

type stubSource struct {
	mu      sync.Mutex
	quality Quality
	closed  bool
}

func (s *stubSource) Quality() Quality     { return s.quality }
func (s *stubSource) SetAudioEnabled(bool) {}
func (s *stubSource) AudioEnabled() bool   { return true }
func (s *stubSource) SetVideoEnabled(bool) {}
func (s *stubSource) VideoEnabled() bool   { return true }

func (s *stubSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestAcquireReplacesCurrentSource(t *testing.T) {
	eng := &stubEngine{}
	mgr := NewSourceManager(eng, logger.New(false))

	first, err := mgr.Acquire(context.Background(), Quality{Name: "480p"})
	require.NoError(t, err)
	assert.Same(t, first, mgr.Current())

	second, err := mgr.Acquire(context.Background(), Quality{Name: "1080p"})
	require.NoError(t, err)
	assert.Same(t, second, mgr.Current())
	assert.True(t, first.(*stubSource).isClosed(), "old source must be released")
	assert.False(t, second.(*stubSource).isClosed())
}

// A newer Acquire arriving while an older one is still in flight wins;
// the older call's result is discarded and closed.
func TestAcquireSupersededByNewerRequest(t *testing.T) {
	eng := &stubEngine{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	mgr := NewSourceManager(eng, logger.New(false))

	errs := make(chan error, 1)
	go func() {
		_, err := mgr.Acquire(context.Background(), Quality{Name: "480p"})
		errs <- err
	}()

	// Wait until the first call is stalled inside the engine, then
	// start a newer one.
	<-eng.started
	eng.mu.Lock()
	gate := eng.gate
	eng.gate = nil
	eng.mu.Unlock()

	winner, err := mgr.Acquire(context.Background(), Quality{Name: "1080p"})
	require.NoError(t, err)

	// Unblock the stale call.
	close(gate)
	require.ErrorIs(t, <-errs, ErrSuperseded)

	assert.Same(t, winner, mgr.Current())
	assert.Equal(t, "1080p", mgr.Current().Quality().Name)

	// The stale result was created and then closed.
	eng.mu.Lock()
	created := append([]*stubSource(nil), eng.created...)
	eng.mu.Unlock()
	require.Len(t, created, 2)
	for _, s := range created {
		if s.Quality().Name == "480p" {
			assert.True(t, s.isClosed(), "stale source must be released")
		}
	}
}

func TestAcquireAfterCloseFails(t *testing.T) {
	eng := &stubEngine{}
	mgr := NewSourceManager(eng, logger.New(false))

	src, err := mgr.Acquire(context.Background(), Quality{Name: "720p"})
	require.NoError(t, err)

	mgr.Close()
	assert.True(t, src.(*stubSource).isClosed())
	assert.Nil(t, mgr.Current())

	_, err = mgr.Acquire(context.Background(), Quality{Name: "720p"})
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestAcquireHonorsContext(t *testing.T) {
	eng := &stubEngine{gate: make(chan struct{})}
	mgr := NewSourceManager(eng, logger.New(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mgr.Acquire(ctx, Quality{Name: "720p"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQualityByName(t *testing.T) {
	q, err := QualityByName("720p")
	require.NoError(t, err)
	assert.Equal(t, 1280, q.Width)
	assert.Equal(t, 720, q.Height)

	_, err = QualityByName("4k")
	assert.ErrorIs(t, err, ErrBadQuality)
}

func TestICEServersMapping(t *testing.T) {
	out := ICEServers([]config.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, out[0].URLs)
	assert.Empty(t, out[0].Username)
	assert.Equal(t, "u", out[1].Username)
	assert.Equal(t, "p", out[1].Credential)
}

func TestTransportStateString(t *testing.T) {
	assert.Equal(t, "connected", TransportConnected.String())
	assert.Equal(t, "disconnected", TransportDisconnected.String())
	assert.Equal(t, "failed", TransportFailed.String())
	assert.Equal(t, "unknown", TransportState(99).String())
}

func TestMediaErrorUnwrap(t *testing.T) {
	err := newError("set remote description", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "set remote description")
}

// The engine builds receive-only connections without a source and
// refuses sources it did not create.
func TestEngineRecvOnlyAndForeignSource(t *testing.T) {
	eng, err := NewEngine([]config.ICEServer{{URLs: []string{config.DefaultSTUN}}}, logger.New(false))
	require.NoError(t, err)

	conn, err := eng.NewConn(nil)
	require.NoError(t, err)
	defer conn.Close()

	offer, err := conn.CreateOffer()
	require.NoError(t, err)
	var desc struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	require.NoError(t, json.Unmarshal(offer, &desc))
	assert.Equal(t, "offer", desc.Type)
	assert.Contains(t, desc.SDP, "recvonly")

	_, err = eng.NewConn(&stubSource{})
	assert.ErrorIs(t, err, ErrForeignSource)
}

func TestEngineSourceTracksShareStream(t *testing.T) {
	eng, err := NewEngine(nil, logger.New(false))
	require.NoError(t, err)

	src, err := eng.NewSource(context.Background(), Quality{Name: "720p"})
	require.NoError(t, err)
	ls := src.(*localSource)
	assert.Equal(t, ls.audio.StreamID(), ls.video.StreamID())
	assert.True(t, src.AudioEnabled())
	assert.True(t, src.VideoEnabled())

	src.SetAudioEnabled(false)
	assert.False(t, src.AudioEnabled())

	conn, err := eng.NewConn(src)
	require.NoError(t, err)
	conn.Close()
}
