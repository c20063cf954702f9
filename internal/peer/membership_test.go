package peer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/monitoring"
	"github.com/merhawi-21/video-meeting/internal/relay"
	"github.com/merhawi-21/video-meeting/internal/rtc"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// startRelay runs a real relay over httptest and returns its ws URL.
func startRelay(t *testing.T) string {
	t.Helper()
	log := logger.New(false)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	registry := relay.NewRegistry(log, metrics)
	r := relay.New(config.Relay{SendBuffer: 64}, registry, metrics, log)

	srv := httptest.NewServer(r.Routes())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func joinRoom(t *testing.T, url, room string, engine *fakeEngine) *Membership {
	t.Helper()
	m, err := Join(context.Background(), Options{
		RelayURL:          url,
		Room:              room,
		Quality:           rtc.Quality{Name: "720p"},
		SetupTimeout:      5 * time.Second,
		CandidateQueueCap: 64,
	}, engine, logger.New(false))
	require.NoError(t, err)
	t.Cleanup(m.Leave)
	return m
}

// Two members join the same room and negotiate through the relay: the
// earlier member initiates toward the joiner, the joiner answers, and
// candidates flow both ways.
func TestTwoMembersNegotiateThroughRelay(t *testing.T) {
	url := startRelay(t)
	room := signal.NewRoomID()

	engA := &fakeEngine{}
	a := joinRoom(t, url, room, engA)

	engB := &fakeEngine{}
	b := joinRoom(t, url, room, engB)

	// A learns about B and offers; B answers.
	require.Eventually(t, func() bool {
		return a.Orchestrator().SessionCount() == 1 &&
			b.Orchestrator().SessionCount() == 1
	}, waitFor, tick, "both sides must hold one session")

	require.Eventually(t, func() bool {
		aConn, bConn := engA.conn(0), engB.conn(0)
		return aConn != nil && bConn != nil &&
			aConn.remoteCount() == 1 && bConn.remoteCount() == 1
	}, waitFor, tick, "offer and answer must both be applied")

	var aSess *Session
	for _, s := range sessionsOf(a) {
		aSess = s
	}
	require.NotNil(t, aSess)
	assert.Equal(t, RoleInitiator, aSess.Role())
	assert.Equal(t, StateAnswerExchanged, aSess.State())

	// Candidates published by A's transport reach B's connection.
	engA.conn(0).fireCandidate([]byte(`{"candidate":"a-0"}`))
	require.Eventually(t, func() bool {
		return len(engB.conn(0).appliedCandidates()) == 1
	}, waitFor, tick)
	assert.JSONEq(t, `{"candidate":"a-0"}`, string(engB.conn(0).appliedCandidates()[0]))

	// And the reverse direction.
	engB.conn(0).fireCandidate([]byte(`{"candidate":"b-0"}`))
	require.Eventually(t, func() bool {
		return len(engA.conn(0).appliedCandidates()) == 1
	}, waitFor, tick)
}

func sessionsOf(m *Membership) map[string]*Session {
	out := make(map[string]*Session)
	m.orch.store.ForEach(func(s *Session) { out[s.ID()] = s })
	return out
}

// A member in a different room sees none of the traffic.
func TestRoomsAreIsolated(t *testing.T) {
	url := startRelay(t)

	engA, engB, engC := &fakeEngine{}, &fakeEngine{}, &fakeEngine{}
	room := signal.NewRoomID()
	joinRoom(t, url, room, engA)
	b := joinRoom(t, url, room, engB)
	c := joinRoom(t, url, signal.NewRoomID(), engC)

	require.Eventually(t, func() bool {
		return b.Orchestrator().SessionCount() == 1
	}, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, c.Orchestrator().SessionCount())
	assert.Equal(t, 0, engC.connCount())
}

// Leave releases sessions, the source and the relay connection, and
// the remaining member is told about the departure.
func TestLeaveTearsDownBothSides(t *testing.T) {
	url := startRelay(t)
	room := signal.NewRoomID()

	engA, engB := &fakeEngine{}, &fakeEngine{}
	a := joinRoom(t, url, room, engA)
	b := joinRoom(t, url, room, engB)

	require.Eventually(t, func() bool {
		return a.Orchestrator().SessionCount() == 1 &&
			b.Orchestrator().SessionCount() == 1
	}, waitFor, tick)

	b.Leave()

	assert.Equal(t, 0, b.Orchestrator().SessionCount())
	require.Eventually(t, func() bool {
		return a.Orchestrator().SessionCount() == 0
	}, waitFor, tick, "remaining member must observe the leave")
	require.Eventually(t, func() bool {
		return engB.conn(0).isClosed()
	}, waitFor, tick)

	// Leave is idempotent.
	assert.NotPanics(t, b.Leave)
}

func TestJoinGeneratesRoomWhenUnset(t *testing.T) {
	url := startRelay(t)

	m := joinRoom(t, url, "", &fakeEngine{})
	assert.True(t, strings.HasPrefix(m.Room(), "room_"))
}

func TestJoinSurfacesSourceFailure(t *testing.T) {
	url := startRelay(t)
	eng := &fakeEngine{sourceErr: errRejected}

	_, err := Join(context.Background(), Options{
		RelayURL:     url,
		Quality:      rtc.Quality{Name: "720p"},
		SetupTimeout: time.Second,
	}, eng, logger.New(false))
	require.ErrorIs(t, err, errRejected)
}

func TestRecvOnlyJoinSkipsSource(t *testing.T) {
	url := startRelay(t)
	eng := &fakeEngine{sourceErr: errRejected}

	m, err := Join(context.Background(), Options{
		RelayURL:     url,
		Quality:      rtc.Quality{Name: "720p"},
		RecvOnly:     true,
		SetupTimeout: time.Second,
	}, eng, logger.New(false))
	require.NoError(t, err)
	m.Leave()
}

// Remote tracks are registered per participant and dropped with the
// session.
func TestRemoteTrackRegistry(t *testing.T) {
	url := startRelay(t)
	room := signal.NewRoomID()

	engA, engB := &fakeEngine{}, &fakeEngine{}
	a := joinRoom(t, url, room, engA)
	b := joinRoom(t, url, room, engB)

	require.Eventually(t, func() bool {
		return a.Orchestrator().SessionCount() == 1
	}, waitFor, tick)

	engA.conn(0).fireTrack(rtc.RemoteTrack{ID: "t-audio", Kind: "audio"})
	engA.conn(0).fireTrack(rtc.RemoteTrack{ID: "t-video", Kind: "video"})

	require.Eventually(t, func() bool {
		for _, ts := range a.RemoteTracks() {
			if len(ts) == 2 {
				return true
			}
		}
		return false
	}, waitFor, tick)

	b.Leave()
	require.Eventually(t, func() bool {
		return len(a.RemoteTracks()) == 0
	}, waitFor, tick, "tracks must be dropped with the session")
}

func TestMuteTogglesLocalSource(t *testing.T) {
	url := startRelay(t)
	eng := &fakeEngine{}
	m := joinRoom(t, url, signal.NewRoomID(), eng)

	src, ok := m.sources.Current().(*fakeSource)
	require.True(t, ok)
	require.True(t, src.AudioEnabled())

	m.SetAudioEnabled(false)
	assert.False(t, src.AudioEnabled())
	m.SetVideoEnabled(false)
	assert.False(t, src.VideoEnabled())
	m.SetAudioEnabled(true)
	assert.True(t, src.AudioEnabled())
}

func TestSetQualitySwapsSource(t *testing.T) {
	url := startRelay(t)
	eng := &fakeEngine{}
	m := joinRoom(t, url, signal.NewRoomID(), eng)

	old, ok := m.sources.Current().(*fakeSource)
	require.True(t, ok)

	require.NoError(t, m.SetQuality(context.Background(), "1080p"))

	cur, ok := m.sources.Current().(*fakeSource)
	require.True(t, ok)
	assert.Equal(t, "1080p", cur.Quality().Name)
	assert.True(t, old.isClosed())

	assert.Error(t, m.SetQuality(context.Background(), "8k"))
}
