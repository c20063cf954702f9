package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/rtc"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

// Options configures one room membership.
type Options struct {
	RelayURL string
	// Room is the opaque room token; a fresh one is generated when
	// empty.
	Room    string
	Quality rtc.Quality

	// RecvOnly joins without acquiring a local source.
	RecvOnly bool

	SetupTimeout      time.Duration
	CandidateQueueCap int

	// OnRemoteTrack fires when media from a remote participant
	// becomes available.
	OnRemoteTrack func(participantID string, track rtc.RemoteTrack)
}

// OptionsFromConfig resolves client configuration into Options.
func OptionsFromConfig(c *config.Client) (Options, error) {
	q, err := rtc.QualityByName(c.Quality)
	if err != nil {
		return Options{}, err
	}
	return Options{
		RelayURL:          c.RelayURL,
		Room:              c.Room,
		Quality:           q,
		RecvOnly:          c.RecvOnly,
		SetupTimeout:      c.SetupTimeout,
		CandidateQueueCap: c.CandidateQueue,
	}, nil
}

// Membership is one client's presence in a room: the relay connection,
// the local media source and a session per remote participant. Leave
// releases everything before the membership reads as unset.
type Membership struct {
	room    string
	client  *Client
	orch    *Orchestrator
	sources *rtc.SourceManager
	log     *logger.Logger

	mu     sync.Mutex
	tracks map[string][]rtc.RemoteTrack

	leaveOnce sync.Once
	loopDone  chan struct{}
}

// Join acquires the local source, connects to the relay and enters the
// room. A failed source acquisition is surfaced to the caller unless
// the client is deliberately receive-only.
func Join(ctx context.Context, opts Options, engine rtc.Engine, log *logger.Logger) (*Membership, error) {
	if opts.Room == "" {
		opts.Room = signal.NewRoomID()
	}
	log = log.Extend(log.With().Str("room", opts.Room))

	sources := rtc.NewSourceManager(engine, log)
	if !opts.RecvOnly {
		if _, err := sources.Acquire(ctx, opts.Quality); err != nil {
			return nil, fmt.Errorf("acquire local source: %w", err)
		}
	}

	client := NewClient(opts.RelayURL, log)
	if err := client.Connect(ctx); err != nil {
		sources.Close()
		return nil, err
	}

	m := &Membership{
		room:     opts.Room,
		client:   client,
		sources:  sources,
		log:      log,
		tracks:   make(map[string][]rtc.RemoteTrack),
		loopDone: make(chan struct{}),
	}

	m.orch = NewOrchestrator(OrchestratorParams{
		Engine:       engine,
		Sources:      sources,
		Send:         client.Send,
		Log:          log,
		SetupTimeout: opts.SetupTimeout,
		QueueCap:     opts.CandidateQueueCap,
		RecvOnly:     opts.RecvOnly,
		OnTrack: func(id string, t rtc.RemoteTrack) {
			m.addTrack(id, t)
			if opts.OnRemoteTrack != nil {
				opts.OnRemoteTrack(id, t)
			}
		},
		OnSessionClosed: m.dropTracks,
	})

	client.Send(&signal.Envelope{Type: signal.TypeJoin, Room: opts.Room})
	go m.loop()

	log.Info().Msg("joined room")
	return m, nil
}

func (m *Membership) loop() {
	defer close(m.loopDone)
	for env := range m.client.Incoming() {
		m.orch.Handle(env)
	}
}

func (m *Membership) Room() string { return m.room }

// Orchestrator exposes the negotiation layer, mainly for inspection.
func (m *Membership) Orchestrator() *Orchestrator { return m.orch }

// SetQuality swaps the local source for one with the given preset. The
// old source is released first; a concurrent newer request supersedes
// this one.
func (m *Membership) SetQuality(ctx context.Context, name string) error {
	q, err := rtc.QualityByName(name)
	if err != nil {
		return err
	}
	if _, err := m.sources.Acquire(ctx, q); err != nil {
		return err
	}
	return nil
}

// SetAudioEnabled toggles the local audio tracks.
func (m *Membership) SetAudioEnabled(enabled bool) {
	if src := m.sources.Current(); src != nil {
		src.SetAudioEnabled(enabled)
	}
}

// SetVideoEnabled toggles the local video tracks.
func (m *Membership) SetVideoEnabled(enabled bool) {
	if src := m.sources.Current(); src != nil {
		src.SetVideoEnabled(enabled)
	}
}

// RemoteTracks returns a copy of the remote track registry keyed by
// participant id.
func (m *Membership) RemoteTracks() map[string][]rtc.RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]rtc.RemoteTrack, len(m.tracks))
	for id, ts := range m.tracks {
		out[id] = append([]rtc.RemoteTrack(nil), ts...)
	}
	return out
}

func (m *Membership) addTrack(id string, t rtc.RemoteTrack) {
	m.mu.Lock()
	m.tracks[id] = append(m.tracks[id], t)
	m.mu.Unlock()
}

func (m *Membership) dropTracks(id string) {
	m.mu.Lock()
	delete(m.tracks, id)
	m.mu.Unlock()
}

// Leave cancels all in-flight negotiation, releases every session and
// the media source, and closes the relay connection. It returns only
// after cleanup completes; no partial state is observable afterwards.
func (m *Membership) Leave() {
	m.leaveOnce.Do(func() {
		m.client.Send(&signal.Envelope{Type: signal.TypeLeave})
		m.orch.CloseAll()
		m.sources.Close()
		m.client.Close()
		<-m.loopDone

		m.mu.Lock()
		m.tracks = make(map[string][]rtc.RemoteTrack)
		m.mu.Unlock()

		m.log.Info().Msg("left room")
	})
}
