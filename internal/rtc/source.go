package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
)

// localSource is the pion-backed Source: one audio and one video track
// sharing a stream id, attachable to any number of peer connections.
type localSource struct {
	quality Quality
	audio   *pion.TrackLocalStaticSample
	video   *pion.TrackLocalStaticSample

	mu      sync.Mutex
	audioOn bool
	videoOn bool
	closed  bool
}

// NewSource acquires a local capture handle. Actual device capture is
// outside this core; the tracks carry whatever the enclosing process
// feeds them.
func (e *PionEngine) NewSource(ctx context.Context, q Quality) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError("acquire source", err)
	}

	streamID := uuid.NewString()
	audio, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, newError("create audio track", err)
	}
	video, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, newError("create video track", err)
	}

	e.log.Debug().Str("quality", q.Name).Str("stream", streamID).Msg("local source acquired")
	return &localSource{quality: q, audio: audio, video: video, audioOn: true, videoOn: true}, nil
}

// attach adds the source tracks to pc. The session only reads from the
// source; ownership stays with the room membership.
func (s *localSource) attach(pc *pion.PeerConnection) error {
	if _, err := pc.AddTrack(s.audio); err != nil {
		return newError("attach audio track", err)
	}
	if _, err := pc.AddTrack(s.video); err != nil {
		return newError("attach video track", err)
	}
	return nil
}

func (s *localSource) Quality() Quality { return s.quality }

func (s *localSource) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	s.audioOn = enabled
	s.mu.Unlock()
}

func (s *localSource) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

func (s *localSource) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	s.videoOn = enabled
	s.mu.Unlock()
}

func (s *localSource) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

func (s *localSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
