// Package rtc wraps the media-capable peer connection the negotiation
// layer drives. It can acquire a local audio/video source, create
// offers and answers, apply remote descriptions and accept remote ICE
// candidates. Media transport, congestion control and codec
// negotiation happen below this boundary.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrSuperseded    = errors.New("source acquisition superseded")
	ErrSourceClosed  = errors.New("source manager closed")
	ErrForeignSource = errors.New("source was not created by this engine")
	ErrBadQuality    = errors.New("unknown quality preset")
)

// MediaError wraps a failure of the underlying media stack with the
// operation that produced it.
type MediaError struct {
	Op  string
	Err error
}

func (e *MediaError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *MediaError) Unwrap() error { return e.Err }

func newError(op string, err error) *MediaError { return &MediaError{Op: op, Err: err} }

// TransportState reports connectivity of the media transport. The
// negotiation state machine treats Connected as its external signal to
// become stable.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	// TransportDisconnected is a transient connectivity loss that ICE
	// usually recovers from on its own; only Failed and Closed are
	// terminal.
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// RemoteTrack is a handle to media arriving from a remote participant.
type RemoteTrack struct {
	ID   string
	Kind string
}

// Conn is one media-capable connection, owned exclusively by a single
// peer session. Descriptions and candidates cross this boundary as raw
// JSON in the browser wire format.
type Conn interface {
	// CreateOffer produces and applies a local offer description.
	CreateOffer() (json.RawMessage, error)
	// CreateAnswer produces and applies a local answer; the remote
	// offer must have been applied first.
	CreateAnswer() (json.RawMessage, error)
	SetRemoteDescription(sdp json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error

	OnCandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(state TransportState))
	OnTrack(fn func(track RemoteTrack))

	Close() error
}

// Source is a shared local capture handle, attached read-only to every
// peer session of a room membership.
type Source interface {
	Quality() Quality
	SetAudioEnabled(enabled bool)
	AudioEnabled() bool
	SetVideoEnabled(enabled bool)
	VideoEnabled() bool
	Close() error
}

// Engine creates media connections and local sources. Passing a nil
// source to NewConn yields a receive-only connection.
type Engine interface {
	NewConn(src Source) (Conn, error)
	NewSource(ctx context.Context, q Quality) (Source, error)
}

// Quality is a capture preset. Acquisition itself is out of scope; the
// preset tags the source and sizes its video track.
type Quality struct {
	Name   string
	Width  int
	Height int
}

var qualities = map[string]Quality{
	"480p":  {Name: "480p", Width: 854, Height: 480},
	"720p":  {Name: "720p", Width: 1280, Height: 720},
	"1080p": {Name: "1080p", Width: 1920, Height: 1080},
}

// QualityByName resolves a preset name from configuration.
func QualityByName(name string) (Quality, error) {
	q, ok := qualities[name]
	if !ok {
		return Quality{}, fmt.Errorf("%q: %w", name, ErrBadQuality)
	}
	return q, nil
}
