package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type enumerates every envelope kind carried through the relay.
type Type string

const (
	TypeJoin           Type = "join"
	TypeLeave          Type = "leave"
	TypeOffer          Type = "offer"
	TypeAnswer         Type = "answer"
	TypeCandidate      Type = "candidate"
	TypeNewParticipant Type = "new-participant"
)

var (
	ErrUnknownType    = errors.New("unknown envelope type")
	ErrMissingRoom    = errors.New("join without a room")
	ErrMissingPayload = errors.New("envelope without payload")
	ErrMissingID      = errors.New("envelope without participant id")
)

// Envelope is the wire unit exchanged through the relay. SDP descriptions
// and ICE candidates are opaque to the relay and ride as raw JSON.
//
// From is stamped by the relay with the sender's connection id and is
// never trusted from the client.
type Envelope struct {
	Type      Type            `json:"type"`
	Room      string          `json:"room,omitempty"`
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	ID        string          `json:"id,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Validate checks the fields required for each envelope type as it
// arrives from a client. Server-originated types (new-participant, the
// synthetic leave) are produced by the relay itself and carry ID.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeJoin:
		if e.Room == "" {
			return ErrMissingRoom
		}
	case TypeOffer, TypeAnswer:
		if len(e.SDP) == 0 {
			return fmt.Errorf("%s: %w", e.Type, ErrMissingPayload)
		}
	case TypeCandidate:
		if len(e.Candidate) == 0 {
			return fmt.Errorf("%s: %w", e.Type, ErrMissingPayload)
		}
	case TypeLeave:
	case TypeNewParticipant:
		if e.ID == "" {
			return fmt.Errorf("%s: %w", e.Type, ErrMissingID)
		}
	default:
		return fmt.Errorf("%q: %w", string(e.Type), ErrUnknownType)
	}
	return nil
}
