package peer

// Role says which side of the offer/answer exchange this session took.
// Whoever observes the new-participant notification initiates; whoever
// receives the first offer responds.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// State is the negotiation state of one peer session.
//
//	New -> OfferSent | OfferReceived -> AnswerExchanged -> Stable
//
// Closed is terminal and reachable from any state.
type State int32

const (
	StateNew State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
