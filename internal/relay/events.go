package relay

import "encoding/json"

// Handle delivers an outbound event to one connected participant. Send must
// not block on the network; the transport is expected to buffer.
type Handle interface {
	Send(event string, payload any) error
}

// Outbound event names.
const (
	EventLobby          = "lobby"
	EventSendOffer      = "send-offer"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "add-ice-candidate"
	EventReceiveMessage = "receive-message"
)

// SignalKind selects the envelope used when forwarding a signaling payload.
type SignalKind int

const (
	SignalOffer SignalKind = iota + 1
	SignalAnswer
	SignalICECandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalICECandidate:
		return "ice_candidate"
	default:
		return "unknown"
	}
}

// CandidateRole tags which side of the pairing produced an ICE candidate.
type CandidateRole string

const (
	RoleSender   CandidateRole = "sender"
	RoleReceiver CandidateRole = "receiver"
)

// Signal carries the opaque parts of a signaling event. SDP is set for
// offers and answers; Candidate and Role for ICE candidates.
type Signal struct {
	SDP       json.RawMessage
	Candidate json.RawMessage
	Role      CandidateRole
}

// SessionReady is sent to both members when a session is created.
type SessionReady struct {
	SessionID string `json:"sessionId"`
}

// Description forwards an offer or answer.
type Description struct {
	SDP       json.RawMessage `json:"sdp"`
	SessionID string          `json:"sessionId"`
}

// Candidate forwards an ICE candidate.
type Candidate struct {
	Candidate json.RawMessage `json:"candidate"`
	Type      CandidateRole   `json:"type"`
}

// ChatMessage is relayed and never stored.
type ChatMessage struct {
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	TimeStamp  int64  `json:"timeStamp"`
}
