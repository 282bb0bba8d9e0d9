package relay

import (
	"errors"
	"log/slog"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
)

// Router forwards signaling and chat payloads to the other member of a
// session. It never delivers to the sender and never looks inside SDP or
// candidate bodies.
type Router struct {
	registry *Registry
	sessions *SessionStore
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewRouter(registry *Registry, sessions *SessionStore, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *Router {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Router{
		registry: registry,
		sessions: sessions,
		metrics:  m,
		log:      logger,
		now:      now,
	}
}

// RelaySignal forwards sig to the sender's counterpart in sessionID and
// reports whether it was delivered. Signals for sessions that no longer exist
// (or that the sender is not part of) are dropped without error; they are
// expected when a partner disconnects mid-negotiation.
func (r *Router) RelaySignal(kind SignalKind, sessionID, senderID string, sig Signal) bool {
	other, err := r.sessions.OtherParty(sessionID, senderID)
	if err != nil {
		r.drop(metrics.SignalsDropped, kind.String(), sessionID, senderID, err)
		return false
	}

	var (
		event   string
		payload any
	)
	switch kind {
	case SignalOffer:
		event, payload = EventOffer, Description{SDP: sig.SDP, SessionID: sessionID}
	case SignalAnswer:
		event, payload = EventAnswer, Description{SDP: sig.SDP, SessionID: sessionID}
	case SignalICECandidate:
		event, payload = EventICECandidate, Candidate{Candidate: sig.Candidate, Type: sig.Role}
	default:
		r.drop(metrics.SignalsDropped, kind.String(), sessionID, senderID, errors.New("unknown signal kind"))
		return false
	}

	if err := r.deliver(other, event, payload); err != nil {
		r.drop(metrics.SignalsDropped, kind.String(), sessionID, senderID, err)
		return false
	}
	r.metrics.Inc(metrics.SignalsRelayed)
	return true
}

// RelayChat stamps text with the sender's identity and the current time and
// forwards it to every other member of the session. It returns the number
// of members reached.
func (r *Router) RelayChat(sessionID, senderID, text string) int {
	sess, err := r.sessions.Lookup(sessionID)
	if err == nil && !sess.Has(senderID) {
		err = ErrNotMember
	}
	if err != nil {
		r.drop(metrics.ChatsDropped, "chat", sessionID, senderID, err)
		return 0
	}

	sender, _ := r.registry.Participant(senderID)
	msg := ChatMessage{
		Text:       text,
		SenderID:   senderID,
		SenderName: sender.Name,
		TimeStamp:  r.now().UnixMilli(),
	}

	delivered := 0
	for _, member := range []string{sess.PartyA, sess.PartyB} {
		if member == senderID {
			continue
		}
		if err := r.deliver(member, EventReceiveMessage, msg); err != nil {
			r.drop(metrics.ChatsDropped, "chat", sessionID, senderID, err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		r.metrics.Inc(metrics.ChatsRelayed)
	}
	return delivered
}

func (r *Router) deliver(id, event string, payload any) error {
	h, err := r.registry.Lookup(id)
	if err != nil {
		return err
	}
	return h.Send(event, payload)
}

func (r *Router) drop(counter, kind, sessionID, senderID string, err error) {
	r.metrics.Inc(counter)
	r.log.Debug("relay dropped",
		"kind", kind,
		"session_id", sessionID,
		"participant_id", senderID,
		"err", err,
	)
}
