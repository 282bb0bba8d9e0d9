package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
)

// ParticipantState is a participant's position in the matchmaking lifecycle.
type ParticipantState int

const (
	StateGone ParticipantState = iota
	StateIdle
	StateQueued
	StatePaired
)

func (s ParticipantState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StatePaired:
		return "paired"
	default:
		return "gone"
	}
}

type Config struct {
	// MaxParticipants caps concurrent connections. <= 0 means unlimited.
	MaxParticipants int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Now stamps chat messages. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	Connected int
	Queued    int
	Sessions  int
}

// Coordinator drives each participant through Idle -> Queued -> Paired and
// back, and serializes every mutation of the registry, queue and session
// store behind one mutex so pair-check-then-act and destroy-then-notify are
// atomic.
type Coordinator struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	registry *Registry
	queue    *Queue
	sessions *SessionStore
	router   *Router
}

func NewCoordinator(cfg Config) *Coordinator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(cfg.MaxParticipants)
	sessions := NewSessionStore()
	return &Coordinator{
		log:      logger,
		metrics:  m,
		registry: registry,
		queue:    NewQueue(),
		sessions: sessions,
		router:   NewRouter(registry, sessions, m, logger, cfg.Now),
	}
}

func (c *Coordinator) Metrics() *metrics.Metrics { return c.metrics }

// Join registers a newly accepted connection, queues it, tells it that it is
// waiting, and attempts pairing. Duplicate ids and capacity overflows are
// returned to the caller and leave no state behind.
func (c *Coordinator) Join(id, name string, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.registry.Add(id, h, name); err != nil {
		if errors.Is(err, ErrTooManyParticipants) {
			c.metrics.Inc(metrics.RejectedCapacity)
		}
		return err
	}
	if err := c.queue.Enqueue(id); err != nil {
		c.registry.Remove(id)
		return err
	}
	c.metrics.Inc(metrics.ParticipantsJoined)
	c.log.Debug("participant joined", "participant_id", id, "name", name)

	c.notifyLocked(id, EventLobby, nil)
	c.pairLocked()
	return nil
}

// Leave handles a disconnect (or explicit leave). The participant is removed
// from whichever structure holds it; an orphaned partner is told it is back
// in the lobby and re-queued at the tail. Calling Leave for an unknown or
// already departed id is a no-op.
func (c *Coordinator) Leave(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Contains(id) {
		return
	}

	c.queue.Remove(id)
	if sess, err := c.sessions.FindByParticipant(id); err == nil {
		c.destroyLocked(sess.ID, id)
	}
	c.registry.Remove(id)
	c.metrics.Inc(metrics.ParticipantsLeft)
	c.log.Debug("participant left", "participant_id", id)

	c.pairLocked()
}

// Offer forwards an SDP offer to the sender's partner.
func (c *Coordinator) Offer(senderID, sessionID string, sdp json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.RelaySignal(SignalOffer, sessionID, senderID, Signal{SDP: sdp})
}

// Answer forwards an SDP answer to the sender's partner.
func (c *Coordinator) Answer(senderID, sessionID string, sdp json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.RelaySignal(SignalAnswer, sessionID, senderID, Signal{SDP: sdp})
}

// AddICECandidate forwards a reachability candidate to the sender's partner.
func (c *Coordinator) AddICECandidate(senderID, sessionID string, candidate json.RawMessage, role CandidateRole) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.RelaySignal(SignalICECandidate, sessionID, senderID, Signal{Candidate: candidate, Role: role})
}

// SendMessage relays chat text to the other session member.
func (c *Coordinator) SendMessage(senderID, sessionID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.RelayChat(sessionID, senderID, text) > 0
}

func (c *Coordinator) State(id string) ParticipantState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.registry.Contains(id):
		return StateGone
	case c.queue.Contains(id):
		return StateQueued
	}
	if _, err := c.sessions.FindByParticipant(id); err == nil {
		return StatePaired
	}
	return StateIdle
}

// SessionOf returns the live session id for a participant.
func (c *Coordinator) SessionOf(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, err := c.sessions.FindByParticipant(id)
	if err != nil {
		return "", false
	}
	return sess.ID, true
}

// QueuedIDs returns the waiting participants, oldest first.
func (c *Coordinator) QueuedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.IDs()
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Connected: c.registry.Len(),
		Queued:    c.queue.Len(),
		Sessions:  c.sessions.Len(),
	}
}

// Gauges adapts Stats for metrics.PrometheusHandler.
func (c *Coordinator) Gauges() map[string]int {
	s := c.Stats()
	return map[string]int{
		"connected": s.Connected,
		"queued":    s.Queued,
		"paired":    2 * s.Sessions,
	}
}

// destroyLocked tears down sessionID on behalf of departing and returns the
// surviving partner to the lobby at the tail of the queue.
func (c *Coordinator) destroyLocked(sessionID, departing string) {
	sess, ok := c.sessions.Destroy(sessionID)
	if !ok {
		return
	}
	c.metrics.Inc(metrics.SessionsDestroyed)
	c.log.Info("session ended", "session_id", sess.ID, "departed", departing)

	partner, ok := sess.Other(departing)
	if !ok || !c.registry.Contains(partner) {
		return
	}
	c.notifyLocked(partner, EventLobby, nil)
	if err := c.queue.Enqueue(partner); err != nil {
		c.log.Error("requeue partner failed", "participant_id", partner, "err", err)
	}
}

// pairLocked drains the queue into new sessions. A pair that cannot be
// stored is skipped; its surviving members are re-queued once the drain is
// over so a persistent failure cannot spin.
func (c *Coordinator) pairLocked() {
	var stranded []string
	for a, b := range c.queue.DrainPairs(c.registry.Contains) {
		sess, err := c.sessions.Create(a, b)
		if err != nil {
			c.metrics.Inc(metrics.PairingFailed)
			c.log.Error("pairing failed", "participant_a", a, "participant_b", b, "err", err)
			stranded = append(stranded, a, b)
			continue
		}
		c.metrics.Inc(metrics.SessionsCreated)
		c.log.Info("session created", "session_id", sess.ID, "participant_a", a, "participant_b", b)

		ready := SessionReady{SessionID: sess.ID}
		c.notifyLocked(a, EventSendOffer, ready)
		c.notifyLocked(b, EventSendOffer, ready)
	}

	for _, id := range stranded {
		if !c.registry.Contains(id) || c.queue.Contains(id) {
			continue
		}
		if _, err := c.sessions.FindByParticipant(id); err == nil {
			continue
		}
		_ = c.queue.Enqueue(id)
	}
}

func (c *Coordinator) notifyLocked(id, event string, payload any) {
	h, err := c.registry.Lookup(id)
	if err != nil {
		return
	}
	if err := h.Send(event, payload); err != nil {
		c.log.Debug("notify failed", "participant_id", id, "event", event, "err", err)
	}
}
