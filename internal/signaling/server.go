package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/relay"
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Coordinator *relay.Coordinator

	Logger *slog.Logger
	// Metrics defaults to the coordinator's registry.
	Metrics *metrics.Metrics

	// CheckOrigin is handed to the WebSocket upgrader. Origin checks are
	// normally enforced by the outer httpserver middleware, so nil accepts all
	// origins.
	CheckOrigin func(r *http.Request) bool

	DefaultDisplayName   string
	MaxDisplayNameLength int
	MaxChatMessageLength int

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	// SendQueueBytes bounds the encoded frames buffered per connection.
	SendQueueBytes int
}

// inboundHandler processes one decoded inbound event for a participant.
type inboundHandler func(participantID string, data json.RawMessage) error

var errLeave = errors.New("participant left")

// Server implements the pairing service's WebSocket signaling surface.
//
// Endpoints:
//   - GET /signal : WebSocket; the optional ?name= query parameter sets the
//     participant's display name.
type Server struct {
	coord   *relay.Coordinator
	log     *slog.Logger
	metrics *metrics.Metrics
	cfg     Config

	upgrader websocket.Upgrader
	handlers map[string]inboundHandler

	mu       sync.Mutex
	closed   bool
	sessions map[*wsSession]struct{}
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		if cfg.Coordinator != nil {
			cfg.Metrics = cfg.Coordinator.Metrics()
		} else {
			cfg.Metrics = metrics.New()
		}
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if strings.TrimSpace(cfg.DefaultDisplayName) == "" {
		cfg.DefaultDisplayName = "Anonymous"
	}
	if cfg.MaxSignalingMessageBytes <= 0 {
		cfg.MaxSignalingMessageBytes = 64 * 1024
	}
	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		cfg.MaxSignalingMessagesPerSecond = 50
	}
	if cfg.SendQueueBytes <= 0 {
		cfg.SendQueueBytes = 1 << 20
	}

	s := &Server{
		coord:    cfg.Coordinator,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		cfg:      cfg,
		upgrader: websocket.Upgrader{CheckOrigin: cfg.CheckOrigin},
		sessions: make(map[*wsSession]struct{}),
	}
	s.handlers = map[string]inboundHandler{
		EventOffer:        s.handleOffer,
		EventAnswer:       s.handleAnswer,
		EventICECandidate: s.handleICECandidate,
		EventSendMessage:  s.handleSendMessage,
		EventLeave:        s.handleLeave,
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal", s.handleWebSocketSignal)
}

// Close disconnects every live participant. New upgrades are refused
// afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*wsSession, 0, len(s.sessions))
	for wss := range s.sessions {
		sessions = append(sessions, wss)
	}
	s.mu.Unlock()

	for _, wss := range sessions {
		wss.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
}

// ActiveConnections reports the number of open WebSocket connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleWebSocketSignal(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		http.Error(w, "coordinator not configured", http.StatusInternalServerError)
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wss := newWSSession(s, conn, uuid.NewString(), s.displayName(r.URL.Query().Get("name")))
	if !s.track(wss) {
		wss.writeClose(websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
		return
	}
	defer s.untrack(wss)
	wss.run()
}

func (s *Server) track(wss *wsSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[wss] = struct{}{}
	return true
}

func (s *Server) untrack(wss *wsSession) {
	s.mu.Lock()
	delete(s.sessions, wss)
	s.mu.Unlock()
}

// displayName trims raw, falls back to the configured default and caps the
// result at MaxDisplayNameLength runes.
func (s *Server) displayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" || !utf8.ValidString(name) {
		return s.cfg.DefaultDisplayName
	}
	if limit := s.cfg.MaxDisplayNameLength; limit > 0 && utf8.RuneCountInString(name) > limit {
		name = string([]rune(name)[:limit])
	}
	return name
}

func (s *Server) handleOffer(participantID string, data json.RawMessage) error {
	var p descriptionPayload
	if err := decodeDescription(data, &p); err != nil {
		return err
	}
	s.coord.Offer(participantID, p.SessionID, p.SDP)
	return nil
}

func (s *Server) handleAnswer(participantID string, data json.RawMessage) error {
	var p descriptionPayload
	if err := decodeDescription(data, &p); err != nil {
		return err
	}
	s.coord.Answer(participantID, p.SessionID, p.SDP)
	return nil
}

func (s *Server) handleICECandidate(participantID string, data json.RawMessage) error {
	var p candidatePayload
	if err := decodePayload(data, &p); err != nil {
		return badMessage(err)
	}
	if err := p.check(); err != nil {
		return badMessage(err)
	}
	s.coord.AddICECandidate(participantID, p.SessionID, p.Candidate, relay.CandidateRole(p.Type))
	return nil
}

func (s *Server) handleSendMessage(participantID string, data json.RawMessage) error {
	var p chatPayload
	if err := decodePayload(data, &p); err != nil {
		return badMessage(err)
	}
	if err := checkChatLength(p.Message, s.cfg.MaxChatMessageLength); err != nil {
		return &protocolError{Code: codeMessageTooLong, Message: err.Error()}
	}
	s.coord.SendMessage(participantID, p.SessionID, p.Message)
	return nil
}

func (s *Server) handleLeave(string, json.RawMessage) error {
	return errLeave
}

func decodeDescription(data json.RawMessage, p *descriptionPayload) error {
	if err := decodePayload(data, p); err != nil {
		return badMessage(err)
	}
	if err := p.check(); err != nil {
		return badMessage(err)
	}
	return nil
}
