package signaling

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/relay"
)

const wsWriteWait = 1 * time.Second

// Error codes carried in outbound error frames.
const (
	codeBadMessage          = "bad_message"
	codeUnknownEvent        = "unknown_event"
	codeMessageTooLong      = "message_too_long"
	codeRateLimited         = "rate_limited"
	codeTooManyParticipants = "too_many_participants"
	codeInternalError       = "internal_error"
)

type protocolError struct {
	Code    string
	Message string
}

func (e *protocolError) Error() string { return e.Code + ": " + e.Message }

func badMessage(err error) error {
	return &protocolError{Code: codeBadMessage, Message: err.Error()}
}

// wsSession is one participant's connection. It implements relay.Handle.
type wsSession struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	id   string
	name string

	limiter *rate.Limiter
	out     *sendQueue

	stopOnce    sync.Once
	done        chan struct{}
	writerDone  chan struct{}
	closeCode   int
	closeReason string
}

var _ relay.Handle = (*wsSession)(nil)

func newWSSession(srv *Server, conn *websocket.Conn, id, name string) *wsSession {
	perSecond := srv.cfg.MaxSignalingMessagesPerSecond
	return &wsSession{
		srv:        srv,
		conn:       conn,
		log:        srv.log.With("participant_id", id),
		id:         id,
		name:       name,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), perSecond),
		out:        newSendQueue(srv.cfg.SendQueueBytes),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		closeCode:  websocket.CloseNormalClosure,
	}
}

// Send encodes and queues an outbound event without blocking. A connection
// whose queue overflows is closed.
func (wss *wsSession) Send(event string, payload any) error {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	err = wss.out.Enqueue(frame)
	if errors.Is(err, errQueueFull) {
		wss.srv.metrics.Inc(metrics.SlowConsumerClosed)
		wss.log.Warn("closing slow consumer", "event", event)
		wss.abort()
	}
	return err
}

func (wss *wsSession) run() {
	go wss.writeLoop()
	defer wss.finish()

	wss.conn.SetReadLimit(wss.srv.cfg.MaxSignalingMessageBytes)
	wss.conn.SetPongHandler(func(string) error {
		wss.extendReadDeadline()
		return nil
	})
	wss.extendReadDeadline()
	go wss.pingLoop()

	if err := wss.Send(EventWelcome, Welcome{ParticipantID: wss.id, Name: wss.name}); err != nil {
		return
	}
	if err := wss.srv.coord.Join(wss.id, wss.name, wss); err != nil {
		if errors.Is(err, relay.ErrTooManyParticipants) {
			wss.fail(codeTooManyParticipants, "server is at capacity", websocket.CloseTryAgainLater, "too many participants")
			return
		}
		wss.log.Error("join failed", "err", err)
		wss.fail(codeInternalError, "failed to join", websocket.CloseInternalServerErr, "internal error")
		return
	}
	defer wss.srv.coord.Leave(wss.id)
	wss.log.Info("participant connected", "name", wss.name)

	for {
		msgType, data, err := wss.conn.ReadMessage()
		if err != nil {
			wss.handleReadError(err)
			return
		}
		wss.extendReadDeadline()

		// The rate limit is applied after reading so any bytes already in the
		// TCP receive buffer are consumed; closing with unread data may reset
		// the connection before the client sees the close frame.
		if !wss.limiter.Allow() {
			wss.srv.metrics.Inc(metrics.RateLimited)
			wss.fail(codeRateLimited, "rate limit exceeded", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			wss.violation(codeBadMessage, "expected text message", websocket.CloseUnsupportedData)
			return
		}

		env, err := parseEnvelope(data)
		if err != nil {
			wss.violation(codeBadMessage, err.Error(), websocket.ClosePolicyViolation)
			return
		}
		handler, ok := wss.srv.handlers[env.Event]
		if !ok {
			wss.violation(codeUnknownEvent, fmt.Sprintf("unexpected event %q", env.Event), websocket.ClosePolicyViolation)
			return
		}
		if err := handler(wss.id, env.Data); err != nil {
			if errors.Is(err, errLeave) {
				wss.shutdown(websocket.CloseNormalClosure, "")
				return
			}
			var protoErr *protocolError
			if errors.As(err, &protoErr) {
				wss.violation(protoErr.Code, protoErr.Message, websocket.ClosePolicyViolation)
				return
			}
			wss.log.Error("handle event", "event", env.Event, "err", err)
			wss.fail(codeInternalError, "internal error", websocket.CloseInternalServerErr, "internal error")
			return
		}
	}
}

func (wss *wsSession) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla/websocket has already sent 1009.
		wss.srv.metrics.Inc(metrics.ProtocolErrors)
		wss.abort()
	case isTimeout(err):
		wss.log.Debug("idle timeout")
		wss.shutdown(websocket.CloseNormalClosure, "idle timeout")
	default:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			wss.log.Debug("websocket closed", "err", err)
		}
		wss.shutdown(websocket.CloseNormalClosure, "")
	}
}

// violation reports a protocol error to the client and closes.
func (wss *wsSession) violation(code, message string, closeCode int) {
	wss.srv.metrics.Inc(metrics.ProtocolErrors)
	wss.log.Debug("protocol violation", "code", code, "err", message)
	wss.fail(code, message, closeCode, code)
}

func (wss *wsSession) fail(code, message string, closeCode int, closeReason string) {
	_ = wss.Send(EventError, ErrorPayload{Code: code, Message: message})
	wss.shutdown(closeCode, closeReason)
}

// shutdown stops accepting frames, lets the writer flush what is queued and
// then sends a close frame with code and reason. Only the first call counts.
func (wss *wsSession) shutdown(code int, reason string) {
	wss.stopOnce.Do(func() {
		wss.closeCode = code
		wss.closeReason = reason
		close(wss.done)
		wss.out.Finish()
	})
}

// abort drops queued frames and tears the connection down without a close
// handshake.
func (wss *wsSession) abort() {
	wss.stopOnce.Do(func() { close(wss.done) })
	wss.out.Close()
	_ = wss.conn.Close()
}

func (wss *wsSession) finish() {
	wss.shutdown(websocket.CloseNormalClosure, "")
	select {
	case <-wss.writerDone:
	case <-time.After(2 * wsWriteWait):
	}
	_ = wss.conn.Close()
	wss.log.Info("participant disconnected")
}

func (wss *wsSession) writeLoop() {
	defer close(wss.writerDone)
	for {
		frame, ok := wss.out.Dequeue()
		if !ok {
			break
		}
		_ = wss.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := wss.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			wss.out.Close()
			_ = wss.conn.Close()
			return
		}
	}
	// closeCode and closeReason are written before Finish releases Dequeue.
	wss.writeClose(wss.closeCode, wss.closeReason)
	_ = wss.conn.Close()
}

func (wss *wsSession) pingLoop() {
	interval := wss.srv.cfg.SignalingWSPingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-wss.done:
			return
		case <-ticker.C:
			if err := wss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (wss *wsSession) extendReadDeadline() {
	idle := wss.srv.cfg.SignalingWSIdleTimeout
	if idle <= 0 {
		return
	}
	_ = wss.conn.SetReadDeadline(time.Now().Add(idle))
}

func (wss *wsSession) writeClose(code int, reason string) {
	_ = wss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
