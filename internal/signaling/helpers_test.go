package signaling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/relay"
)

type testServer struct {
	ts      *httptest.Server
	srv     *Server
	coord   *relay.Coordinator
	metrics *metrics.Metrics
}

func startTestServer(t *testing.T, maxParticipants int, cfg Config) *testServer {
	t.Helper()

	m := metrics.New()
	coord := relay.NewCoordinator(relay.Config{MaxParticipants: maxParticipants, Metrics: m})
	cfg.Coordinator = coord
	srv := NewServer(cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testServer{ts: ts, srv: srv, coord: coord, metrics: m}
}

func (s *testServer) wsURL(name string) string {
	u := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/signal"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	return u
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn

	participantID string
	name          string
}

// dial connects and consumes the welcome frame.
func (s *testServer) dial(t *testing.T, name string) *testClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(name), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}
	env := c.expect(EventWelcome)
	var w Welcome
	if err := json.Unmarshal(env.Data, &w); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	c.participantID = w.ParticipantID
	c.name = w.Name
	return c
}

func (c *testClient) read() (Envelope, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.t.Fatalf("decode frame %q: %v", data, err)
	}
	return env, nil
}

func (c *testClient) expect(event string) Envelope {
	c.t.Helper()
	env, err := c.read()
	if err != nil {
		c.t.Fatalf("read (want %s): %v", event, err)
	}
	if env.Event != event {
		c.t.Fatalf("event=%q data=%s, want %q", env.Event, env.Data, event)
	}
	return env
}

// expectSendOffer returns the session id announced by the next frame.
func (c *testClient) expectSendOffer() string {
	c.t.Helper()
	env := c.expect(relay.EventSendOffer)
	var ready relay.SessionReady
	if err := json.Unmarshal(env.Data, &ready); err != nil {
		c.t.Fatalf("decode send-offer: %v", err)
	}
	if ready.SessionID == "" {
		c.t.Fatalf("send-offer without session id")
	}
	return ready.SessionID
}

// expectClose reads until the server closes and returns the close error.
func (c *testClient) expectClose() *websocket.CloseError {
	c.t.Helper()
	for {
		_, err := c.read()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			c.t.Fatalf("read err=%v, want close frame", err)
		}
		return ce
	}
}

func (c *testClient) send(event string, data any) {
	c.t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			c.t.Fatalf("marshal %s: %v", event, err)
		}
		raw = b
	}
	if err := c.conn.WriteJSON(Envelope{Event: event, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
