package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type sentEvent struct {
	event   string
	payload any
}

// recordingHandle captures every event sent to one participant.
type recordingHandle struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (h *recordingHandle) Send(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, sentEvent{event: event, payload: payload})
	return nil
}

func (h *recordingHandle) take() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

func (h *recordingHandle) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.event)
	}
	return out
}

var errHandleClosed = errors.New("handle closed")

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
