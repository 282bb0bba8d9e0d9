package metrics

import (
	"maps"
	"sync"
)

// Event counter names. They are exported as the `event` label of the
// Prometheus counter family.
const (
	ParticipantsJoined = "participants_joined"
	ParticipantsLeft   = "participants_left"
	SessionsCreated    = "sessions_created"
	SessionsDestroyed  = "sessions_destroyed"
	PairingFailed      = "pairing_failed"

	SignalsRelayed = "signals_relayed"
	SignalsDropped = "signals_dropped"
	ChatsRelayed   = "chats_relayed"
	ChatsDropped   = "chats_dropped"

	ProtocolErrors     = "protocol_errors"
	RateLimited        = "rate_limited"
	RejectedCapacity   = "rejected_capacity"
	SlowConsumerClosed = "slow_consumer_closed"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.m)
}
