package relay

import "fmt"

// Participant is one connected end user.
type Participant struct {
	ID     string
	Name   string
	handle Handle
}

// Registry owns every connected participant and its outbound handle. Queue
// and SessionStore refer to participants by id only and resolve handles
// through Lookup at use time.
type Registry struct {
	max          int
	participants map[string]*Participant
}

// NewRegistry returns an empty registry. max <= 0 means unlimited.
func NewRegistry(max int) *Registry {
	return &Registry{
		max:          max,
		participants: make(map[string]*Participant),
	}
}

func (r *Registry) Add(id string, h Handle, name string) error {
	if _, ok := r.participants[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	if r.max > 0 && len(r.participants) >= r.max {
		return ErrTooManyParticipants
	}
	r.participants[id] = &Participant{ID: id, Name: name, handle: h}
	return nil
}

// Remove is a no-op for unknown ids.
func (r *Registry) Remove(id string) {
	delete(r.participants, id)
}

func (r *Registry) Lookup(id string) (Handle, error) {
	p, ok := r.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
	}
	return p.handle, nil
}

func (r *Registry) Participant(id string) (Participant, bool) {
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.participants[id]
	return ok
}

func (r *Registry) Len() int { return len(r.participants) }
