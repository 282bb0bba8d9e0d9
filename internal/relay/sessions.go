package relay

import (
	"errors"
	"fmt"
)

// Session is a live two-party pairing. Party order carries no meaning.
type Session struct {
	ID     string
	PartyA string
	PartyB string
}

func (s Session) Has(id string) bool {
	return id == s.PartyA || id == s.PartyB
}

// Other returns the member that is not id. ok is false when id is not a
// member.
func (s Session) Other(id string) (other string, ok bool) {
	switch id {
	case s.PartyA:
		return s.PartyB, true
	case s.PartyB:
		return s.PartyA, true
	default:
		return "", false
	}
}

// SessionStore creates and destroys sessions and keeps the participant ->
// session index in lockstep with them.
type SessionStore struct {
	sessions map[string]Session
	index    map[string]string

	newID func() (string, error)
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		index:    make(map[string]string),
		newID:    newSessionID,
	}
}

// Create pairs a and b under a freshly minted session id.
func (s *SessionStore) Create(a, b string) (Session, error) {
	if a == b {
		return Session{}, fmt.Errorf("%w: %s paired with itself", ErrInvalidPair, a)
	}
	for _, id := range []string{a, b} {
		if sid, ok := s.index[id]; ok {
			return Session{}, fmt.Errorf("%w: %s in session %s", ErrAlreadyPaired, id, sid)
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		id, err := s.newID()
		if err != nil {
			return Session{}, fmt.Errorf("generate session id: %w", err)
		}
		if _, taken := s.sessions[id]; taken {
			continue
		}

		sess := Session{ID: id, PartyA: a, PartyB: b}
		s.sessions[id] = sess
		s.index[a] = id
		s.index[b] = id
		return sess, nil
	}
	return Session{}, errors.New("failed to allocate unique session id")
}

func (s *SessionStore) Lookup(sessionID string) (Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return sess, nil
}

func (s *SessionStore) FindByParticipant(id string) (Session, error) {
	sid, ok := s.index[id]
	if !ok {
		return Session{}, fmt.Errorf("session for participant %s: %w", id, ErrNotFound)
	}
	return s.sessions[sid], nil
}

// Destroy removes the session and both index entries. Destroying an absent
// session is a no-op and reports false.
func (s *SessionStore) Destroy(sessionID string) (Session, bool) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, sessionID)
	delete(s.index, sess.PartyA)
	delete(s.index, sess.PartyB)
	return sess, true
}

// OtherParty returns whichever member of the session is not knownID.
func (s *SessionStore) OtherParty(sessionID, knownID string) (string, error) {
	sess, err := s.Lookup(sessionID)
	if err != nil {
		return "", err
	}
	other, ok := sess.Other(knownID)
	if !ok {
		return "", fmt.Errorf("%s in session %s: %w", knownID, sessionID, ErrNotMember)
	}
	return other, nil
}

func (s *SessionStore) Len() int { return len(s.sessions) }

// Sessions returns a snapshot of every live session in no particular order.
func (s *SessionStore) Sessions() []Session {
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
