package relay

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSessionStore_CreateAssignsUUIDAndIndexesBothParties(t *testing.T) {
	s := NewSessionStore()

	sess, err := s.Create("a", "b")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(sess.ID); err != nil {
		t.Fatalf("session id %q is not a uuid: %v", sess.ID, err)
	}
	for _, id := range []string{"a", "b"} {
		got, err := s.FindByParticipant(id)
		if err != nil {
			t.Fatalf("FindByParticipant(%s): %v", id, err)
		}
		if got.ID != sess.ID {
			t.Fatalf("FindByParticipant(%s)=%s, want %s", id, got.ID, sess.ID)
		}
	}

	other, err := s.Create("c", "d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if other.ID == sess.ID {
		t.Fatalf("session ids collided: %s", sess.ID)
	}
}

func TestSessionStore_RejectsSelfAndDoublePairing(t *testing.T) {
	s := NewSessionStore()
	if _, err := s.Create("a", "a"); !errors.Is(err, ErrInvalidPair) {
		t.Fatalf("self pair err=%v, want ErrInvalidPair", err)
	}
	if _, err := s.Create("a", "b"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("b", "c"); !errors.Is(err, ErrAlreadyPaired) {
		t.Fatalf("double pair err=%v, want ErrAlreadyPaired", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d, want 1", s.Len())
	}
}

func TestSessionStore_RetriesOnIDCollision(t *testing.T) {
	s := NewSessionStore()
	ids := []string{"dup", "dup", "fresh"}
	s.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	if _, err := s.Create("a", "b"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err := s.Create("c", "d")
	if err != nil {
		t.Fatalf("Create after collision: %v", err)
	}
	if sess.ID != "fresh" {
		t.Fatalf("ID=%q, want fresh", sess.ID)
	}
}

func TestSessionStore_DestroyIsIdempotent(t *testing.T) {
	s := NewSessionStore()
	sess, _ := s.Create("a", "b")

	got, ok := s.Destroy(sess.ID)
	if !ok || got != sess {
		t.Fatalf("Destroy=(%+v,%v), want (%+v,true)", got, ok, sess)
	}
	if _, ok := s.Destroy(sess.ID); ok {
		t.Fatalf("second Destroy reported true")
	}
	if _, err := s.FindByParticipant("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("index entry for a survived Destroy: %v", err)
	}
	if _, err := s.Lookup(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup after Destroy err=%v, want ErrNotFound", err)
	}
	if _, err := s.Create("a", "b"); err != nil {
		t.Fatalf("re-pair after Destroy: %v", err)
	}
}

func TestSessionStore_OtherParty(t *testing.T) {
	s := NewSessionStore()
	sess, _ := s.Create("a", "b")

	if got, err := s.OtherParty(sess.ID, "a"); err != nil || got != "b" {
		t.Fatalf("OtherParty(a)=(%q,%v), want b", got, err)
	}
	if got, err := s.OtherParty(sess.ID, "b"); err != nil || got != "a" {
		t.Fatalf("OtherParty(b)=(%q,%v), want a", got, err)
	}
	if _, err := s.OtherParty(sess.ID, "x"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("OtherParty(x) err=%v, want ErrNotMember", err)
	}
	if _, err := s.OtherParty("missing", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("OtherParty(missing) err=%v, want ErrNotFound", err)
	}
}
