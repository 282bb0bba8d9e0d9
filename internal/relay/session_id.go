package relay

import "github.com/google/uuid"

// newSessionID mints a random (v4) identifier. Session ids double as the
// capability to relay into a session, so they must not be guessable.
func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
