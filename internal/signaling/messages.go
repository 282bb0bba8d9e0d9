package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// Inbound event names. Outbound names live in the relay package.
const (
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "add-ice-candidate"
	EventSendMessage  = "send-message"
	EventLeave        = "leave"

	EventWelcome = "welcome"
	EventError   = "error"
)

var validate = validator.New()

var errNullPayload = errors.New("payload must not be null")

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: payload})
}

type descriptionPayload struct {
	SDP       json.RawMessage `json:"sdp" validate:"required"`
	SessionID string          `json:"sessionId" validate:"required,max=128"`
}

type candidatePayload struct {
	Candidate json.RawMessage `json:"candidate" validate:"required"`
	SessionID string          `json:"sessionId" validate:"required,max=128"`
	Type      string          `json:"type" validate:"oneof=sender receiver"`
}

type chatPayload struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Message   string `json:"message" validate:"required"`
}

// Welcome tells a freshly accepted connection who it is.
type Welcome struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

// ErrorPayload precedes a protocol-violation close.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := decodeStrictJSON(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errors.New("envelope missing event")
	}
	return env, nil
}

// decodePayload strictly decodes data into v and runs struct validation.
func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 || isNull(data) {
		return errNullPayload
	}
	if err := decodeStrictJSON(data, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func decodeStrictJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return expectEOF(dec)
}

func expectEOF(dec *json.Decoder) error {
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func (p descriptionPayload) check() error {
	if isNull(p.SDP) {
		return fmt.Errorf("sdp: %w", errNullPayload)
	}
	return nil
}

func (p candidatePayload) check() error {
	if isNull(p.Candidate) {
		return fmt.Errorf("candidate: %w", errNullPayload)
	}
	return nil
}

// checkChatLength enforces the configurable rune limit on chat text.
func checkChatLength(text string, maxRunes int) error {
	if maxRunes <= 0 {
		return nil
	}
	if err := validate.Var(text, fmt.Sprintf("max=%d", maxRunes)); err != nil {
		return fmt.Errorf("message longer than %d characters", maxRunes)
	}
	return nil
}
