// Package eventfeed carries the named update events that drive the
// reconciler: the wire envelope, typed payloads, an in-process
// publish/subscribe bus keyed by event name, and sources that fill the bus
// from a WebSocket or a JSONL recording.
package eventfeed

import (
	"encoding/json"
	"fmt"

	"github.com/sheikhcoders/opensheikh/conversation"
)

// Event names understood by the reconciler.
const (
	TypeMessageUpdated = "message.updated"
	TypePartUpdated    = "message.part.updated"
	TypeMessageRemoved = "message.removed"
	TypePartRemoved    = "message.part.removed"
	TypeSessionError   = "session.error"
	TypeSessionIdle    = "session.idle"
)

// Event is the wire envelope: a name plus its raw payload.
type Event struct {
	Type       string          `json:"type" jsonschema:"required"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// DecodeError reports a payload that does not match its event name.
type DecodeError struct {
	Cause error
	Type  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Type, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewEvent marshals payload into an envelope named typ.
func NewEvent(typ string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, Properties: data}, nil
}

// MustEvent is NewEvent for payloads known to marshal.
func MustEvent(typ string, payload interface{}) Event {
	ev, err := NewEvent(typ, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Properties) == 0 {
		return &DecodeError{Type: e.Type, Cause: fmt.Errorf("empty properties")}
	}
	if err := json.Unmarshal(e.Properties, v); err != nil {
		return &DecodeError{Type: e.Type, Cause: err}
	}
	return nil
}

// MessageUpdated is the message.updated payload.
type MessageUpdated struct {
	Info conversation.Message `json:"info" jsonschema:"required"`
}

// PartUpdated is the message.part.updated payload.
type PartUpdated struct {
	MessageID string            `json:"messageID,omitempty"`
	Part      conversation.Part `json:"part" jsonschema:"required"`
}

// TargetMessageID returns the owning message id, falling back to the id
// carried inside the part when the envelope omits it.
func (p PartUpdated) TargetMessageID() string {
	if p.MessageID != "" {
		return p.MessageID
	}
	return p.Part.MessageID
}

// MessageRemoved is the message.removed payload.
type MessageRemoved struct {
	SessionID string `json:"sessionID,omitempty"`
	MessageID string `json:"messageID" jsonschema:"required"`
}

// PartRemoved is the message.part.removed payload.
type PartRemoved struct {
	SessionID string `json:"sessionID,omitempty"`
	MessageID string `json:"messageID" jsonschema:"required"`
	PartID    string `json:"partID" jsonschema:"required"`
}

// ErrorData is the detail of a session error.
type ErrorData struct {
	Message string `json:"message"`
}

// ErrorInfo is a named server-side error.
type ErrorInfo struct {
	Name string    `json:"name,omitempty"`
	Data ErrorData `json:"data"`
}

// SessionError is the session.error payload.
type SessionError struct {
	SessionID string    `json:"sessionID,omitempty"`
	Error     ErrorInfo `json:"error" jsonschema:"required"`
}

// Message returns the most specific text available for the error.
func (e SessionError) Message() string {
	if e.Error.Data.Message != "" {
		return e.Error.Data.Message
	}
	if e.Error.Name != "" {
		return e.Error.Name
	}
	return "unknown session error"
}

// SessionIdle is the session.idle payload.
type SessionIdle struct {
	SessionID string `json:"sessionID" jsonschema:"required"`
}
