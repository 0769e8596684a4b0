// Package message defines the envelope exchanged between agents on the bus.
//
// A Message is immutable once constructed. Replies are new messages derived
// from the request: they reference the request ID in their own ID and are
// addressed back to the request's sender.
package message

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrMissingMethod = errors.New("message method is required")
	ErrNilMessage    = errors.New("message is nil")
)

// Kind classifies a message.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
	KindInitialize   Kind = "initialize"
)

// Message is the unit of communication between agents.
//
// Recipient is the target agent ID. An empty Recipient means the message is
// broadcast to every agent whose role matches the method name.
type Message struct {
	// ID uniquely identifies the message. Caller-assigned; generated if empty.
	ID string `json:"id"`

	// Method names the requested operation. It is the dispatch key.
	Method string `json:"method"`

	// Params is the opaque payload. Schema is owned by the handler, not the bus.
	Params map[string]interface{} `json:"params,omitempty"`

	// Kind classifies the message.
	Kind Kind `json:"kind"`

	// Sender is the originating agent ID.
	Sender string `json:"sender,omitempty"`

	// Recipient is the target agent ID. Empty means role broadcast.
	Recipient string `json:"recipient,omitempty"`

	// Timestamp is set at construction if absent.
	Timestamp time.Time `json:"timestamp"`
}

// New creates a message of the given kind, filling in ID and Timestamp
// if the caller did not assign them.
func New(kind Kind, id, method, sender, recipient string, params map[string]interface{}) *Message {
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		ID:        id,
		Method:    method,
		Params:    params,
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Timestamp: time.Now(),
	}
}

// NewRequest creates a request message.
func NewRequest(id, method, sender, recipient string, params map[string]interface{}) *Message {
	return New(KindRequest, id, method, sender, recipient, params)
}

// NewNotification creates a fire-and-forget notification.
func NewNotification(method, sender, recipient string, params map[string]interface{}) *Message {
	return New(KindNotification, "", method, sender, recipient, params)
}

// NewResponse creates a response to req, addressed back to its sender.
func NewResponse(req *Message, params map[string]interface{}) *Message {
	return &Message{
		ID:        "response_" + req.ID,
		Method:    req.Method,
		Params:    params,
		Kind:      KindResponse,
		Recipient: req.Sender,
		Timestamp: time.Now(),
	}
}

// NewError creates an error reply to req. The failure description and the
// original message travel in the params for diagnostics.
func NewError(req *Message, cause error) *Message {
	params := map[string]interface{}{
		"error":    cause.Error(),
		"original": req,
	}
	return &Message{
		ID:        "error_" + req.ID,
		Method:    req.Method,
		Params:    params,
		Kind:      KindError,
		Recipient: req.Sender,
		Timestamp: time.Now(),
	}
}

// Validate checks the message for required fields.
func (m *Message) Validate() error {
	if m == nil {
		return ErrNilMessage
	}
	if m.Method == "" {
		return ErrMissingMethod
	}
	return nil
}

// IsBroadcast reports whether the message targets a role rather than an agent.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == ""
}

// Marshal serializes the message to JSON.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal deserializes a message from JSON.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
