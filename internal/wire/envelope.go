// Package wire defines the message envelope exchanged over the live-update
// transport and its JSON encoding.
//
// Every frame, inbound or outbound, is a single JSON object:
//
//	{"type": "vote", "data": {...}, "timestamp": 1718000000000}
//
// Unknown type tags decode fine; they simply have no subscribers.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Errors
var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrMissingType = errors.New("envelope has no type")
)

var codec = sonic.ConfigStd

// MessageType selects subscribers. The set is closed: the declared
// variables below are the only valid values, so a misspelled type is a
// compile error rather than a subscription that never fires. The zero
// value is not a valid type.
type MessageType struct {
	name string
}

// Message types published by the governance backend.
var (
	Comment        = MessageType{"comment"}
	Vote           = MessageType{"vote"}
	Sentiment      = MessageType{"sentiment"}
	Mention        = MessageType{"mention"}
	Reply          = MessageType{"reply"}
	ProposalUpdate = MessageType{"proposal_update"}
)

var knownTypes = []MessageType{Comment, Vote, Sentiment, Mention, Reply, ProposalUpdate}

// KnownTypes returns every message type this client understands.
func KnownTypes() []MessageType {
	out := make([]MessageType, len(knownTypes))
	copy(out, knownTypes)
	return out
}

// ParseType maps a wire tag to its MessageType.
func ParseType(tag string) (MessageType, bool) {
	for _, k := range knownTypes {
		if k.name == tag {
			return k, true
		}
	}
	return MessageType{}, false
}

// String returns the wire tag.
func (t MessageType) String() string {
	return t.name
}

// Known reports whether t is one of the declared message types.
func (t MessageType) Known() bool {
	return t.name != ""
}

// Envelope is one tagged message on the wire.
type Envelope struct {
	Type      string          `json:"type"` // Wire tag; may name a type this client does not know
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // Milliseconds since epoch
}

// Kind returns the declared MessageType for the envelope's tag.
func (e Envelope) Kind() (MessageType, bool) {
	return ParseType(e.Type)
}

// New builds an envelope, encoding data as the payload and stamping it with now.
func New(t MessageType, data any, now time.Time) (Envelope, error) {
	payload, err := codec.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{
		Type:      t.String(),
		Data:      payload,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Time returns the envelope timestamp as a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Encode serializes an envelope for writing to the transport.
func Encode(e Envelope) ([]byte, error) {
	if e.Type == "" {
		return nil, ErrMissingType
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("null")
	}
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses one inbound frame.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := codec.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}
