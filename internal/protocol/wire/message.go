// Package wire encodes the cross-context behavior relay messages.
//
// Two encodings carry the same Message: a JSON envelope for structured-clone
// style channels (admin HTTP, in-process bridges) and a framed TLV form for
// the TCP link between node processes.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names the relay direction on the wire.
type Kind string

const (
	KindBubbleUp   Kind = "TriggerCustomBehaviorBubbleUp"
	KindBubbleDown Kind = "TriggerCustomBehaviorBubbleDown"
)

var (
	ErrMalformed    = errors.New("wire: malformed message")
	ErrMissingField = errors.New("wire: missing field")
	ErrUnknownKind  = errors.New("wire: unknown message type")
)

func (k Kind) Valid() bool {
	return k == KindBubbleUp || k == KindBubbleDown
}

// Message is one relay request. BehaviorName is always the bare name; it may be
// empty.
type Message struct {
	Kind         Kind
	BehaviorName string
}

func BubbleUp(name string) Message {
	return Message{Kind: KindBubbleUp, BehaviorName: name}
}

func BubbleDown(name string) Message {
	return Message{Kind: KindBubbleDown, BehaviorName: name}
}

func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	return nil
}

// Payload is a received message that has not been decoded yet. Receivers check
// the sender origin before calling Decode.
type Payload interface {
	Decode() (Message, error)
}

// Decode makes an already decoded Message usable as a Payload.
func (m Message) Decode() (Message, error) {
	return m, m.Validate()
}

type envelope struct {
	Type               *string `json:"type"`
	CustomBehaviorName *string `json:"customBehaviorName"`
}

// EncodeEnvelope renders m as {"type":..., "customBehaviorName":...}.
func EncodeEnvelope(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	kind := string(m.Kind)
	name := m.BehaviorName
	return json.Marshal(envelope{Type: &kind, CustomBehaviorName: &name})
}

// DecodeEnvelope parses a JSON envelope. Unknown types are rejected.
func DecodeEnvelope(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil {
		return Message{}, fmt.Errorf("%w: type", ErrMissingField)
	}
	if env.CustomBehaviorName == nil {
		return Message{}, fmt.Errorf("%w: customBehaviorName", ErrMissingField)
	}
	m := Message{Kind: Kind(*env.Type), BehaviorName: *env.CustomBehaviorName}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// JSONPayload is a raw JSON envelope awaiting decode.
type JSONPayload []byte

func (p JSONPayload) Decode() (Message, error) {
	return DecodeEnvelope(p)
}
