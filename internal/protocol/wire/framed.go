package wire

import (
	"fmt"
	"io"

	"github.com/danmuck/globalbehavior/internal/protocol/frame"
	"github.com/danmuck/globalbehavior/internal/protocol/schema"
	"github.com/danmuck/globalbehavior/internal/protocol/tlv"
)

// MessageType maps a Kind to its frame message type.
func (k Kind) MessageType() (uint32, bool) {
	switch k {
	case KindBubbleUp:
		return schema.MsgBubbleUp, true
	case KindBubbleDown:
		return schema.MsgBubbleDown, true
	default:
		return 0, false
	}
}

func KindFromMessageType(mt uint32) (Kind, bool) {
	switch mt {
	case schema.MsgBubbleUp:
		return KindBubbleUp, true
	case schema.MsgBubbleDown:
		return KindBubbleDown, true
	default:
		return "", false
	}
}

// WriteMessage writes m as one frame.
func WriteMessage(w io.Writer, messageID uint64, m Message, limits frame.Limits) error {
	mt, ok := m.Kind.MessageType()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	return frame.WriteFrame(w, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: mt,
		},
		Payload: tlv.Fields{tlv.String(schema.FieldBehaviorName, m.BehaviorName)}.Encode(),
	}, limits)
}

// DecodeFrame validates f against the schema and extracts its Message.
func DecodeFrame(f frame.Frame) (Message, error) {
	kind, ok := KindFromMessageType(f.Header.MessageType)
	if !ok {
		return Message{}, fmt.Errorf("%w: message_type=%d", ErrUnknownKind, f.Header.MessageType)
	}
	fields, err := tlv.Decode(f.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	name, _ := fields.Text(schema.FieldBehaviorName)
	return Message{Kind: kind, BehaviorName: name}, nil
}

// ReadMessage reads and decodes one frame from r.
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	f, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Message{}, err
	}
	return DecodeFrame(f)
}

// FramePayload is a received frame awaiting decode.
type FramePayload frame.Frame

func (p FramePayload) Decode() (Message, error) {
	return DecodeFrame(frame.Frame(p))
}
