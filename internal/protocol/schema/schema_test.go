package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/globalbehavior/internal/protocol/tlv"
	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
)

func TestValidateBubbleMessages(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldBehaviorName, "pulse")}
	for _, mt := range []uint32{MsgBubbleUp, MsgBubbleDown} {
		if err := Validate(mt, fields); err != nil {
			t.Fatalf("validate message_type=%d: %v", mt, err)
		}
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldBehaviorName, "pulse"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgBubbleUp, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgBubbleDown, nil)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldBehaviorName || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgBubbleUp, []tlv.Field{tlv.U32(FieldBehaviorName, 1)})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}
