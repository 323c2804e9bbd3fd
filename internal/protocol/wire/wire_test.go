package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/danmuck/globalbehavior/internal/protocol/frame"
	"github.com/danmuck/globalbehavior/internal/protocol/schema"
	"github.com/danmuck/globalbehavior/internal/protocol/tlv"
	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
)

func TestEnvelopeShape(t *testing.T) {
	testlog.Start(t)
	b, err := EncodeEnvelope(BubbleUp("pulse"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "TriggerCustomBehaviorBubbleUp" || raw["customBehaviorName"] != "pulse" {
		t.Fatalf("unexpected envelope %s", b)
	}
	if len(raw) != 2 {
		t.Fatalf("envelope must have exactly two keys: %s", b)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	testlog.Start(t)
	m, err := DecodeEnvelope([]byte(`{"type":"TriggerCustomBehaviorBubbleDown","customBehaviorName":""}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m != BubbleDown("") {
		t.Fatalf("unexpected message %+v", m)
	}

	cases := []struct {
		in   string
		want error
	}{
		{`{"type":"Other","customBehaviorName":"x"}`, ErrUnknownKind},
		{`{"customBehaviorName":"x"}`, ErrMissingField},
		{`{"type":"TriggerCustomBehaviorBubbleUp"}`, ErrMissingField},
		{`not json`, ErrMalformed},
		{`{"type":1,"customBehaviorName":"x"}`, ErrMalformed},
	}
	for _, tc := range cases {
		if _, err := JSONPayload(tc.in).Decode(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.in, tc.want, err)
		}
	}
}

func TestEncodeEnvelopeRejectsUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeEnvelope(Message{Kind: "nope"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestFramedMessageRoundTrip(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	for i, m := range []Message{BubbleUp("pulse"), BubbleDown("")} {
		if err := WriteMessage(&buf, uint64(i+1), m, frame.DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	first, err := ReadMessage(&buf, frame.DefaultLimits())
	if err != nil || first != BubbleUp("pulse") {
		t.Fatalf("first got=%+v err=%v", first, err)
	}
	f, err := frame.ReadFrame(&buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Header.MessageID != 2 || f.Header.MessageType != schema.MsgBubbleDown {
		t.Fatalf("unexpected header %+v", f.Header)
	}
	second, err := FramePayload(f).Decode()
	if err != nil || second != BubbleDown("") {
		t.Fatalf("second got=%+v err=%v", second, err)
	}
}

func TestDecodeFrameRejectsBadFrames(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFrame(frame.Frame{Header: frame.Header{MessageType: 77}})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	_, err = DecodeFrame(frame.Frame{Header: frame.Header{MessageType: schema.MsgBubbleUp}})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	_, err = DecodeFrame(frame.Frame{Header: frame.Header{MessageType: schema.MsgBubbleUp}, Payload: []byte{1}})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	bad := tlv.Fields{tlv.U32(schema.FieldBehaviorName, 3)}.Encode()
	_, err = DecodeFrame(frame.Frame{Header: frame.Header{MessageType: schema.MsgBubbleDown}, Payload: bad})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected schema failure, got %v", err)
	}
}
