package protocol

import (
	"strings"
	"testing"
)

func mustEnvelope(t *testing.T, typ MessageType, content any) *Envelope {
	t.Helper()
	env, err := NewEnvelope("conv-1", typ, content)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestSingleFrameRoundTrip(t *testing.T) {
	env := mustEnvelope(t, MsgSuggestion, map[string]string{"x": "y"})
	frame, err := EncodeFrame(env)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	got, err := DecodeFrame(frame, 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("envelope count = %d, want 1", len(got))
	}
	if got[0].Context.MessageID != env.Context.MessageID || got[0].Type != env.Type {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
}

func TestBatchFrameRoundTrip(t *testing.T) {
	envelopes := []*Envelope{
		mustEnvelope(t, MsgSuggestion, map[string]int{"n": 1}),
		mustEnvelope(t, MsgContinue, map[string]int{"n": 2}),
		mustEnvelope(t, MsgTDDRequest, map[string]int{"n": 3}),
	}
	frame, err := EncodeBatch(envelopes)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if frame[0] != '[' {
		t.Fatalf("batch frame does not start with '[': %s", frame)
	}
	got, err := DecodeFrame(frame, 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("envelope count = %d, want 3", len(got))
	}
	for i := range envelopes {
		if got[i].Context.MessageID != envelopes[i].Context.MessageID {
			t.Fatalf("batch order broken at %d", i)
		}
	}
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"not json":     "hello",
		"bad object":   `{"message_type": }`,
		"missing type": `{"context":{"message_id":"m1"},"content":null}`,
		"missing id":   `{"context":{},"message_type":"suggestion","content":null}`,
		"null in array": `[null]`,
	}
	for name, frame := range cases {
		if _, err := DecodeFrame([]byte(frame), 0); err == nil {
			t.Errorf("%s: malformed frame accepted", name)
		}
	}
}

func TestDecodeFrameSizeGuard(t *testing.T) {
	env := mustEnvelope(t, MsgSuggestion, strings.Repeat("a", 4096))
	frame, err := EncodeFrame(env)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := DecodeFrame(frame, 16); err == nil {
		t.Fatal("oversized frame accepted")
	}
	if _, err := DecodeFrame(frame, len(frame)); err != nil {
		t.Fatalf("frame at limit rejected: %v", err)
	}
}

func TestEncodeFrameValidates(t *testing.T) {
	if _, err := EncodeFrame(&Envelope{Type: MsgSuggestion}); err == nil {
		t.Fatal("envelope without message id encoded")
	}
}
