package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelopeAssignsFreshIDs(t *testing.T) {
	a, err := NewEnvelope("conv-1", MsgSuggestion, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	b, err := NewEnvelope("conv-1", MsgSuggestion, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if a.Context.MessageID == "" || b.Context.MessageID == "" {
		t.Fatal("missing message id")
	}
	if a.Context.MessageID == b.Context.MessageID {
		t.Fatalf("message id reused: %s", a.Context.MessageID)
	}
	if a.Context.ConversationID != "conv-1" {
		t.Fatalf("conversation id = %s", a.Context.ConversationID)
	}
}

func TestNewEnvelopeRejectsUnserializableContent(t *testing.T) {
	if _, err := NewEnvelope("conv-1", MsgSuggestion, func() {}); err == nil {
		t.Fatal("expected marshal error for func content")
	}
}

func TestValidate(t *testing.T) {
	e := &Envelope{Type: MsgSuggestion, Context: Context{MessageID: "m1"}}
	if err := e.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	if err := (&Envelope{Context: Context{MessageID: "m1"}}).Validate(); err == nil {
		t.Fatal("missing message_type accepted")
	}
	if err := (&Envelope{Type: MsgSuggestion}).Validate(); err == nil {
		t.Fatal("missing message_id accepted")
	}
}

func TestDecodeContent(t *testing.T) {
	env, err := NewEnvelope("conv-1", MsgSuggestion, SuggestionPayload{
		OriginalCode:    "old",
		ProposedChanges: "new",
		Language:        "go",
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	var p SuggestionPayload
	if err := env.DecodeContent(&p); err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if p.OriginalCode != "old" || p.ProposedChanges != "new" || p.Language != "go" {
		t.Fatalf("payload mismatch: %+v", p)
	}
}

func TestWireFieldNames(t *testing.T) {
	env, err := NewEnvelope("conv-1", MsgSuggestion, map[string]string{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	env.Context.ParentID = "p1"
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"context", "message_type", "content"} {
		if _, ok := wire[field]; !ok {
			t.Fatalf("missing wire field %q in %s", field, data)
		}
	}
	var ctx map[string]json.RawMessage
	if err := json.Unmarshal(wire["context"], &ctx); err != nil {
		t.Fatalf("unmarshal context: %v", err)
	}
	for _, field := range []string{"conversation_id", "message_id", "parent_id", "metadata"} {
		if _, ok := ctx[field]; !ok {
			t.Fatalf("missing context field %q in %s", field, data)
		}
	}
}
