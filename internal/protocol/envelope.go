package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType 表示系统支持的业务消息类型
type MessageType string

const (
	MsgSuggestion       MessageType = "suggestion"
	MsgEvaluation       MessageType = "evaluation"
	MsgContinue         MessageType = "continue"
	MsgContinueResponse MessageType = "continue_response"
	MsgTDDRequest       MessageType = "tdd_request"
	MsgTDDTests         MessageType = "tdd_tests"

	// MsgError is the designated error type: a correlated envelope of this
	// type fails the pending request, an unsolicited one is surfaced as a
	// connection-level error event.
	MsgError MessageType = "error"
)

// Context carries the correlation identifiers of one envelope.
type Context struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	ParentID       string         `json:"parent_id,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

// Envelope is the unit of communication on the wire. Content is opaque to
// the transport; only Type and the Context identifiers steer its behavior.
type Envelope struct {
	Context Context         `json:"context"`
	Type    MessageType     `json:"message_type"`
	Content json.RawMessage `json:"content"`
}

// NewEnvelope builds an outbound envelope with a fresh message id.
// content is marshaled immediately so an unserializable payload fails at
// send time, not inside the write pump.
func NewEnvelope(conversationID string, t MessageType, content any) (*Envelope, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	return &Envelope{
		Context: Context{
			ConversationID: conversationID,
			MessageID:      uuid.New().String(),
			Metadata:       map[string]any{},
		},
		Type:    t,
		Content: raw,
	}, nil
}

// Validate rejects envelopes missing the fields the transport relies on.
func (e *Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("missing field: message_type")
	}
	if e.Context.MessageID == "" {
		return fmt.Errorf("missing field: context.message_id")
	}
	return nil
}

// DecodeContent unmarshals the opaque payload into v.
func (e *Envelope) DecodeContent(v any) error {
	return json.Unmarshal(e.Content, v)
}

// ---- 常用负载 ----
// The transport never looks inside these; they mirror the server's models
// as typed conveniences for callers.

// SuggestionPayload 代码建议消息负载
type SuggestionPayload struct {
	OriginalCode    string `json:"original_code"`
	ProposedChanges string `json:"proposed_changes"`
	FilePath        string `json:"file_path,omitempty"`
	Language        string `json:"language,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
}

// EvaluationPayload 建议评估结果负载
type EvaluationPayload struct {
	Accept            bool     `json:"accept"`
	HallucinationRisk float64  `json:"hallucination_risk"`
	RecursiveRisk     float64  `json:"recursive_risk"`
	AlignmentScore    float64  `json:"alignment_score"`
	IssuesDetected    []string `json:"issues_detected"`
	Recommendations   []string `json:"recommendations"`
	Reason            string   `json:"reason"`
}

// ContinuePayload 继续生成请求负载
type ContinuePayload struct {
	Prompt          string `json:"prompt"`
	TimeoutOccurred bool   `json:"timeout_occurred"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// ErrorPayload 错误消息负载
type ErrorPayload struct {
	Error string `json:"error"`
}
