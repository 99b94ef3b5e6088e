package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire framing: a frame is either one JSON envelope object or a JSON array
// of envelope objects (a batch). The codec is symmetric — DecodeFrame
// accepts both shapes and always yields a slice.

// EncodeFrame marshals a single envelope frame.
func EncodeFrame(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// EncodeBatch marshals an ordered sequence of envelopes as one array frame.
func EncodeBatch(envelopes []*Envelope) ([]byte, error) {
	for _, e := range envelopes {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(envelopes)
}

// DecodeFrame parses a text frame into its envelopes. maxSize guards
// against oversized frames; 0 disables the check.
func DecodeFrame(data []byte, maxSize int) ([]*Envelope, error) {
	if maxSize > 0 && len(data) > maxSize {
		return nil, fmt.Errorf("frame too large: %d bytes", len(data))
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	switch trimmed[0] {
	case '[':
		var envelopes []*Envelope
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, fmt.Errorf("parse batch frame: %w", err)
		}
		for _, e := range envelopes {
			if e == nil {
				return nil, fmt.Errorf("null envelope in batch")
			}
			if err := e.Validate(); err != nil {
				return nil, err
			}
		}
		return envelopes, nil
	case '{':
		var e Envelope
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, fmt.Errorf("parse frame: %w", err)
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		return []*Envelope{&e}, nil
	default:
		return nil, fmt.Errorf("frame is not a JSON object or array")
	}
}
