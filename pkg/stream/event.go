package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Event is one inbound stream frame.
//
// Combined streams wrap the payload as {"stream":..., "data":...}; raw
// streams send the payload alone. Replies to control requests carry an id.
type Event struct {
	Stream string
	Type   string
	Data   json.RawMessage

	ID     int64
	Result json.RawMessage
}

// IsReply reports whether the frame answers a control request.
func (e Event) IsReply() bool {
	return e.ID != 0
}

type frame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	Type   string          `json:"e"`
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
}

type payload struct {
	Type string `json:"e"`
}

// ParseEvent decodes a frame received from a stream connection.
func ParseEvent(text string) (Event, error) {
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "[") {
		if !sonic.Valid([]byte(trimmed)) {
			return Event{}, fmt.Errorf("parse stream frame: invalid json array")
		}
		return Event{Data: json.RawMessage(trimmed)}, nil
	}

	var f frame
	if err := sonic.UnmarshalString(text, &f); err != nil {
		return Event{}, fmt.Errorf("parse stream frame: %w", err)
	}

	if f.ID != 0 {
		return Event{ID: f.ID, Result: f.Result}, nil
	}

	if f.Stream != "" {
		// Array payloads such as !ticker@arr carry no event type.
		var p payload
		_ = sonic.Unmarshal(f.Data, &p)
		return Event{Stream: f.Stream, Type: p.Type, Data: f.Data}, nil
	}

	return Event{Type: f.Type, Data: json.RawMessage(text)}, nil
}
