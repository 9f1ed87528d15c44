package message

import "time"

// Roles for chat messages. The model role is the default for anything a
// backend produces.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// Message types.
const (
	TypeText          = "text"
	TypeImageResponse = "image_response"
)

// DefaultHistoryLimit bounds how many messages a session keeps.
const DefaultHistoryLimit = 200

// Message is the canonical chat record. Timestamp is unix milliseconds.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Normalize converts a heterogeneous input into a canonical Message.
// It accepts a Message, *Message or a map with role/text/imageUrl/type/
// timestamp keys and returns nil for anything else. Missing fields get
// defaults: role=model, text="", type inferred from imageUrl, timestamp=now.
func Normalize(input interface{}) *Message {
	var m Message

	switch v := input.(type) {
	case Message:
		m = v
	case *Message:
		if v == nil {
			return nil
		}
		m = *v
	case map[string]interface{}:
		if s, ok := v["role"].(string); ok {
			m.Role = s
		}
		if s, ok := v["text"].(string); ok {
			m.Text = s
		}
		if s, ok := v["imageUrl"].(string); ok {
			m.ImageURL = s
		}
		if s, ok := v["type"].(string); ok {
			m.Type = s
		}
		switch ts := v["timestamp"].(type) {
		case int64:
			m.Timestamp = ts
		case int:
			m.Timestamp = int64(ts)
		case float64:
			m.Timestamp = int64(ts)
		}
	default:
		return nil
	}

	if m.Role == "" {
		m.Role = RoleModel
	}
	if m.Type == "" {
		if m.ImageURL != "" {
			m.Type = TypeImageResponse
		} else {
			m.Type = TypeText
		}
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	return &m
}

// Clamp returns the most recent max messages, preserving order. A nil or
// empty input yields an empty slice, and a non-positive max clamps to zero.
func Clamp(msgs []Message, max int) []Message {
	if max < 0 {
		max = 0
	}
	if len(msgs) <= max {
		out := make([]Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]Message, max)
	copy(out, msgs[len(msgs)-max:])
	return out
}
