package orchestrator

import (
	"encoding/json"
	"regexp"
)

// ToolCall is a structured request embedded in a completion reply. It lives
// only for one orchestration step.
type ToolCall struct {
	Tool   string                 `json:"tool"`
	Action string                 `json:"action"`
	Args   map[string]interface{} `json:"args"`
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// parseToolCall inspects a reply for a tool call: first the whole reply as
// JSON, then the contents of a fenced json block. A call needs non-empty
// tool and action fields; anything else means no tool call. The fenced-block
// detection is a best-effort heuristic and can misfire on replies that quote
// unrelated JSON.
func parseToolCall(reply string) *ToolCall {
	if call := decodeToolCall(reply); call != nil {
		return call
	}
	if m := fencedJSONPattern.FindStringSubmatch(reply); m != nil {
		return decodeToolCall(m[1])
	}
	return nil
}

func decodeToolCall(s string) *ToolCall {
	var call ToolCall
	if err := json.Unmarshal([]byte(s), &call); err != nil {
		return nil
	}
	if call.Tool == "" || call.Action == "" {
		return nil
	}
	return &call
}
