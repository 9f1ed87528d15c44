package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"AgentHub/internal/message"
)

// CachedResponse is a completion reply remembered for an identical
// conversation prefix.
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Key derives a cache key from the agent id and its conversation so far plus
// the new input.
func Key(agentID string, history []message.Message, input string) string {
	h := sha256.New()
	h.Write([]byte(agentID))
	for _, msg := range history {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Text))
	}
	h.Write([]byte(input))
	return fmt.Sprintf("%x", h.Sum(nil))
}
