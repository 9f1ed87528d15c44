package config

// DefaultAgentID is the agent selected at startup.
const DefaultAgentID = "support"

// Config holds application configuration
type Config struct {
	AgentID string // Initial agent to talk to
	DBPath  string // SQLite file for session persistence; empty keeps sessions in memory
	Debug   bool

	// Tool endpoints. An empty URL leaves that capability unwired.
	SearchURL       string // Vector search service
	FetchURL        string // Web-fetch proxy; empty means fetch pages directly
	IntegrationsURL string // Calendar/issue/email integration service

	// ConfirmAddr serves the confirmation WebSocket when non-empty
	// (e.g. ":8090").
	ConfirmAddr string

	MaxSteps     int // Tool-loop step budget; 0 keeps the default
	HistoryLimit int // Per-agent message cap; 0 keeps the default
}
