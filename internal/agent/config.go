package agent

import "AgentHub/internal/orchestrator"

// Config describes one agent persona. Behavior is driven entirely by the
// capability fields here, never by comparing agent ids.
type Config struct {
	ID           string
	Name         string
	SystemPrompt string
	Model        string

	// ImageModel enables diagram generation when non-empty.
	ImageModel string

	Tools orchestrator.ToolConfig
}

// HasTools reports whether any orchestrated tool is enabled.
func (c Config) HasTools() bool {
	return c.Tools.Search || c.Tools.WebFetch
}

// DefaultCatalog is the built-in set of agent personas.
func DefaultCatalog() []Config {
	return []Config{
		{
			ID:   "support",
			Name: "Tech Support",
			SystemPrompt: "You are a patient technical support specialist. Diagnose the " +
				"user's problem step by step. When you need external facts, request a tool " +
				"call by replying with only a JSON object {\"tool\", \"action\", \"args\"}: " +
				"use tool \"search\" action \"vector\" to search the knowledge base, or tool " +
				"\"fetch\" action \"url\" to read a web page.",
			Model: "gemini-2.0-flash",
			Tools: orchestrator.ToolConfig{Search: true, WebFetch: true},
		},
		{
			ID:   "tutor",
			Name: "STEM Tutor",
			SystemPrompt: "You are an encouraging STEM tutor. Explain concepts with " +
				"worked examples and check the student's understanding as you go.",
			Model:      "gemini-2.0-flash",
			ImageModel: "gemini-2.0-flash-image",
		},
		{
			ID:   "scripture-guide",
			Name: "Scripture Guide",
			SystemPrompt: "You are a thoughtful guide to scripture. Answer with relevant " +
				"passages, historical context and care for differing traditions.",
			Model: "gemini-2.0-flash",
		},
	}
}
