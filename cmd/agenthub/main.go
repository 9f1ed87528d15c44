package main

import (
	"flag"
	"fmt"
	"os"

	"AgentHub/internal/chat"
	"AgentHub/internal/config"
)

func main() {
	var cfg config.Config

	flag.StringVar(&cfg.AgentID, "agent", config.DefaultAgentID, "Agent to talk to at startup")
	flag.StringVar(&cfg.DBPath, "db", "agenthub.db", "SQLite file for session persistence (empty for in-memory)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	flag.StringVar(&cfg.SearchURL, "search-url", "", "Base URL of the vector search service")
	flag.StringVar(&cfg.FetchURL, "fetch-url", "", "Base URL of the web-fetch proxy (empty fetches pages directly)")
	flag.StringVar(&cfg.IntegrationsURL, "integrations-url", "", "Base URL of the calendar/issue/email service")
	flag.StringVar(&cfg.ConfirmAddr, "confirm-addr", "", "Listen address for the confirmation WebSocket (e.g. :8090)")

	flag.IntVar(&cfg.MaxSteps, "max-steps", 0, "Tool-loop step budget (0 for default)")
	flag.IntVar(&cfg.HistoryLimit, "history-limit", 0, "Per-agent message cap (0 for default)")

	flag.Parse()

	app, err := chat.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
