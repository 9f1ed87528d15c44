// Package chat is the interactive front end: a terminal REPL over the agent
// adapters, with commands for switching agents and resolving confirmation
// requests.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentHub/internal/agent"
	"AgentHub/internal/backend"
	"AgentHub/internal/config"
	"AgentHub/internal/confirm"
	"AgentHub/internal/orchestrator"
	"AgentHub/internal/session"
	"AgentHub/internal/telemetry"
	"AgentHub/internal/tools"
)

// App represents the main application
type App struct {
	config  config.Config
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	cleanup func()

	store        *session.Store
	sqlite       *session.SQLiteBackend
	factory      *agent.Factory
	hub          *confirm.Hub
	integrations *tools.IntegrationClient
	confirmSrv   *http.Server

	current *agent.Adapter
}

// NewApp wires the application from configuration.
func NewApp(cfg config.Config) (*App, error) {
	logger, err := telemetry.InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	app := &App{
		config:  cfg,
		logger:  logger,
		tracer:  tracer,
		meter:   meter,
		cleanup: cleanup,
	}

	var sessBackend session.Backend
	if cfg.DBPath != "" {
		sqlite, err := session.NewSQLiteBackend(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		app.sqlite = sqlite
		sessBackend = sqlite
	} else {
		logger.Warn("no database path configured, sessions will not survive restarts")
		sessBackend = session.NewMemoryBackend()
	}

	storeOpts := []session.StoreOption{}
	if cfg.HistoryLimit > 0 {
		storeOpts = append(storeOpts, session.WithHistoryLimit(cfg.HistoryLimit))
	}
	app.store = session.NewStore(sessBackend, logger, storeOpts...)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	client := backend.NewGeminiClient(apiKey, logger, backend.WithTelemetry(tracer, meter))

	factoryOpts := []agent.FactoryOption{
		agent.WithTelemetry(tracer, meter),
	}
	if cfg.SearchURL != "" {
		factoryOpts = append(factoryOpts, agent.WithSearch(tools.NewSearchClient(cfg.SearchURL, logger)))
	}
	// An empty proxy URL still yields a working fetcher in direct mode.
	factoryOpts = append(factoryOpts, agent.WithFetch(tools.NewFetchClient(cfg.FetchURL, logger)))
	if cfg.MaxSteps > 0 {
		factoryOpts = append(factoryOpts, agent.WithMaxSteps(cfg.MaxSteps))
	}
	app.factory = agent.NewFactory(agent.DefaultCatalog(), app.store, client, logger, factoryOpts...)

	app.hub = confirm.NewHub(logger)
	if cfg.IntegrationsURL != "" {
		app.integrations = tools.NewIntegrationClient(cfg.IntegrationsURL, app.hub, logger)
	}
	if cfg.ConfirmAddr != "" {
		app.startConfirmServer(cfg.ConfirmAddr)
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = config.DefaultAgentID
	}
	adapter, err := app.factory.NewAdapter(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select agent: %w", err)
	}
	adapter.Initialize()
	app.current = adapter

	return app, nil
}

// startConfirmServer exposes the confirmation WebSocket so external UIs can
// approve or reject pending actions.
func (app *App) startConfirmServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/ws/confirmations", confirm.NewWSHandler(app.hub, app.logger))

	app.confirmSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		app.logger.Info("confirmation server listening", "addr", addr)
		if err := app.confirmSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("confirmation server stopped", "error", err)
		}
	}()
}

// Run drives the REPL until the user quits.
func (app *App) Run() error {
	defer app.shutdown()

	fmt.Println("=== AgentHub ===")
	fmt.Printf("Agent: %s\n", app.current.Config().Name)
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := app.handleCommand(ctx, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				app.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		reply, err := app.current.SendMessage(ctx, []orchestrator.Part{{Text: input}})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			app.logger.Error("failed to send message", "error", err)
			continue
		}

		fmt.Printf("%s: %s\n", app.current.Config().Name, reply.Text)
		if reply.ImageURL != "" {
			fmt.Printf("[image: %d bytes of data URL]\n", len(reply.ImageURL))
		}
		fmt.Println()
	}

	fmt.Println("Goodbye!")
	return nil
}

func (app *App) shutdown() {
	app.current.Teardown()
	if app.confirmSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.confirmSrv.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shut down confirmation server", "error", err)
		}
	}
	if app.sqlite != nil {
		if err := app.sqlite.Close(); err != nil {
			app.logger.Error("failed to close session database", "error", err)
		}
	}
	if app.cleanup != nil {
		app.cleanup()
	}
}

// handleCommand handles special commands
func (app *App) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/agents":
		ids := app.factory.AgentIDs()
		sort.Strings(ids)
		fmt.Println("\nAvailable agents:")
		for i, id := range ids {
			current := ""
			if id == app.current.ID() {
				current = " (current)"
			}
			fmt.Printf("%d. %s%s\n", i+1, id, current)
		}
		fmt.Println()
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <agent-id>")
		}
		adapter, err := app.factory.NewAdapter(parts[1])
		if err != nil {
			return false, err
		}
		app.current.Teardown()
		adapter.Initialize()
		app.current = adapter
		fmt.Printf("Switched to %s\n", adapter.Config().Name)
		return false, nil

	case "/history":
		sess, ok := app.store.Get(app.current.ID())
		if !ok || len(sess.Messages) == 0 {
			fmt.Println("No messages yet.")
			return false, nil
		}
		fmt.Println()
		for _, msg := range sess.Messages {
			fmt.Printf("[%s] %s\n", msg.Role, msg.Text)
		}
		fmt.Println()
		return false, nil

	case "/draft":
		if len(parts) < 2 {
			sess, ok := app.store.Get(app.current.ID())
			if !ok || sess.Draft == "" {
				fmt.Println("No draft saved.")
			} else {
				fmt.Printf("Draft: %s\n", sess.Draft)
			}
			return false, nil
		}
		draft := strings.Join(parts[1:], " ")
		app.store.Update(app.current.ID(), session.Patch{Draft: &draft})
		fmt.Println("Draft saved.")
		return false, nil

	case "/pending":
		reqs := app.hub.Pending()
		if len(reqs) == 0 {
			fmt.Println("No pending confirmations.")
			return false, nil
		}
		fmt.Println("\nPending confirmations:")
		for i, req := range reqs {
			fmt.Printf("%d. %s [%s]\n", i+1, req.Description, req.ID)
		}
		fmt.Println()
		return false, nil

	case "/confirm":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /confirm <id>")
		}
		return false, app.hub.Resolve(parts[1], true)

	case "/reject":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /reject <id>")
		}
		return false, app.hub.Resolve(parts[1], false)

	case "/issue":
		if app.integrations == nil {
			fmt.Println("Integrations are not configured. Set --integrations-url.")
			return false, nil
		}
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /issue <title...>")
		}
		title := strings.Join(parts[1:], " ")
		app.runIntegration(ctx, func(ctx context.Context) tools.ActionResult {
			return app.integrations.CreateIssue(ctx, tools.IssueParams{Title: title, Body: title})
		})
		fmt.Println("Issue requested. Use /pending to review, /confirm <id> to approve.")
		return false, nil

	case "/email":
		if app.integrations == nil {
			fmt.Println("Integrations are not configured. Set --integrations-url.")
			return false, nil
		}
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /email <to> <subject...>")
		}
		to := parts[1]
		subject := strings.Join(parts[2:], " ")
		app.runIntegration(ctx, func(ctx context.Context) tools.ActionResult {
			return app.integrations.SendEmail(ctx, tools.EmailParams{To: to, Subject: subject, Body: subject})
		})
		fmt.Println("Email requested. Use /pending to review, /confirm <id> to approve.")
		return false, nil

	case "/event":
		if app.integrations == nil {
			fmt.Println("Integrations are not configured. Set --integrations-url.")
			return false, nil
		}
		if len(parts) < 4 {
			return false, fmt.Errorf("usage: /event <start> <end> <title...>")
		}
		start, end := parts[1], parts[2]
		title := strings.Join(parts[3:], " ")
		app.runIntegration(ctx, func(ctx context.Context) tools.ActionResult {
			return app.integrations.CreateCalendarEvent(ctx, tools.CalendarEventParams{
				Title: title, StartTime: start, EndTime: end,
			})
		})
		fmt.Println("Event requested. Use /pending to review, /confirm <id> to approve.")
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit              - Exit")
		fmt.Println("  /agents                   - List available agents")
		fmt.Println("  /switch <agent-id>        - Switch to another agent")
		fmt.Println("  /history                  - Show the current agent's conversation")
	fmt.Println("  /draft [text]             - Show or save a draft for this agent")
		fmt.Println("  /pending                  - List pending confirmation requests")
		fmt.Println("  /confirm <id>             - Approve a pending action")
		fmt.Println("  /reject <id>              - Reject a pending action")
		if app.integrations != nil {
			fmt.Println("  /issue <title>            - File a tracker issue (needs confirmation)")
			fmt.Println("  /email <to> <subject>     - Send an email (needs confirmation)")
			fmt.Println("  /event <start> <end> <t>  - Create a calendar event (needs confirmation)")
		}
		fmt.Println("  /help                     - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}

// runIntegration executes an integration action in the background so the REPL
// stays free to resolve the confirmation it is waiting on.
func (app *App) runIntegration(ctx context.Context, fn func(context.Context) tools.ActionResult) {
	go func() {
		result := fn(ctx)
		fmt.Printf("\n%s\n", result.Message)
		app.logger.Info("integration action finished", "success", result.Success, "message", result.Message)
	}()
}
