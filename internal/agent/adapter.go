// Package agent binds persona configurations to the session store and the
// tool orchestrator, producing one adapter per agent.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentHub/internal/backend"
	"AgentHub/internal/cache"
	"AgentHub/internal/message"
	"AgentHub/internal/orchestrator"
	"AgentHub/internal/session"
)

// imageKeywords trigger diagram generation on image-capable agents.
var imageKeywords = []string{"draw", "diagram", "sketch", "illustrate", "visualize"}

// Reply is the outcome of one SendMessage call.
type Reply struct {
	Text     string
	ImageURL string
}

// Factory creates adapters wired to shared infrastructure.
type Factory struct {
	configs map[string]Config
	store   *session.Store
	client  backend.Client
	search  orchestrator.Searcher
	fetch   orchestrator.Fetcher
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	maxSteps int
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithSearch wires the search capability for tool-enabled agents.
func WithSearch(s orchestrator.Searcher) FactoryOption {
	return func(f *Factory) { f.search = s }
}

// WithFetch wires the web-fetch capability for tool-enabled agents.
func WithFetch(fe orchestrator.Fetcher) FactoryOption {
	return func(f *Factory) { f.fetch = fe }
}

// WithTelemetry attaches tracing and metrics to orchestration runs.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) FactoryOption {
	return func(f *Factory) {
		f.tracer = tracer
		f.meter = meter
	}
}

// WithMaxSteps overrides the tool-loop step budget for every adapter.
func WithMaxSteps(n int) FactoryOption {
	return func(f *Factory) { f.maxSteps = n }
}

// NewFactory creates a factory over the given persona catalog.
func NewFactory(catalog []Config, store *session.Store, client backend.Client, logger *slog.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		configs: make(map[string]Config, len(catalog)),
		store:   store,
		client:  client,
		logger:  logger,
	}
	ids := make([]string, 0, len(catalog))
	for _, cfg := range catalog {
		f.configs[cfg.ID] = cfg
		ids = append(ids, cfg.ID)
	}
	store.Ensure(ids...)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AgentIDs lists the configured agent ids.
func (f *Factory) AgentIDs() []string {
	ids := make([]string, 0, len(f.configs))
	for id := range f.configs {
		ids = append(ids, id)
	}
	return ids
}

// NewAdapter binds the named agent's configuration. An unknown id is a
// programming error and fails immediately.
func (f *Factory) NewAdapter(agentID string) (*Adapter, error) {
	cfg, ok := f.configs[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent id: %s", agentID)
	}
	return &Adapter{factory: f, cfg: cfg}, nil
}

// Adapter is one agent's conversational surface.
type Adapter struct {
	factory *Factory
	cfg     Config

	mu          sync.Mutex
	chat        backend.Chat
	initialized bool

	responses sync.Map // cache key -> cache.CachedResponse
}

// ID returns the agent id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Config returns the bound configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Initialize establishes the completion session. Calling it again before
// Teardown is a no-op.
func (a *Adapter) Initialize() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return
	}
	a.chat = a.factory.client.StartChat(a.cfg.Model, a.cfg.SystemPrompt)
	a.initialized = true
	a.factory.logger.Info("agent initialized", "agent", a.cfg.ID, "model", a.cfg.Model)
}

// Teardown drops the completion session. Safe to call repeatedly.
func (a *Adapter) Teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chat = nil
	a.initialized = false
}

// SendMessage sends the user's message parts and returns the agent's reply.
// Tool-enabled agents route through the orchestrator; others talk to the
// completion session directly. The exchange is recorded in the session
// store either way.
func (a *Adapter) SendMessage(ctx context.Context, parts []orchestrator.Part) (*Reply, error) {
	a.mu.Lock()
	chat := a.chat
	initialized := a.initialized
	a.mu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("agent %s not initialized", a.cfg.ID)
	}

	userText := flattenParts(parts)
	a.factory.store.AddMessage(a.cfg.ID, message.Message{
		Role:      message.RoleUser,
		Text:      userText,
		Timestamp: time.Now().UnixMilli(),
	})

	var text string
	var err error
	if a.cfg.HasTools() {
		text, err = a.runOrchestrated(ctx, chat, userText)
	} else {
		text, err = a.runDirect(ctx, chat, parts, userText)
	}
	if err != nil {
		return nil, err
	}

	reply := &Reply{Text: text}
	if a.cfg.ImageModel != "" && wantsImage(userText) {
		imageURL, imgErr := a.factory.client.GenerateImage(ctx, a.cfg.ImageModel, userText)
		if imgErr != nil {
			// Image generation is best effort; the text answer stands alone.
			a.factory.logger.Warn("image generation failed", "agent", a.cfg.ID, "error", imgErr)
		} else {
			reply.ImageURL = imageURL
		}
	}

	a.factory.store.AddMessage(a.cfg.ID, message.Message{
		Role:      message.RoleModel,
		Text:      reply.Text,
		ImageURL:  reply.ImageURL,
		Timestamp: time.Now().UnixMilli(),
	})
	return reply, nil
}

// runOrchestrated drives the tool loop. Only search and web-fetch are ever
// wired in; integration actions need their own explicitly confirmed surface.
func (a *Adapter) runOrchestrated(ctx context.Context, chat backend.Chat, userText string) (string, error) {
	completer := orchestrator.CompleterFunc(func(ctx context.Context, parts []orchestrator.Part) (string, error) {
		return chat.Send(ctx, []orchestrator.Part{{Text: flattenParts(parts)}})
	})

	opts := []orchestrator.Option{}
	if a.cfg.Tools.Search && a.factory.search != nil {
		opts = append(opts, orchestrator.WithSearch(a.factory.search))
	}
	if a.cfg.Tools.WebFetch && a.factory.fetch != nil {
		opts = append(opts, orchestrator.WithFetch(a.factory.fetch))
	}
	if a.factory.tracer != nil {
		opts = append(opts, orchestrator.WithTracer(a.factory.tracer))
	}
	if a.factory.meter != nil {
		opts = append(opts, orchestrator.WithMeter(a.factory.meter))
	}
	if a.factory.maxSteps > 0 {
		opts = append(opts, orchestrator.WithMaxSteps(a.factory.maxSteps))
	}

	o := orchestrator.New(completer, a.cfg.Tools, a.factory.logger, opts...)
	result, err := o.Run(ctx, userText)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (a *Adapter) runDirect(ctx context.Context, chat backend.Chat, parts []orchestrator.Part, userText string) (string, error) {
	sess, _ := a.factory.store.Get(a.cfg.ID)
	key := cache.Key(a.cfg.ID, sess.Messages, userText)
	if val, ok := a.responses.Load(key); ok {
		cached := val.(cache.CachedResponse)
		a.factory.logger.Info("cache hit", "agent", a.cfg.ID, "key", key[:16])
		return cached.Response, nil
	}

	text, err := chat.Send(ctx, parts)
	if err != nil {
		return "", err
	}
	a.responses.Store(key, cache.CachedResponse{Response: text, Timestamp: time.Now()})
	return text, nil
}

func flattenParts(parts []orchestrator.Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func wantsImage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
