// Package orchestrator runs the agent tool loop: ask the completion backend,
// look for an embedded tool call, execute it, feed the result back and repeat
// until a plain answer arrives or the step budget runs out.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"AgentHub/internal/tools"
)

// DefaultMaxSteps bounds completion round trips per run.
const DefaultMaxSteps = 4

// maxCitationsPerSearch caps how many citations one search call contributes.
const maxCitationsPerSearch = 5

// fetchExcerptLimit caps how much extracted page text re-enters the context.
const fetchExcerptLimit = 4000

// FallbackAnswer is returned when the step budget is exhausted without a
// final answer.
const FallbackAnswer = "I couldn't complete the research for that request. Please try a more specific question."

// Part is one piece of completion input.
type Part struct {
	Text string `json:"text"`
}

// Completer is the opaque language-completion dependency. Errors (safety
// blocks, quota) propagate to the caller untouched.
type Completer interface {
	Complete(ctx context.Context, parts []Part) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, parts []Part) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, parts []Part) (string, error) {
	return f(ctx, parts)
}

// Searcher is the search capability the loop may invoke.
type Searcher interface {
	Search(ctx context.Context, query string, opts tools.SearchOptions) ([]tools.SearchResult, error)
}

// Fetcher is the web-fetch capability the loop may invoke.
type Fetcher interface {
	FetchAndExtract(ctx context.Context, url string) (*tools.Page, error)
}

// ToolConfig flags which capabilities the agent may use.
type ToolConfig struct {
	Search   bool
	WebFetch bool
}

// Citation references a source consulted during a run.
type Citation struct {
	ID    string
	Title string
	URL   string
}

// Result is the outcome of one orchestration run.
type Result struct {
	Text      string
	Steps     int
	Citations []Citation
}

// Orchestrator drives the tool loop for one agent configuration.
type Orchestrator struct {
	completer Completer
	config    ToolConfig
	search    Searcher
	fetch     Fetcher
	maxSteps  int
	logger    *slog.Logger
	tracer    trace.Tracer
	steps     metric.Int64Counter
	duration  metric.Float64Histogram
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSearch wires a search capability.
func WithSearch(s Searcher) Option {
	return func(o *Orchestrator) { o.search = s }
}

// WithFetch wires a web-fetch capability.
func WithFetch(f Fetcher) Option {
	return func(o *Orchestrator) { o.fetch = f }
}

// WithMaxSteps overrides the step budget.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithTracer attaches a tracer for per-run and per-step spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMeter attaches a meter for step counts and run durations.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) {
		if counter, err := m.Int64Counter("agent.orchestration.steps",
			metric.WithDescription("Completion round trips per orchestration run")); err == nil {
			o.steps = counter
		}
		if hist, err := m.Float64Histogram("agent.orchestration.duration",
			metric.WithDescription("Orchestration run duration in milliseconds")); err == nil {
			o.duration = hist
		}
	}
}

// New creates an orchestrator around the completion dependency.
func New(completer Completer, config ToolConfig, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completer: completer,
		config:    config,
		maxSteps:  DefaultMaxSteps,
		logger:    logger,
		tracer:    noop.NewTracerProvider().Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the tool loop for one user message. Tool executions are
// strictly sequential; completion errors propagate to the caller.
func (o *Orchestrator) Run(ctx context.Context, userText string) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "tool_orchestration")
	defer span.End()
	start := time.Now()

	convo := []Part{{Text: userText}}
	var citations []Citation

	for step := 0; step < o.maxSteps; step++ {
		if o.steps != nil {
			o.steps.Add(ctx, 1)
		}

		reply, err := o.completeStep(ctx, step, convo)
		if err != nil {
			return nil, err
		}

		call := parseToolCall(reply)
		if call == nil {
			// Final answer.
			if o.duration != nil {
				o.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
			}
			return &Result{
				Text:      appendSources(reply, citations),
				Steps:     step + 1,
				Citations: citations,
			}, nil
		}

		resultMsg, cites := o.executeTool(ctx, call, userText)
		citations = append(citations, cites...)
		convo = append(convo, Part{Text: resultMsg})
	}

	o.logger.Warn("step budget exhausted", "maxSteps", o.maxSteps)
	if o.duration != nil {
		o.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	return &Result{Text: FallbackAnswer, Steps: o.maxSteps, Citations: citations}, nil
}

func (o *Orchestrator) completeStep(ctx context.Context, step int, parts []Part) (string, error) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("completion_step_%d", step))
	defer span.End()
	return o.completer.Complete(ctx, parts)
}

// executeTool dispatches one tool call and returns the context message to
// inject plus any citations gathered. Unavailable tools are reported in-band
// so the model can recover on the next step.
func (o *Orchestrator) executeTool(ctx context.Context, call *ToolCall, userText string) (string, []Citation) {
	switch {
	case call.Tool == "search" && call.Action == "vector" && o.config.Search && o.search != nil:
		return o.runSearch(ctx, call, userText)
	case call.Tool == "fetch" && call.Action == "url" && o.config.WebFetch && o.fetch != nil:
		return o.runFetch(ctx, call)
	default:
		o.logger.Warn("tool unavailable", "tool", call.Tool, "action", call.Action)
		return fmt.Sprintf("ERROR: Tool not available or disabled: %s:%s", call.Tool, call.Action), nil
	}
}

func (o *Orchestrator) runSearch(ctx context.Context, call *ToolCall, userText string) (string, []Citation) {
	ctx, span := o.tracer.Start(ctx, "tool_search")
	defer span.End()

	query, _ := call.Args["query"].(string)
	if query == "" {
		query = userText
	}
	topK := tools.DefaultTopK
	if v, ok := call.Args["topK"].(float64); ok && v > 0 {
		topK = int(v)
	}

	results, err := o.search.Search(ctx, query, tools.SearchOptions{TopK: topK})
	if err != nil {
		o.logger.Warn("search tool failed", "query", query, "error", err)
		return fmt.Sprintf("ERROR: Search failed: %v", err), nil
	}

	if len(results) > maxCitationsPerSearch {
		results = results[:maxCitationsPerSearch]
	}
	citations := make([]Citation, 0, len(results))
	for _, r := range results {
		citations = append(citations, Citation{ID: r.ID, Title: r.Title, URL: r.URL})
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		encoded = []byte("[]")
	}
	return "SEARCH_RESULTS: " + string(encoded), citations
}

func (o *Orchestrator) runFetch(ctx context.Context, call *ToolCall) (string, []Citation) {
	ctx, span := o.tracer.Start(ctx, "tool_fetch")
	defer span.End()

	url, _ := call.Args["url"].(string)
	if url == "" {
		return "ERROR: Missing url for fetch tool", nil
	}

	page, err := o.fetch.FetchAndExtract(ctx, url)
	if err != nil {
		o.logger.Warn("fetch tool failed", "url", url, "error", err)
		return fmt.Sprintf("ERROR: Fetch failed: %v", err), nil
	}

	title := page.Title
	if title == "" {
		title = url
	}
	excerpt := page.ContentText
	if len(excerpt) > fetchExcerptLimit {
		excerpt = excerpt[:fetchExcerptLimit]
	}
	citation := Citation{Title: title, URL: url}
	return fmt.Sprintf("FETCH_RESULT for %s:\n%s\n%s", url, title, excerpt), []Citation{citation}
}

// appendSources renders the accumulated citations under the answer, one line
// each, preferring title over url over id, with the URL in parentheses when
// present.
func appendSources(answer string, citations []Citation) string {
	if len(citations) == 0 {
		return answer
	}
	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\nSources:\n")
	for _, c := range citations {
		label := c.Title
		if label == "" {
			label = c.URL
		}
		if label == "" {
			label = c.ID
		}
		sb.WriteString("- ")
		sb.WriteString(label)
		if c.URL != "" {
			sb.WriteString(" (")
			sb.WriteString(c.URL)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
