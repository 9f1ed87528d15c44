package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentHub/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSearcher struct {
	results []tools.SearchResult
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ tools.SearchOptions) ([]tools.SearchResult, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type stubFetcher struct {
	page *tools.Page
	err  error
	urls []string
}

func (f *stubFetcher) FetchAndExtract(_ context.Context, url string) (*tools.Page, error) {
	f.urls = append(f.urls, url)
	return f.page, f.err
}

func TestPlainReplyTerminatesInOneStep(t *testing.T) {
	calls := 0
	completer := CompleterFunc(func(context.Context, []Part) (string, error) {
		calls++
		return "The answer is 42.", nil
	})

	o := New(completer, ToolConfig{Search: true}, testLogger())
	result, err := o.Run(context.Background(), "what is the answer?")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, "The answer is 42.", result.Text)
	assert.Empty(t, result.Citations)
}

func TestStepBudgetExhaustedReturnsFallback(t *testing.T) {
	calls := 0
	completer := CompleterFunc(func(context.Context, []Part) (string, error) {
		calls++
		return `{"tool":"search","action":"vector","args":{"query":"x"}}`, nil
	})

	o := New(completer, ToolConfig{Search: true}, testLogger(), WithSearch(&stubSearcher{}))
	result, err := o.Run(context.Background(), "dig deeper")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxSteps, calls)
	assert.Equal(t, FallbackAnswer, result.Text)
}

func TestDisabledToolReportedInBand(t *testing.T) {
	var second []Part
	step := 0
	completer := CompleterFunc(func(_ context.Context, parts []Part) (string, error) {
		step++
		if step == 1 {
			return `{"tool":"search","action":"vector","args":{}}`, nil
		}
		second = parts
		return "done without search", nil
	})

	searcher := &stubSearcher{}
	// A SearchTool instance is supplied but the config flag is off.
	o := New(completer, ToolConfig{Search: false}, testLogger(), WithSearch(searcher))
	result, err := o.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Empty(t, searcher.queries)
	require.Len(t, second, 2)
	assert.Equal(t, "ERROR: Tool not available or disabled: search:vector", second[1].Text)
	assert.Equal(t, "done without search", result.Text)
}

func TestSearchFlowAccumulatesCitations(t *testing.T) {
	step := 0
	completer := CompleterFunc(func(_ context.Context, parts []Part) (string, error) {
		step++
		if step == 1 {
			return "```json\n{\"tool\":\"search\",\"action\":\"vector\",\"args\":{\"topK\":3}}\n```", nil
		}
		assert.True(t, strings.HasPrefix(parts[1].Text, "SEARCH_RESULTS: "))
		return "summarized findings", nil
	})

	searcher := &stubSearcher{results: []tools.SearchResult{
		{ID: "1", Title: "A", URL: "u1"},
		{ID: "2"},
	}}
	o := New(completer, ToolConfig{Search: true}, testLogger(), WithSearch(searcher))

	result, err := o.Run(context.Background(), "topic")
	require.NoError(t, err)

	// Empty query arg falls back to the user text.
	require.Equal(t, []string{"topic"}, searcher.queries)
	require.Len(t, result.Citations, 2)
	assert.Contains(t, result.Text, "Sources:")
	assert.Contains(t, result.Text, "- A (u1)")
	assert.Contains(t, result.Text, "- 2")
	assert.NotContains(t, result.Text, "- 2 (")
}

func TestSearchCitationsCappedAtFive(t *testing.T) {
	var results []tools.SearchResult
	for i := 0; i < 8; i++ {
		results = append(results, tools.SearchResult{ID: fmt.Sprintf("%d", i)})
	}
	step := 0
	completer := CompleterFunc(func(context.Context, []Part) (string, error) {
		step++
		if step == 1 {
			return `{"tool":"search","action":"vector","args":{}}`, nil
		}
		return "done", nil
	})

	o := New(completer, ToolConfig{Search: true}, testLogger(), WithSearch(&stubSearcher{results: results}))
	result, err := o.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, result.Citations, 5)
}

func TestFetchFlow(t *testing.T) {
	step := 0
	var second string
	completer := CompleterFunc(func(_ context.Context, parts []Part) (string, error) {
		step++
		if step == 1 {
			return `{"tool":"fetch","action":"url","args":{"url":"https://example.com/a"}}`, nil
		}
		second = parts[1].Text
		return "page summary", nil
	})

	fetcher := &stubFetcher{page: &tools.Page{
		URL: "https://example.com/a", Title: "Example A",
		ContentText: strings.Repeat("w ", 3000), WordCount: 3000,
	}}
	o := New(completer, ToolConfig{WebFetch: true}, testLogger(), WithFetch(fetcher))

	result, err := o.Run(context.Background(), "read it")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a"}, fetcher.urls)
	assert.True(t, strings.HasPrefix(second, "FETCH_RESULT for https://example.com/a:"))
	assert.LessOrEqual(t, len(second), len("FETCH_RESULT for https://example.com/a:\nExample A\n")+4000)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "Example A", result.Citations[0].Title)
	assert.Contains(t, result.Text, "- Example A (https://example.com/a)")
}

func TestFetchMissingURLContinuesRun(t *testing.T) {
	step := 0
	var second string
	completer := CompleterFunc(func(_ context.Context, parts []Part) (string, error) {
		step++
		if step == 1 {
			return `{"tool":"fetch","action":"url","args":{}}`, nil
		}
		second = parts[1].Text
		return "recovered", nil
	})

	fetcher := &stubFetcher{}
	o := New(completer, ToolConfig{WebFetch: true}, testLogger(), WithFetch(fetcher))
	result, err := o.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Empty(t, fetcher.urls)
	assert.Equal(t, "ERROR: Missing url for fetch tool", second)
	assert.Equal(t, "recovered", result.Text)
}

func TestCompletionErrorPropagates(t *testing.T) {
	boom := errors.New("quota exceeded")
	completer := CompleterFunc(func(context.Context, []Part) (string, error) {
		return "", boom
	})

	o := New(completer, ToolConfig{}, testLogger())
	_, err := o.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
}

func TestParseToolCall(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  *ToolCall
	}{
		{"whole reply json", `{"tool":"search","action":"vector","args":{"query":"q"}}`,
			&ToolCall{Tool: "search", Action: "vector"}},
		{"fenced block", "Let me look that up.\n```json\n{\"tool\":\"fetch\",\"action\":\"url\"}\n```",
			&ToolCall{Tool: "fetch", Action: "url"}},
		{"plain prose", "No structured call here.", nil},
		{"json without action", `{"tool":"search"}`, nil},
		{"json array", `[1,2,3]`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseToolCall(tc.reply)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want.Tool, got.Tool)
			assert.Equal(t, tc.want.Action, got.Action)
		})
	}
}
