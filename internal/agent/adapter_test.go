package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentHub/internal/backend"
	"AgentHub/internal/message"
	"AgentHub/internal/orchestrator"
	"AgentHub/internal/session"
	"AgentHub/internal/tools"
)

type fakeChat struct {
	replies []string
	calls   int32
	err     error
}

func (c *fakeChat) Send(ctx context.Context, parts []orchestrator.Part) (string, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return "", c.err
	}
	idx := int(n) - 1
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	return c.replies[idx], nil
}

type fakeClient struct {
	chat     *fakeChat
	started  int32
	imageURL string
	imageErr error
	images   int32
}

func (c *fakeClient) StartChat(model, systemPrompt string) backend.Chat {
	atomic.AddInt32(&c.started, 1)
	return c.chat
}

func (c *fakeClient) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	atomic.AddInt32(&c.images, 1)
	if c.imageErr != nil {
		return "", c.imageErr
	}
	return c.imageURL, nil
}

type fakeSearcher struct{ results []tools.SearchResult }

func (s *fakeSearcher) Search(ctx context.Context, query string, opts tools.SearchOptions) ([]tools.SearchResult, error) {
	return s.results, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFactory(t *testing.T, client backend.Client, catalog []Config, opts ...FactoryOption) (*Factory, *session.Store) {
	t.Helper()
	store := session.NewStore(session.NewMemoryBackend(), testLogger())
	return NewFactory(catalog, store, client, testLogger(), opts...), store
}

func TestNewAdapterUnknownID(t *testing.T) {
	f, _ := newTestFactory(t, &fakeClient{chat: &fakeChat{replies: []string{"hi"}}}, DefaultCatalog())
	_, err := f.NewAdapter("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestSendMessageRequiresInitialize(t *testing.T) {
	f, _ := newTestFactory(t, &fakeClient{chat: &fakeChat{replies: []string{"hi"}}}, DefaultCatalog())
	a, err := f.NewAdapter("scripture-guide")
	require.NoError(t, err)

	_, err = a.SendMessage(context.Background(), []orchestrator.Part{{Text: "hello"}})
	require.Error(t, err)
}

func TestInitializeIsIdempotent(t *testing.T) {
	client := &fakeClient{chat: &fakeChat{replies: []string{"hi"}}}
	f, _ := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("scripture-guide")
	require.NoError(t, err)

	a.Initialize()
	a.Initialize()
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.started))

	a.Teardown()
	a.Teardown()
	a.Initialize()
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.started))
}

func TestDirectSendRecordsSession(t *testing.T) {
	client := &fakeClient{chat: &fakeChat{replies: []string{"an answer"}}}
	f, store := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("scripture-guide")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "what is grace?"}})
	require.NoError(t, err)
	assert.Equal(t, "an answer", reply.Text)
	assert.Empty(t, reply.ImageURL)

	sess, ok := store.Get("scripture-guide")
	require.True(t, ok)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, message.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, "what is grace?", sess.Messages[0].Text)
	assert.Equal(t, message.RoleModel, sess.Messages[1].Role)
	assert.Equal(t, "an answer", sess.Messages[1].Text)
}

func TestToolAgentRoutesThroughOrchestrator(t *testing.T) {
	// First reply is a tool call, second is the final answer.
	chat := &fakeChat{replies: []string{
		`{"tool":"search","action":"vector","args":{"query":"reset router"}}`,
		"Power cycle the router.",
	}}
	client := &fakeClient{chat: chat}
	searcher := &fakeSearcher{results: []tools.SearchResult{
		{ID: "kb-1", Title: "Router basics", URL: "https://kb.example/router"},
	}}
	f, _ := newTestFactory(t, client, DefaultCatalog(), WithSearch(searcher))
	a, err := f.NewAdapter("support")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "my router is broken"}})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Power cycle the router.")
	assert.Contains(t, reply.Text, "Sources:")
	assert.Contains(t, reply.Text, "Router basics (https://kb.example/router)")
	assert.Equal(t, int32(2), atomic.LoadInt32(&chat.calls))
}

func TestImageKeywordTriggersGeneration(t *testing.T) {
	client := &fakeClient{
		chat:     &fakeChat{replies: []string{"here is the idea"}},
		imageURL: "data:image/png;base64,aGk=",
	}
	f, store := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("tutor")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "Draw a free body diagram"}})
	require.NoError(t, err)
	assert.Equal(t, "here is the idea", reply.Text)
	assert.Equal(t, "data:image/png;base64,aGk=", reply.ImageURL)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.images))

	sess, _ := store.Get("tutor")
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "data:image/png;base64,aGk=", sess.Messages[1].ImageURL)
}

func TestImageFailureIsSwallowed(t *testing.T) {
	client := &fakeClient{
		chat:     &fakeChat{replies: []string{"text still works"}},
		imageErr: errors.New("image backend down"),
	}
	f, _ := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("tutor")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "sketch the orbit"}})
	require.NoError(t, err)
	assert.Equal(t, "text still works", reply.Text)
	assert.Empty(t, reply.ImageURL)
}

func TestNoImageWithoutKeyword(t *testing.T) {
	client := &fakeClient{
		chat:     &fakeChat{replies: []string{"just text"}},
		imageURL: "data:image/png;base64,aGk=",
	}
	f, _ := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("tutor")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "explain integrals"}})
	require.NoError(t, err)
	assert.Empty(t, reply.ImageURL)
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.images))
}

func TestImageAgentOnly(t *testing.T) {
	client := &fakeClient{
		chat:     &fakeChat{replies: []string{"text"}},
		imageURL: "data:image/png;base64,aGk=",
	}
	f, _ := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("scripture-guide")
	require.NoError(t, err)
	a.Initialize()

	reply, err := a.SendMessage(context.Background(), []orchestrator.Part{{Text: "draw a timeline"}})
	require.NoError(t, err)
	assert.Empty(t, reply.ImageURL)
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.images))
}

func TestCompletionErrorPropagates(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	client := &fakeClient{chat: &fakeChat{err: wantErr}}
	f, _ := newTestFactory(t, client, DefaultCatalog())
	a, err := f.NewAdapter("scripture-guide")
	require.NoError(t, err)
	a.Initialize()

	_, err = a.SendMessage(context.Background(), []orchestrator.Part{{Text: "hello"}})
	require.ErrorIs(t, err, wantErr)
}
