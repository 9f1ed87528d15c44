package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentHub/internal/orchestrator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textResponse(text string) GeminiResponse {
	return GeminiResponse{Candidates: []GeminiCandidate{{
		Content: GeminiContent{Role: "model", Parts: []GeminiPart{{Text: text}}},
	}}}
}

func TestChatKeepsHistoryAndSystemPrompt(t *testing.T) {
	var requests []GeminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GeminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		json.NewEncoder(w).Encode(textResponse("reply"))
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", testLogger(), WithBaseURL(srv.URL))
	chat := client.StartChat("gemini-2.0-flash", "be brief")

	_, err := chat.Send(context.Background(), []orchestrator.Part{{Text: "first"}})
	require.NoError(t, err)
	_, err = chat.Send(context.Background(), []orchestrator.Part{{Text: "second"}})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	require.NotNil(t, requests[0].SystemInstruction)
	assert.Equal(t, "be brief", requests[0].SystemInstruction.Parts[0].Text)

	// Second request carries first turn, model reply, then the new turn.
	require.Len(t, requests[1].Contents, 3)
	assert.Equal(t, "user", requests[1].Contents[0].Role)
	assert.Equal(t, "first", requests[1].Contents[0].Parts[0].Text)
	assert.Equal(t, "model", requests[1].Contents[1].Role)
	assert.Equal(t, "reply", requests[1].Contents[1].Parts[0].Text)
	assert.Equal(t, "second", requests[1].Contents[2].Parts[0].Text)
}

func TestGenerateErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", testLogger(), WithBaseURL(srv.URL))
	chat := client.StartChat("gemini-2.0-flash", "")
	_, err := chat.Send(context.Background(), []orchestrator.Part{{Text: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestBlockedPromptSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GeminiResponse{
			PromptFeedback: &GeminiPromptFeedback{BlockReason: "SAFETY"},
		})
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", testLogger(), WithBaseURL(srv.URL))
	chat := client.StartChat("gemini-2.0-flash", "")
	_, err := chat.Send(context.Background(), []orchestrator.Part{{Text: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateImageReturnsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GeminiResponse{Candidates: []GeminiCandidate{{
			Content: GeminiContent{Parts: []GeminiPart{
				{InlineData: &GeminiInlineData{MimeType: "image/png", Data: "aGVsbG8="}},
			}},
		}}})
	}))
	defer srv.Close()

	client := NewGeminiClient("test-key", testLogger(), WithBaseURL(srv.URL))
	url, err := client.GenerateImage(context.Background(), "gemini-2.0-flash-image", "draw a cat")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", url)
}
