package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
)

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		Provider:   config.ProviderOpenAI,
		BaseURL:    baseURL,
		Name:       "autoglm-phone",
		APITimeout: 5 * time.Second,
		MaxTokens:  3000,
		MaxRetries: 2,
	}
}

// sseHandler writes the given content split into chunks, in the SSE shape
// an OpenAI-compatible server produces.
func sseHandler(t *testing.T, content string, chunkSize int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < len(content); i += chunkSize {
			end := i + chunkSize
			if end > len(content) {
				end = len(content)
			}
			piece, err := json.Marshal(content[i:end])
			require.NoError(t, err)
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%s}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestOpenAIClientPlan(t *testing.T) {
	raw := `<think>tap the search box</think><answer>do(action="Tap", element=[500,120])</answer>`
	srv := httptest.NewServer(sseHandler(t, raw, 7))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Plan(context.Background(), []schemas.Turn{
		schemas.TextTurn(schemas.RoleSystem, "you are an agent"),
		schemas.TextTurn(schemas.RoleUser, "tap search"),
	})
	require.NoError(t, err)
	assert.Equal(t, "tap the search box", resp.Thinking)
	require.NotNil(t, resp.Action)
	assert.Equal(t, schemas.ActionTap, resp.Action.Kind)
	assert.Equal(t, raw, resp.RawText)
	assert.Greater(t, resp.Metrics.TotalTime, time.Duration(0))
}

func TestOpenAIClientSendsAuthHeader(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		sseHandler(t, `<answer>do(action="Back")</answer>`, 64)(w, r)
	}))
	defer srv.Close()

	cfg := testModelConfig(srv.URL + "/v1")
	cfg.APIKey = "sk-test"
	client, err := NewOpenAIClient(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Plan(context.Background(), []schemas.Turn{
		schemas.TextTurn(schemas.RoleUser, "go back"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", gotAuth.Load())
}

func TestOpenAIClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		sseHandler(t, `<answer>do(action="Home")</answer>`, 64)(w, r)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Plan(context.Background(), []schemas.Turn{
		schemas.TextTurn(schemas.RoleUser, "home"),
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionHome, resp.Action.Kind)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIClientPermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Plan(context.Background(), []schemas.Turn{
		schemas.TextTurn(schemas.RoleUser, "anything"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestOpenAIClientParseFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		sseHandler(t, `<think>confused</think><answer>no call here</answer>`, 64)(w, r)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(testModelConfig(srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Plan(context.Background(), []schemas.Turn{
		schemas.TextTurn(schemas.RoleUser, "anything"),
	})
	assert.ErrorIs(t, err, llmutil.ErrNoAction)
	require.NotNil(t, resp, "parse failures still carry the raw response")
	assert.Equal(t, "confused", resp.Thinking)
	assert.Nil(t, resp.Action)
	assert.Equal(t, int32(1), calls.Load(), "parse failures must not be retried")
}

func TestFactory(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		p, err := New(context.Background(), testModelConfig("http://localhost:8000/v1"), zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, p)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testModelConfig("http://localhost:8000/v1")
		cfg.Provider = "llamacpp"
		_, err := New(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown model provider")
	})

	t.Run("gemini requires key", func(t *testing.T) {
		cfg := testModelConfig("")
		cfg.Provider = config.ProviderGemini
		_, err := New(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})
}

func TestDecodeDataURL(t *testing.T) {
	data, mime, err := decodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("hello"), data)

	_, _, err = decodeDataURL("https://example.com/img.png")
	assert.Error(t, err)

	_, _, err = decodeDataURL("data:image/png;base64,!!!")
	assert.Error(t, err)
}
