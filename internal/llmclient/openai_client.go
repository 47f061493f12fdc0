// Package llmclient provides streaming planner clients for
// chat-completion-style endpoints.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenAIClient streams completions from any OpenAI-compatible endpoint
// (vLLM, sglang, the hosted API). It implements schemas.Planner.
type OpenAIClient struct {
	cfg        config.ModelConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.Planner = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client. An API key is optional; local
// inference servers usually ignore it.
func NewOpenAIClient(cfg config.ModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model base URL is required")
	}
	return &OpenAIClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("model.client"),
	}, nil
}

// -- Wire structures (internal to this file) --

type chatRequest struct {
	Model            string         `json:"model"`
	Messages         []schemas.Turn `json:"messages"`
	Stream           bool           `json:"stream"`
	Temperature      float32        `json:"temperature"`
	TopP             float32        `json:"top_p,omitempty"`
	FrequencyPenalty float32        `json:"frequency_penalty,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Plan sends the conversation and assembles the streamed reply. Transient
// failures (network errors, 429/5xx, a stream cut mid-response) are retried
// with exponential backoff up to the configured budget; each attempt streams
// from scratch into a fresh assembler.
//
// A response that arrives intact but fails the grammar parse is returned
// together with the parse error so the caller can classify it, not retried
// here: resending the same context tends to reproduce the same malformed
// answer, and the loop's corrective feedback works better.
func (c *OpenAIClient) Plan(ctx context.Context, conversation []schemas.Turn) (*schemas.ModelResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:            c.cfg.Name,
		Messages:         conversation,
		Stream:           true,
		Temperature:      c.cfg.Temperature,
		TopP:             c.cfg.TopP,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		MaxTokens:        c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 15 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	var (
		resp     *schemas.ModelResponse
		parseErr error
	)
	operation := func() error {
		resp, parseErr = c.streamOnce(ctx, body)
		if parseErr != nil && !isParseError(parseErr) {
			// Transport-level failure; resp is nil.
			return parseErr
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	return resp, parseErr
}

func isParseError(err error) bool {
	return errors.Is(err, llmutil.ErrNoAction) || errors.Is(err, llmutil.ErrMalformedAction)
}

// streamOnce performs one streaming request and returns the assembled
// response. Errors other than parse failures mean the attempt is retryable
// unless wrapped backoff.Permanent.
func (c *OpenAIClient) streamOnce(ctx context.Context, body []byte) (*schemas.ModelResponse, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Network error during model request, retrying...", zap.Error(err))
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, c.handleAPIError(httpResp.StatusCode, respBody)
	}

	assembler := llmutil.NewAssembler()
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("Skipping undecodable stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) > 0 {
			assembler.Feed(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Model stream interrupted, retrying...", zap.Error(err))
		return nil, fmt.Errorf("stream interrupted: %w", err)
	}

	resp, parseErr := assembler.Finalize()
	c.logger.Debug("Model stream complete",
		zap.Duration("duration", time.Since(started)),
		zap.Duration("ttft", resp.Metrics.TimeToFirstToken),
		zap.Duration("time_to_thinking_end", resp.Metrics.TimeToThinkingEnd),
		zap.Duration("total_time", resp.Metrics.TotalTime),
		zap.Bool("parsed", parseErr == nil),
	)
	return resp, parseErr
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Model API returned error status",
		zap.Int("status", statusCode), zap.ByteString("response", body))
	err := fmt.Errorf("model API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
