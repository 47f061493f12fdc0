package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/llmutil"
)

// GeminiClient streams completions from the Gemini API. It implements
// schemas.Planner for setups where the policy model is hosted there
// instead of behind an OpenAI-compatible server.
type GeminiClient struct {
	cfg    config.ModelConfig
	client *genai.Client
	logger *zap.Logger
}

var _ schemas.Planner = (*GeminiClient)(nil)

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		cfg:    cfg,
		client: client,
		logger: logger.Named("model.client.gemini"),
	}, nil
}

// Plan streams one completion, with the same retry and parse-error contract
// as the OpenAI client.
func (c *GeminiClient) Plan(ctx context.Context, conversation []schemas.Turn) (*schemas.ModelResponse, error) {
	system, contents, err := convertConversation(conversation)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		TopP:            genai.Ptr(c.cfg.TopP),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if c.cfg.FrequencyPenalty != 0 {
		genCfg.FrequencyPenalty = genai.Ptr(c.cfg.FrequencyPenalty)
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 15 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	var (
		resp     *schemas.ModelResponse
		parseErr error
	)
	operation := func() error {
		started := time.Now()
		assembler := llmutil.NewAssembler()
		for chunk, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Name, contents, genCfg) {
			if err != nil {
				c.logger.Warn("Gemini stream interrupted, retrying...", zap.Error(err))
				return fmt.Errorf("stream interrupted: %w", err)
			}
			assembler.Feed(chunk.Text())
		}
		resp, parseErr = assembler.Finalize()
		c.logger.Debug("Model stream complete",
			zap.Duration("duration", time.Since(started)),
			zap.Duration("ttft", resp.Metrics.TimeToFirstToken),
			zap.Bool("parsed", parseErr == nil),
		)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	return resp, parseErr
}

// convertConversation maps chat turns onto Gemini contents. The system turn
// becomes the system instruction; assistant turns map to the model role.
func convertConversation(conversation []schemas.Turn) (string, []*genai.Content, error) {
	var system string
	contents := make([]*genai.Content, 0, len(conversation))

	for _, turn := range conversation {
		if turn.Role == schemas.RoleSystem {
			for _, part := range turn.Content {
				if part.Type == "text" {
					system += part.Text
				}
			}
			continue
		}

		role := genai.RoleUser
		if turn.Role == schemas.RoleAssistant {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(turn.Content))
		for _, part := range turn.Content {
			switch part.Type {
			case "text":
				parts = append(parts, genai.NewPartFromText(part.Text))
			case "image_url":
				if part.ImageURL == nil {
					continue
				}
				data, mime, err := decodeDataURL(part.ImageURL.URL)
				if err != nil {
					return "", nil, err
				}
				parts = append(parts, genai.NewPartFromBytes(data, mime))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return system, contents, nil
}

// decodeDataURL splits "data:<mime>;base64,<payload>" into raw bytes.
func decodeDataURL(u string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return nil, "", fmt.Errorf("image reference is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image payload: %w", err)
	}
	return data, mime, nil
}
