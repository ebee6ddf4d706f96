// Package gemini implements the llm ports on top of Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/piyasasohbet/piyasabot/internal/config"
	apperrors "github.com/piyasasohbet/piyasabot/internal/errors"
	"github.com/piyasasohbet/piyasabot/internal/llm"
)

// Client implements llm.Client and llm.Embedder.
type Client struct {
	genaiClient    *genai.Client
	log            *slog.Logger
	safety         []*genai.SafetySetting
	modelName      string
	fallbackModel  string
	embeddingModel string
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
}

var (
	_ llm.Client   = (*Client)(nil)
	_ llm.Embedder = (*Client)(nil)
)

// NewClient creates a Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigError("gemini API key is required", nil)
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName, "fallback_model", cfg.FallbackModel)
	return &Client{
		genaiClient: gi,
		log:         logger,
		safety: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		},
		modelName:      cfg.ModelName,
		fallbackModel:  cfg.FallbackModel,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}, nil
}

// Generate runs a completion, retrying transient failures, and falls back to the
// secondary model once the primary is exhausted.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	cfg := c.contentConfig(req)
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.modelName, contents, cfg)
	if err != nil && c.fallbackModel != "" && c.fallbackModel != c.modelName && apperrors.IsRetryable(err) && ctx.Err() == nil {
		c.log.WarnContext(ctx, "Primary model exhausted, trying fallback", "model", c.modelName, "fallback_model", c.fallbackModel, "error", err)
		resp, err = c.generateContentWithRetries(ctx, c.fallbackModel, contents, cfg)
	}
	if err != nil {
		return "", err
	}
	return c.extractText(ctx, resp)
}

func (c *Client) contentConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{SafetySettings: c.safety}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.FrequencyPenalty != 0 {
		cfg.FrequencyPenalty = genai.Ptr(float32(req.FrequencyPenalty))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func (c *Client) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.retryDelay, attempt)
			c.log.InfoContext(ctx, "Retrying Gemini API call", "model", modelName, "attempt", attempt+1, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.genaiClient.Models.GenerateContent(callCtx, modelName, contents, cfg)
		cancel()
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = classify(err)
		c.log.WarnContext(ctx, "Gemini API call failed", "model", modelName, "attempt", attempt+1, "max_attempts", c.maxRetries, "error", err)
		if !apperrors.IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// classify maps SDK errors onto the error taxonomy.
func classify(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return apperrors.NewThrottledError("gemini rate limited", 0, err)
		case apiErr.Code >= 500:
			return apperrors.NewTransientError(fmt.Sprintf("gemini server error %d", apiErr.Code), err)
		default:
			return apperrors.NewPermanentError(fmt.Sprintf("gemini request rejected %d", apiErr.Code), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransientError("gemini call timed out", err)
	}
	return apperrors.NewTransientError("gemini call failed", err)
}

// backoff doubles base per attempt and adds up to 50% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << (attempt - 1)
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", apperrors.NewContentRejectedError("blocked by safety filter: "+reasonMsg, nil)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", apperrors.NewContentRejectedError("empty completion, finish reason "+finishReason, nil)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", apperrors.NewContentRejectedError("empty completion", nil)
	}
	return text, nil
}

// Embed returns one vector per text using the configured embedding model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embeddingModel == "" {
		return nil, apperrors.NewConfigError("no embedding model configured", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	result, err := c.genaiClient.Models.EmbedContent(callCtx, c.embeddingModel, contents,
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, classify(err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
