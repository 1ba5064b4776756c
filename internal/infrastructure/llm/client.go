package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/config"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

const (
	summarizeService = "summarize"
	embedService     = "embed"
	maxArticleRunes  = 24000
)

var errEmptyResponse = errors.New("empty response")

// Client implements Summarizer and Embedder on an OpenAI-compatible API.
type Client struct {
	model    llms.Model
	embedder embeddings.Embedder
	prompt   string
	logger   *slog.Logger
}

var (
	_ ports.Summarizer = (*Client)(nil)
	_ ports.Embedder   = (*Client)(nil)
)

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.Model == "" || cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("llm client misconfigured: api key, model and embedding model are required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(model, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	return newClient(model, embedder, cfg, log), nil
}

func newClient(model llms.Model, embedder embeddings.Embedder, cfg config.LLMConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		model:    model,
		embedder: embedder,
		prompt:   buildSystemPrompt(cfg.SystemPrompt, cfg.Tags),
		logger:   log,
	}
}

type summaryResponse struct {
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags"`
	SearchQuery string   `json:"searchQuery"`
}

// Summarize asks the chat model for a JSON summary of the article.
func (c *Client) Summarize(ctx context.Context, title, text string) (domain.Summary, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userMessage(title, text)),
	}

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0.2), llms.WithJSONMode())
	if err != nil {
		return domain.Summary{}, &domain.ExternalServiceError{Service: summarizeService, Err: err}
	}
	if len(resp.Choices) == 0 {
		return domain.Summary{}, &domain.ExternalServiceError{Service: summarizeService, Err: errEmptyResponse}
	}

	raw := stripFences(resp.Choices[0].Content)
	var parsed summaryResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("unparseable summary response", "title", title, "response", raw, "error", err)
		return domain.Summary{}, &domain.ExternalServiceError{Service: summarizeService, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return domain.Summary{}, &domain.ExternalServiceError{Service: summarizeService, Err: errEmptyResponse}
	}

	return domain.Summary{
		Text:        strings.TrimSpace(parsed.Summary),
		Tags:        normalizeTags(parsed.Tags),
		SearchQuery: strings.TrimSpace(parsed.SearchQuery),
	}, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: embedService, Err: err}
	}
	if len(vector) == 0 {
		return nil, &domain.ExternalServiceError{Service: embedService, Err: errEmptyResponse}
	}
	return vector, nil
}

func userMessage(title, text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxArticleRunes {
		text = string(runes[:maxArticleRunes])
	}
	return "Title: " + strings.TrimSpace(title) + "\n\n" + text
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalizeTags trims, lowercases and dedupes tags. Semicolons are the
// stored separator and cannot appear inside a tag.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(t, ";", " ")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
