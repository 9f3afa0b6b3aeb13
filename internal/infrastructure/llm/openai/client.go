// Package openai talks to any OpenAI-compatible endpoint for embeddings and
// chat completions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/readmate-rag/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/readmate-rag/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// Dimensions is forwarded to models that support shortened embeddings. Zero keeps the model default.
	Dimensions int
	Executor   *resilience.Executor
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimensions int
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		chatModel:  cfg.ChatModel,
		embedModel: openai.EmbeddingModel(cfg.EmbedModel),
		dimensions: cfg.Dimensions,
		executor:   cfg.Executor,
	}
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	var resp openai.EmbeddingResponse
	err := resilience.Do(ctx, c.executor, "openai.embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateEmbeddings(callCtx, req)
		return callErr
	}, classify)
	if err != nil {
		return nil, resilience.Temporary("openai embed", err, classify)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return items out of order; Index is authoritative.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		out[i] = item.Embedding
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) GenerateAnswer(ctx context.Context, question string, contexts []string) (string, error) {
	return c.complete(ctx, prompt.Answer(question, contexts), 400)
}

func (c *Client) SummarizePart(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, prompt.SummarizePart(text), 200)
}

func (c *Client) CombineSummaries(ctx context.Context, partials []string, sentences int) (string, error) {
	return c.complete(ctx, prompt.CombineSummaries(partials, sentences), 400)
}

func (c *Client) complete(ctx context.Context, text string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		TopP:        0.9,
	}

	var resp openai.ChatCompletionResponse
	err := resilience.Do(ctx, c.executor, "openai.chat", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(callCtx, req)
		return callErr
	}, classify)
	if err != nil {
		return "", resilience.Temporary("openai chat", err, classify)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify treats API replies by status code. Transport failures fall through
// to resilience.Classify.
var classify = resilience.ClassifyWith(func(err error) (resilience.ErrorClassification, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return resilience.ClassifyStatus(apiErr.HTTPStatusCode), true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return resilience.ClassifyStatus(reqErr.HTTPStatusCode), true
	}
	return resilience.ErrorClassification{}, false
})
