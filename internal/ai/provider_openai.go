package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL   = "https://api.deepseek.com"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOllamaBaseURL     = "http://localhost:11434"

	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs
// (DeepSeek, OpenRouter, Ollama) via a configurable base URL.
type OpenAIProvider struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	name         string
	defaultModel string
	headers      map[string]string
	models       []ModelInfo

	client *openai.Client
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL sets the base URL for the OpenAI-compatible API.
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.httpClient = client
	}
}

// WithModels sets the available models for this provider.
func WithModels(models []ModelInfo) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.models = models
	}
}

// WithProviderName sets the provider name (for multi-instance use, e.g. "deepseek").
func WithProviderName(name string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.name = name
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

// WithHeader adds a header to every outgoing request.
func WithHeader(key, value string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:       apiKey,
		baseURL:      defaultOpenAIBaseURL,
		httpClient:   http.DefaultClient,
		name:         "openai",
		defaultModel: defaultOpenAIModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = p.baseURL
	cfg.HTTPClient = p.decoratedClient()
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

// NewDeepSeekProvider creates a provider for the DeepSeek API (OpenAI-compatible).
func NewDeepSeekProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{
		WithBaseURL(defaultDeepSeekBaseURL),
		WithProviderName("deepseek"),
		WithDefaultModel("deepseek-chat"),
	}, opts...)
	return NewOpenAIProvider(apiKey, opts...)
}

// NewOpenRouterProvider creates a provider for OpenRouter. OpenRouter uses
// the referer and title headers to attribute traffic to the app.
func NewOpenRouterProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	opts = append([]OpenAIOption{
		WithBaseURL(defaultOpenRouterBaseURL),
		WithProviderName("openrouter"),
		WithDefaultModel("openai/gpt-4o-mini"),
		WithHeader("HTTP-Referer", "https://github.com/p-n-ai/recall"),
		WithHeader("X-Title", "Recall"),
	}, opts...)
	return NewOpenAIProvider(apiKey, opts...)
}

// NewOllamaProvider creates a provider for a local Ollama server through its
// OpenAI-compatible endpoint. baseURL is the server root, without /v1.
func NewOllamaProvider(baseURL string, opts ...OpenAIOption) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	opts = append([]OpenAIOption{
		WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1"),
		WithProviderName("ollama"),
		WithDefaultModel("llama3.2"),
	}, opts...)
	return NewOpenAIProvider("ollama", opts...)
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) decoratedClient() *http.Client {
	if len(p.headers) == 0 {
		return p.httpClient
	}
	c := *p.httpClient
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.Transport = &headerTransport{base: base, headers: p.headers}
	return &c
}

// headerTransport sets fixed headers on every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func (p *OpenAIProvider) buildRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = toOpenAIMessage(m)
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		oaiReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		oaiReq.Temperature = float32(req.Temperature)
	}
	if req.JSON {
		oaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return oaiReq
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	if len(m.ImageURLs) == 0 {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.ImageURLs)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	for _, url := range m.ImageURLs {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return CompletionResponse{}, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("%s: no choices in response", p.name)
	}

	return CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (p *OpenAIProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	oaiReq := p.buildRequest(req)
	oaiReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, oaiReq)
	if err != nil {
		return nil, p.wrapError(err)
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				ch <- StreamChunk{Error: p.wrapError(err), Done: true}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- StreamChunk{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *OpenAIProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: p.defaultModel, Name: p.defaultModel, MaxTokens: 128000, Description: p.name + " default model"},
	}
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", p.wrapError(err))
	}
	return nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s api error (status %d): %w", p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s api error (status %d): %w", p.name, reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s: %w", p.name, err)
}
