// Package llmclient implements the OpenAI-compatible chat-completions
// client (spec.md §4.6): mutable settings under a reader-writer
// discipline, text and vision extraction modes, and the three-stage JSON
// recovery in parse.go. Grounded on
// services/llm-service/internal/providers/kimi_provider.go's
// OpenAI-shaped request/response structs and http.Client-with-timeout
// pattern.
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/freedkr/docbatch/internal/logging"
	"github.com/freedkr/docbatch/internal/model"
	"github.com/freedkr/docbatch/internal/prompt"
)

// requestTimeout is the hard per-request timeout spec.md §5 mandates for
// LLM calls.
const requestTimeout = 300 * time.Second

// Client is the LLM chat-completions caller.
type Client struct {
	http     *http.Client
	settings *settingsStore
	log      *logging.Logger
}

// New creates a Client seeded with initial settings.
func New(initial Settings) *Client {
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		settings: newSettingsStore(initial),
		log:      logging.New("llmclient"),
	}
}

// Settings returns a snapshot of the current mutable settings.
func (c *Client) Settings() Settings {
	return c.settings.snapshot()
}

// SwitchModel atomically replaces the active text model.
func (c *Client) SwitchModel(modelName string) {
	c.settings.update(func(s *Settings) { s.ModelName = modelName })
}

// UpdateSettings atomically replaces the whole settings record.
func (c *Client) UpdateSettings(s Settings) {
	c.settings.swap(s)
}

// LlmResponse is the outcome of a single structured-extraction call.
type LlmResponse struct {
	StructuredData   map[string]any
	DocumentType     string
	Confidence       float64
	ModelUsed        string
	ProcessingTimeMs int64
}

// --- wire types (OpenAI-compatible) ---

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type modelsResponse struct {
	Data   []json.RawMessage `json:"data"`
	Models []json.RawMessage `json:"models"`
}

// HealthCheck reports whether the LLM endpoint is reachable. It never
// fails upward (spec.md §4.6).
func (c *Client) HealthCheck(ctx context.Context) bool {
	s := c.settings.snapshot()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.APIURL+"/models", nil)
	if err != nil {
		return false
	}
	c.authorize(req, s)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels returns the raw model entries from either the OpenAI "data"
// shape or the Ollama "models" shape, whichever is present.
func (c *Client) ListModels(ctx context.Context) ([]json.RawMessage, error) {
	s := c.settings.snapshot()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.APIURL+"/models", nil)
	if err != nil {
		return nil, model.NewLlmTransportError("build list_models request", err)
	}
	c.authorize(req, s)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, model.NewLlmTransportError("list_models request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewLlmTransportError(fmt.Sprintf("list_models returned status %d", resp.StatusCode), nil)
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, model.NewLlmTransportError("decode list_models response", err)
	}
	if len(parsed.Data) > 0 {
		return parsed.Data, nil
	}
	return parsed.Models, nil
}

func (c *Client) authorize(req *http.Request, s Settings) {
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// ExtractStructured performs a single chat-completion over rawText,
// parameterized by the document-type hint (spec.md §4.6).
func (c *Client) ExtractStructured(ctx context.Context, rawText string, typeHint string) (LlmResponse, error) {
	s := c.settings.snapshot()
	start := time.Now()

	userContent := truncateToContext(rawText, s.ContextSize)
	messages := []chatMessage{
		{Role: "system", Content: prompt.SystemPrompt(model.DocumentType(typeHint))},
		{Role: "user", Content: prompt.UserPrompt(userContent)},
	}

	content, err := c.chatCompletion(ctx, s, s.ModelName, messages)
	if err != nil {
		return LlmResponse{}, err
	}

	return c.toLlmResponse(content, typeHint, s.ModelName, time.Since(start)), nil
}

// ExtractStructuredWithVision sends one chat-completion per page image,
// skipping pages whose request fails, and merges multi-page results
// (spec.md §4.6). It requires VisionModelName to be configured.
func (c *Client) ExtractStructuredWithVision(ctx context.Context, pageJPEGs [][]byte, typeHint string) (LlmResponse, error) {
	s := c.settings.snapshot()
	if s.VisionModelName == "" {
		return LlmResponse{}, model.NewVisionNotConfiguredError()
	}

	start := time.Now()
	total := len(pageJPEGs)
	var pageResults []string

	for i, jpeg := range pageJPEGs {
		messages := []chatMessage{
			{Role: "system", Content: prompt.SystemPrompt(model.DocumentType(typeHint))},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: prompt.VisionUserPrompt(i+1, total)},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)}},
			}},
		}
		content, err := c.chatCompletion(ctx, s, s.VisionModelName, messages)
		if err != nil {
			c.log.Warnf("vision page %d/%d failed: %v", i+1, total, err)
			continue
		}
		pageResults = append(pageResults, content)
	}

	if len(pageResults) == 0 {
		return LlmResponse{}, model.NewLlmTransportError(fmt.Sprintf("all %d vision pages failed", total), nil)
	}

	if len(pageResults) == 1 {
		return c.toLlmResponse(pageResults[0], typeHint, s.VisionModelName, time.Since(start)), nil
	}

	merged, err := c.mergePageResults(ctx, s, pageResults)
	if err != nil {
		return LlmResponse{}, err
	}
	return c.toLlmResponse(merged, typeHint, s.ModelName, time.Since(start)), nil
}

// mergePageResults invokes the text model with the merge prompt against
// the text model (not the vision model), per spec.md §4.6.
func (c *Client) mergePageResults(ctx context.Context, s Settings, pageResultsJSON []string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: "You merge multi-page document extraction results into one JSON object."},
		{Role: "user", Content: prompt.MergePrompt(pageResultsJSON)},
	}
	return c.chatCompletion(ctx, s, s.ModelName, messages)
}

func (c *Client) chatCompletion(ctx context.Context, s Settings, modelName string, messages []chatMessage) (string, error) {
	body := chatRequest{
		Model:          modelName,
		Messages:       messages,
		Temperature:    s.Temperature,
		MaxTokens:      s.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", model.NewLlmTransportError("marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", model.NewLlmTransportError("build chat request", err)
	}
	c.authorize(req, s)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", model.NewLlmTransportError("chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.NewLlmTransportError(fmt.Sprintf("chat completion returned status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", model.NewLlmTransportError("decode chat completion response", err)
	}
	if parsed.Error != nil {
		return "", model.NewLlmTransportError("chat completion returned an error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", model.NewLlmTransportError("chat completion returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) toLlmResponse(content, typeHint, modelUsed string, elapsed time.Duration) LlmResponse {
	parsed := ParseLLMResponse(content)
	docType := typeHint
	if dt, ok := parsed.Data["document_type"].(string); ok && dt != "" {
		docType = dt
	}
	return LlmResponse{
		StructuredData:   parsed.Data,
		DocumentType:     docType,
		Confidence:       parsed.Confidence,
		ModelUsed:        modelUsed,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// truncateToContext truncates text to contextSize*3 characters, appending
// "...[truncated]" when cut (spec.md §4.6, §8 boundary behavior).
func truncateToContext(text string, contextSize int) string {
	limit := contextSize * 3
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return strings.TrimSpace(text[:limit]) + "...[truncated]"
}
