package prompt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIGenerator asks a vision chat model for prompts describing new
// creatives based on an uploaded image.
type OpenAIGenerator struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	maxTokens    int
	temperature  float64
	client       *http.Client
}

const (
	openAIDefaultTimeout   = 30 * time.Second
	defaultOpenAIModel     = "gpt-4o"
	defaultOpenAIMaxTokens = 3000
	defaultOpenAITemp      = 0.7
)

var openAIModelCanonical = map[string]string{
	"gpt-4o":      "gpt-4o",
	"gpt-4o-mini": "gpt-4o-mini",
	"gpt-4-turbo": "gpt-4-turbo",
}

var openAIModelAliases = map[string]string{
	"gpt4o":                  "gpt-4o",
	"gpt-4-o":                "gpt-4o",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt-4o-2024-05-13":      "gpt-4o",
	"chatgpt-4o-latest":      "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4-turbo":             "gpt-4-turbo",
	"gpt-4-vision-preview":   "gpt-4-turbo",
}

type openAIChatRequest struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	PresencePenalty  float64         `json:"presence_penalty"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = openAIDefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultOpenAITemp
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizedModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		maxTokens:    maxTokens,
		temperature:  temperature,
		client:       client,
	}, nil
}

func (o *OpenAIGenerator) Name() string { return openAIProviderName }

// Model reports the resolved model name.
func (o *OpenAIGenerator) Model() string { return o.model }

func (o *OpenAIGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: requested %d", ErrPromptCount, req.Count)
	}
	if len(req.Image) == 0 {
		return nil, errors.New("openai: image is required")
	}
	mimeType := coalesce(req.MIME, "image/png")
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	payload := openAIChatRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		TopP:        1,
		Messages: []openAIMessage{
			{Role: "system", Content: buildSystemPrompt(req.Count)},
			{Role: "user", Content: []openAIContentPart{
				{Type: "text", Text: req.Brief},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
			}},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai: no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("openai: empty response")
	}
	return parsePromptList(text, req.Count)
}

var _ Generator = (*OpenAIGenerator)(nil)

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
