package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type IdeogramOptions struct {
	APIKey         string
	BaseURL        string
	RenderingSpeed string
	MagicPrompt    string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// IdeogramGenerator renders prompts with the Ideogram v3 generate endpoint.
type IdeogramGenerator struct {
	apiKey         string
	baseURL        string
	renderingSpeed string
	magicPrompt    string
	client         *http.Client
}

type ideogramResponse struct {
	Created string `json:"created"`
	Data    []struct {
		URL         string `json:"url"`
		Prompt      string `json:"prompt"`
		Resolution  string `json:"resolution"`
		IsImageSafe bool   `json:"is_image_safe"`
	} `json:"data"`
}

func NewIdeogramGenerator(opts IdeogramOptions) (*IdeogramGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.ideogram.ai"
	}
	return &IdeogramGenerator{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        baseURL,
		renderingSpeed: NormalizeRenderingSpeed(opts.RenderingSpeed),
		magicPrompt:    NormalizeMagicPrompt(opts.MagicPrompt),
		client:         client,
	}, nil
}

func (g *IdeogramGenerator) Name() string { return "ideogram" }

// Generate fulfils the Generator interface. Request fields left empty use the
// generator defaults.
func (g *IdeogramGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("ideogram: prompt is required")
	}
	speed := g.renderingSpeed
	if req.RenderingSpeed != "" {
		speed = NormalizeRenderingSpeed(req.RenderingSpeed)
	}
	magic := g.magicPrompt
	if req.MagicPrompt != "" {
		magic = NormalizeMagicPrompt(req.MagicPrompt)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, field := range [][2]string{{"prompt", prompt}, {"rendering_speed", speed}, {"magic_prompt", magic}} {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("ideogram: encode form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("ideogram: encode form: %w", err)
	}

	endpoint := g.baseURL + "/v1/ideogram-v3/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("ideogram: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Api-Key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ideogram: request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ideogram status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var out ideogramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ideogram: decode response: %w", err)
	}
	urls := make([]string, 0, len(out.Data))
	for _, item := range out.Data {
		if u := strings.TrimSpace(item.URL); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

var _ Generator = (*IdeogramGenerator)(nil)
