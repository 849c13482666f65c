// Package genai is a lightweight facade over the Gemini generateContent API
// used by the gemini provider adapter. It resolves its API key lazily through
// a KeySource so rotated credentials are picked up after an invalidation.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// KeySource supplies the current API key, e.g. from the credentials store.
type KeySource func(ctx context.Context) (string, error)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	KeySource  KeySource
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client calls Gemini's image generation endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zerolog.Logger
	keySource  KeySource

	mu        sync.Mutex
	cachedKey string
	resolved  bool
}

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

// ImageRequest carries everything needed for one image-to-image call.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	RequestID      string
	SourceImage    []byte
	SourceMIME     string
}

// ImageAsset is the normalized generated image.
type ImageAsset struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	c := &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		keySource:  opts.KeySource,
	}
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		c.cachedKey = key
		c.resolved = true
	}
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// InvalidateCredentials drops the cached API key; the next call resolves it
// again through the KeySource.
func (c *Client) InvalidateCredentials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedKey = ""
	c.resolved = false
}

// HasCredentials reports whether an API key is currently resolvable.
func (c *Client) HasCredentials(ctx context.Context) bool {
	key, err := c.apiKey(ctx)
	return err == nil && key != ""
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return c.cachedKey, nil
	}
	if c.keySource == nil {
		c.resolved = true
		return "", nil
	}
	key, err := c.keySource(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve gemini api key: %w", err)
	}
	c.cachedKey = strings.TrimSpace(key)
	c.resolved = true
	return c.cachedKey, nil
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage performs one image-to-image generation call.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	key, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("gemini api key missing")
	}

	parts := []part{{Text: buildImagePrompt(req)}}
	if len(req.SourceImage) > 0 {
		mime := req.SourceMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.SourceImage),
		}})
	}
	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	var out generateContentResponse
	if err := c.invoke(ctx, key, fmt.Sprintf("/models/%s:generateContent", c.model), payload, &out); err != nil {
		return nil, err
	}

	for _, candidate := range out.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			width, height := decodeImageDimensions(data)
			return &ImageAsset{
				Data:   data,
				Format: firstNonEmpty(p.InlineData.MimeType, "image/png"),
				Width:  width,
				Height: height,
			}, nil
		}
	}
	return nil, fmt.Errorf("gemini response contained no image data")
}

func (c *Client) invoke(ctx context.Context, key, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("model", c.model).Msg("genai: request failed")
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func buildImagePrompt(req ImageRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		b.WriteString(". Avoid: ")
		b.WriteString(neg)
	}
	if ar := strings.TrimSpace(req.AspectRatio); ar != "" {
		b.WriteString(". Aspect ratio ")
		b.WriteString(ar)
	}
	return b.String()
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
