package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// QwenOptions configures the DashScope-backed Qwen adapter.
type QwenOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// QwenGenerator calls DashScope's multimodal generation endpoint.
type QwenGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewQwenGenerator(opts QwenOptions) *QwenGenerator {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := opts.Model
	if model == "" {
		model = "qwen-image-edit"
	}
	return &QwenGenerator{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
}

func (g *QwenGenerator) Name() string { return "qwen" }

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
		ImageBase64    string `json:"image_base64,omitempty"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size,omitempty"`
		N    int    `json:"n"`
	} `json:"parameters"`
}

type qwenResponse struct {
	Output struct {
		Results []struct {
			B64Image string `json:"b64_image"`
		} `json:"results"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if g.apiKey == "" {
		return nil, &ProviderError{Provider: g.Name(), Message: "api key missing", Transient: false}
	}

	width, height := aspectSize(req.AspectRatio)
	payload := qwenRequest{Model: g.model}
	payload.Input.Prompt = req.Prompt
	payload.Input.NegativePrompt = req.NegativePrompt
	if len(req.SourceImage) > 0 {
		payload.Input.ImageBase64 = base64.StdEncoding.EncodeToString(req.SourceImage)
	}
	payload.Parameters.Size = fmt.Sprintf("%d*%d", width, height)
	payload.Parameters.N = 1

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal qwen request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/services/aigc/multimodal-generation/generation", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create qwen request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		transient := errors.Is(err, context.DeadlineExceeded)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			transient = true
		}
		return nil, &ProviderError{Provider: g.Name(), Message: err.Error(), Transient: transient, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &ProviderError{Provider: g.Name(), Message: err.Error(), Transient: true, Err: err}
	}

	var parsed qwenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: g.Name(), StatusCode: resp.StatusCode, Message: "unparseable response", Transient: transientStatus(resp.StatusCode), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		message := parsed.Message
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return nil, &ProviderError{
			Provider:   g.Name(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Transient:  transientStatus(resp.StatusCode),
		}
	}
	if len(parsed.Output.Results) == 0 || parsed.Output.Results[0].B64Image == "" {
		return nil, &ProviderError{Provider: g.Name(), StatusCode: resp.StatusCode, Message: "response contained no image"}
	}

	data, err := base64.StdEncoding.DecodeString(parsed.Output.Results[0].B64Image)
	if err != nil {
		return nil, &ProviderError{Provider: g.Name(), Message: "invalid base64 image payload", Err: err}
	}
	return &Asset{Data: data, Format: "image/png", Width: width, Height: height}, nil
}

var _ Generator = (*QwenGenerator)(nil)
