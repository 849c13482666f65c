package provider

import (
	"context"
	"errors"
	"net"

	"server/internal/provider/genai"
)

// GeminiGenerator adapts the genai client to the Generator contract. When no
// credentials are resolvable it delegates to a fallback generator (the
// synthetic backend in development) rather than failing every task.
type GeminiGenerator struct {
	client   *genai.Client
	fallback Generator
}

func NewGeminiGenerator(client *genai.Client, fallback Generator) *GeminiGenerator {
	return &GeminiGenerator{client: client, fallback: fallback}
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.client.HasCredentials(ctx) {
		if g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return nil, &ProviderError{Provider: g.Name(), Message: "api key missing", Transient: false}
	}

	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		RequestID:      req.RequestID,
		SourceImage:    req.SourceImage,
		SourceMIME:     req.SourceMIME,
	})
	if err != nil {
		return nil, g.wrapError(err)
	}
	return &Asset{Data: asset.Data, Format: asset.Format, Width: asset.Width, Height: asset.Height}, nil
}

// Invalidate drops the client's cached API key so a rotated credential takes
// effect without re-registering the provider.
func (g *GeminiGenerator) Invalidate() {
	g.client.InvalidateCredentials()
}

func (g *GeminiGenerator) wrapError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   g.Name(),
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Transient:  transientStatus(apiErr.StatusCode),
			Err:        err,
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ProviderError{Provider: g.Name(), Message: err.Error(), Transient: true, Err: err}
	}
	return &ProviderError{Provider: g.Name(), Message: err.Error(), Transient: false, Err: err}
}

var (
	_ Generator   = (*GeminiGenerator)(nil)
	_ Invalidator = (*GeminiGenerator)(nil)
)
