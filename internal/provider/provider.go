// Package provider defines the generation backend contract and the runtime
// registry that maps provider names to backends. Adding a backend means
// implementing Generator and registering it at startup; the scheduler never
// inspects concrete types.
package provider

import "context"

// GenerateRequest is the normalized request passed to any backend.
type GenerateRequest struct {
	SourceImage    []byte
	SourceMIME     string
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	RequestID      string
}

// Asset is one generated image.
type Asset struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Generator is the single capability every backend implements. Generate is
// I/O bound and may block on the provider's network response; failures must
// be reported as *ProviderError so the scheduler can decide about retries.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
}

// Invalidator is optionally implemented by adapters that cache credentials
// or sessions. Invalidate drops the cached state so the next call picks up
// rotated credentials; the registration itself stays intact.
type Invalidator interface {
	Invalidate()
}
