// Package credentials manages provider API keys stored in the database so
// they can be rotated without restarting the service. Environment variables
// act as the fallback when no stored key exists.
package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ProviderGemini = "gemini"
	ProviderQwen   = "qwen"
)

type Store struct {
	pool     *pgxpool.Pool
	fallback map[string]string
}

// NewStore wires the credential store. pool may be nil in memory mode, in
// which case only the fallback keys are served.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, fallback: make(map[string]string)}
}

// SetFallback registers the environment-provided key for a provider.
func (s *Store) SetFallback(provider, key string) {
	if key = strings.TrimSpace(key); key != "" {
		s.fallback[provider] = key
	}
}

// Key returns the current API key for the provider: the stored key when one
// exists, otherwise the fallback. An empty result means the provider has no
// credentials at all.
func (s *Store) Key(ctx context.Context, provider string) (string, error) {
	if s.pool != nil {
		var key string
		err := s.pool.QueryRow(ctx, `SELECT api_key FROM provider_credentials WHERE name = $1;`, provider).Scan(&key)
		switch {
		case err == nil:
			if key = strings.TrimSpace(key); key != "" {
				return key, nil
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return "", err
		}
	}
	return s.fallback[provider], nil
}

// SetKey stores or replaces the provider's API key.
func (s *Store) SetKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	if s.pool == nil {
		s.fallback[provider] = key
		return nil
	}
	query := `
INSERT INTO provider_credentials (name, api_key, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = NOW();
`
	_, err := s.pool.Exec(ctx, query, provider, key)
	return err
}

// KeySource adapts the store to the key-resolver shape the provider clients
// consume, bound to one provider name.
func (s *Store) KeySource(provider string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return s.Key(ctx, provider)
	}
}
