package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// requireAdmin checks the bearer token against the configured admin token.
// With no token configured every admin endpoint is disabled.
func (a *App) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if a.AdminToken == "" {
		a.error(w, http.StatusForbidden, "admin endpoints are disabled")
		return false
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.AdminToken)) != 1 {
		a.error(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

type rotateKeyRequest struct {
	APIKey string `json:"api_key"`
}

// RotateProviderKey stores a new API key for the provider and invalidates
// its cached credentials so the next generation picks the new key up.
func (a *App) RotateProviderKey(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "provider")
	var req rotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.Credentials.SetKey(r.Context(), name, req.APIKey); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.Providers.Invalidate(name); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("provider", name).Msg("admin: provider key rotated")
	a.json(w, http.StatusOK, map[string]string{"status": "rotated", "provider": name})
}

// InvalidateProvider drops the provider's cached credentials without
// changing the stored key.
func (a *App) InvalidateProvider(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	name := chi.URLParam(r, "provider")
	if err := a.Providers.Invalidate(name); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "invalidated", "provider": name})
}

// ListProviders reports the registered providers.
func (a *App) ListProviders(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"providers": a.Providers.Names()})
}
