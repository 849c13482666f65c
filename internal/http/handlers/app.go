// Package handlers contains the HTTP endpoints of the generation service.
// Handlers stay thin: decode, delegate to the scheduler or a service,
// translate domain errors into status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/catalog"
	"server/internal/domain"
	"server/internal/infra/credentials"
	"server/internal/ledger"
	"server/internal/provider"
	"server/internal/scheduler"
	"server/internal/storage"
)

type App struct {
	Logger      zerolog.Logger
	Scheduler   *scheduler.Scheduler
	Ledger      *ledger.Service
	Catalog     *catalog.Registry
	Providers   *provider.Registry
	Users       domain.UserRepository
	Jobs        domain.JobRepository
	Tasks       domain.TaskRepository
	Store       *storage.FileStore
	Credentials *credentials.Store
	FreeCredits int
	AdminToken  string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, errorResponse{Error: msg})
}

// fail maps a domain error onto an HTTP status. Unknown errors log and
// return 500 without leaking internals.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	var ce *domain.ConfigurationError
	var nf *provider.NotFoundError
	switch {
	case errors.As(err, &ve):
		a.json(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Kind: "validation"})
	case errors.As(err, &ce):
		a.json(w, http.StatusUnprocessableEntity, errorResponse{Error: ce.Error(), Kind: "configuration"})
	case errors.As(err, &nf):
		a.json(w, http.StatusBadRequest, errorResponse{Error: nf.Error(), Kind: "unknown_provider"})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		a.error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.json(w, http.StatusPaymentRequired, errorResponse{Error: "insufficient credits", Kind: "insufficient_credits"})
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrSchedulerClosed):
		a.error(w, http.StatusServiceUnavailable, "service is starting up, retry shortly")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler: internal error")
		a.error(w, http.StatusInternalServerError, "internal error")
	}
}

// currentUserID identifies the caller. Authentication lives at the gateway;
// this service trusts the forwarded identity header.
func currentUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

// requireUser writes a 401 and returns "" when the identity header is absent.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "missing X-User-ID header")
	}
	return userID
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
