package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"server/internal/domain"
)

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type userResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Balance int    `json:"balance"`
}

// CreateUser registers an account and grants the signup credit allowance.
func (a *App) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user := &domain.User{
		ID:    uuid.NewString(),
		Email: strings.TrimSpace(req.Email),
		Name:  strings.TrimSpace(req.Name),
	}
	if err := a.Users.Create(r.Context(), user); err != nil {
		a.fail(w, r, err)
		return
	}
	balance := 0
	if a.FreeCredits > 0 {
		granted, err := a.Ledger.Grant(r.Context(), user.ID, a.FreeCredits, "Welcome credits")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		balance = granted
	}
	a.json(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Balance: balance})
}

// GetMe returns the caller's profile and balance.
func (a *App) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Balance: user.CreditBalance})
}
