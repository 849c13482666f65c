package handlers

import (
	"net/http"
	"strconv"
	"time"
)

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

type transactionView struct {
	ID           string    `json:"id"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	Description  string    `json:"description"`
	JobID        string    `json:"job_id,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetBalance returns the caller's current credit balance.
func (a *App) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}

// GetCreditHistory lists the caller's transactions newest first.
func (a *App) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	history, err := a.Ledger.History(r.Context(), userID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]transactionView, 0, len(history))
	for _, tx := range history {
		out = append(out, transactionView{
			ID:           tx.ID,
			Amount:       tx.Amount,
			BalanceAfter: tx.BalanceAfter,
			Description:  tx.Description,
			JobID:        tx.JobID,
			TaskID:       tx.TaskID,
			CreatedAt:    tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"transactions": out})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
