package domain

import "time"

// User represents an account as seen by the orchestrator. Authentication
// lives upstream; only the cached credit balance matters here.
type User struct {
	ID            string
	Email         string
	Name          string
	CreditBalance int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
