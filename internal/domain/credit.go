package domain

import "time"

// CreditTransaction is an immutable, append-only ledger entry. Amount is
// signed: debits are negative, refunds and grants positive. BalanceAfter
// snapshots the cached balance at append time; the cached value and the
// running sum of amounts must always agree.
type CreditTransaction struct {
	ID           string
	UserID       string
	Amount       int
	BalanceAfter int
	Description  string
	JobID        string
	TaskID       string
	CreatedAt    time.Time
}
