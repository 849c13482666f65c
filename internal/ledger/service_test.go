package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo/memory"
	"server/internal/domain"
)

func newTestService(t *testing.T, startingCredits int) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Ledger(), zerolog.Nop())
	if err := store.Users().Create(context.Background(), &domain.User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if startingCredits > 0 {
		if _, err := svc.Grant(context.Background(), "u1", startingCredits, "signup allowance"); err != nil {
			t.Fatal(err)
		}
	}
	return svc, store
}

func TestDebitAndRefundRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)

	balance, err := svc.Debit(ctx, "u1", 1, "scene generation", Ref{JobID: "j1", TaskID: "t1"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 4 {
		t.Fatalf("balance = %d, want 4", balance)
	}

	balance, err = svc.Refund(ctx, "u1", 1, "generation failed", Ref{JobID: "j1", TaskID: "t1"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
}

func TestDebitInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 1)

	if _, err := svc.Debit(ctx, "u1", 2, "scene generation", Ref{}); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	// Nothing was appended.
	history, err := svc.History(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1 (the grant only)", len(history))
	}
}

func TestCheckBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 2)

	ok, err := svc.CheckBalance(ctx, "u1", 2)
	if err != nil || !ok {
		t.Fatalf("CheckBalance(2) = %v, %v", ok, err)
	}
	ok, err = svc.CheckBalance(ctx, "u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("CheckBalance(3) should be false")
	}
}

func TestConcurrentDebitsNeverOverdraft(t *testing.T) {
	ctx := context.Background()
	const credits = 5
	const attempts = 20
	svc, _ := newTestService(t, credits)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, "u1", 1, "concurrent debit", Ref{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != credits {
		t.Fatalf("%d debits succeeded, want exactly %d", succeeded, credits)
	}
	balance, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}

func TestBalanceMatchesTransactionSum(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 10)

	_, _ = svc.Debit(ctx, "u1", 1, "a", Ref{TaskID: "t1"})
	_, _ = svc.Debit(ctx, "u1", 1, "b", Ref{TaskID: "t2"})
	_, _ = svc.Refund(ctx, "u1", 1, "b failed", Ref{TaskID: "t2"})

	history, err := svc.History(ctx, "u1", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	var sum int
	for _, tx := range history {
		sum += tx.Amount
	}
	balance, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if balance != sum {
		t.Fatalf("cached balance %d drifted from transaction sum %d", balance, sum)
	}
	if history[0].BalanceAfter != balance {
		t.Fatalf("newest BalanceAfter = %d, want %d", history[0].BalanceAfter, balance)
	}
}

func TestHistoryNewestFirstAndPaginated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 10)
	for _, desc := range []string{"first", "second", "third"} {
		if _, err := svc.Debit(ctx, "u1", 1, desc, Ref{}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.History(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Description != "third" || page[1].Description != "second" {
		t.Fatalf("page = %+v, want newest first", page)
	}

	next, err := svc.History(ctx, "u1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(next) != 2 || next[0].Description != "first" {
		t.Fatalf("offset page = %+v", next)
	}
}
