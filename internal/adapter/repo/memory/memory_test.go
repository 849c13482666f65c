package memory

import (
	"context"
	"testing"

	"server/internal/domain"
)

func TestTransitionGuardsStoredStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	task := &domain.SceneTask{ID: "t1", JobID: "j1", SceneTemplateID: "studio_white", Status: domain.TaskStatusQueued}
	if err := store.Tasks().CreateAll(ctx, []*domain.SceneTask{task}); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}

	ok, err := store.Tasks().Transition(ctx, "t1", domain.TaskStatusQueued, domain.TaskStatusRunning, domain.TaskPatch{})
	if err != nil || !ok {
		t.Fatalf("Transition queued->running = %v, %v", ok, err)
	}

	// A second compare-and-set from queued must lose.
	ok, err = store.Tasks().Transition(ctx, "t1", domain.TaskStatusQueued, domain.TaskStatusCancelled, domain.TaskPatch{})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if ok {
		t.Fatal("stale transition should not apply")
	}

	// Invalid edges are programming errors.
	if _, err := store.Tasks().Transition(ctx, "t1", domain.TaskStatusRunning, domain.TaskStatusQueued, domain.TaskPatch{}); err == nil {
		t.Fatal("expected invalid transition error")
	}
}

func TestTransitionAppliesPatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	task := &domain.SceneTask{ID: "t1", JobID: "j1", Status: domain.TaskStatusRunning}
	if err := store.Tasks().CreateAll(ctx, []*domain.SceneTask{task}); err != nil {
		t.Fatal(err)
	}

	ok, err := store.Tasks().Transition(ctx, "t1", domain.TaskStatusRunning, domain.TaskStatusSucceeded, domain.TaskPatch{
		OutputPath:   "generated/j1/t1.png",
		ProviderUsed: "synthetic",
		AttemptCount: 2,
	})
	if err != nil || !ok {
		t.Fatalf("Transition = %v, %v", ok, err)
	}

	got, err := store.Tasks().GetByID(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OutputPath != "generated/j1/t1.png" || got.ProviderUsed != "synthetic" || got.AttemptCount != 2 {
		t.Fatalf("patch not applied: %+v", got)
	}
}

func TestLedgerAppendRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.Users().Create(ctx, &domain.User{ID: "u1", CreditBalance: 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Ledger().Append(ctx, &domain.CreditTransaction{UserID: "u1", Amount: 2}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := store.Ledger().Append(ctx, &domain.CreditTransaction{UserID: "u1", Amount: -3}); err != domain.ErrInsufficientCredits {
		t.Fatalf("overdraft err = %v, want ErrInsufficientCredits", err)
	}
	balance, err := store.Ledger().Balance(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 2 {
		t.Fatalf("balance after rejected debit = %d, want 2", balance)
	}
}

func TestGetByIDReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	job := &domain.Job{ID: "j1", UserID: "u1", RequestedScenes: []string{"a", "b"}}
	if err := store.Jobs().Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := store.Jobs().GetByID(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	got.RequestedScenes[0] = "mutated"

	again, err := store.Jobs().GetByID(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if again.RequestedScenes[0] != "a" {
		t.Fatal("stored job mutated through returned copy")
	}
}
