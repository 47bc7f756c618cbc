package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

func newTestService(t *testing.T, movements MovementChecker) (*Service, Repository) {
	t.Helper()
	dir := ledger.NewStaticDirectory()
	dir.PutClient(ledger.Client{ID: "client-1", Name: "Marianela Montalvo"})
	repo := NewMemoryRepository()
	return NewService(repo, dir, movements), repo
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateInput{Number: "225487", Type: "checking", InitialBalance: decimal.NewFromInt(100), ClientID: "client-1"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !acct.Active {
		t.Fatalf("expected new account to be active")
	}

	fetched, err := svc.Get(ctx, "225487")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if fetched.ID != acct.ID || !fetched.InitialBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected account: %+v", fetched)
	}

	if _, err := svc.Create(ctx, CreateInput{Number: "225487", Type: "savings", ClientID: "client-1"}); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected duplicate account, got %v", err)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Number: "1", Type: "savings", InitialBalance: decimal.NewFromInt(-1), ClientID: "client-1"}); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected invalid account for negative opening balance, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Number: "", Type: "savings", ClientID: "client-1"}); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected invalid account for missing number, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Number: "1", Type: "savings", ClientID: "ghost"}); !errors.Is(err, ledger.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestServiceUpdateKeepsInitialBalance(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateInput{Number: "1", Type: "savings", InitialBalance: decimal.NewFromInt(50), ClientID: "client-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	inactive := false
	acct, err := svc.Update(ctx, "1", UpdateInput{Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if acct.Active || !acct.InitialBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected account after update: %+v", acct)
	}

	ghost := "ghost"
	if _, err := svc.Update(ctx, "1", UpdateInput{ClientID: &ghost}); !errors.Is(err, ledger.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestServiceDeleteGuardedByMovements(t *testing.T) {
	dir := ledger.NewStaticDirectory()
	dir.PutClient(ledger.Client{ID: "client-1"})
	repo := NewMemoryRepository()
	engine := ledger.NewEngine(ledger.NewInMemory(), NewDirectory(repo), ledger.EngineConfig{})
	svc := NewService(repo, dir, engine)
	ctx := context.Background()

	for _, n := range []string{"1", "2"} {
		if _, err := svc.Create(ctx, CreateInput{Number: n, Type: "savings", ClientID: "client-1"}); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	if _, err := engine.RecordMovement(ctx, ledger.MovementInput{AccountNumber: "1", Value: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := svc.Delete(ctx, "1"); !errors.Is(err, ErrAccountHasMovements) {
		t.Fatalf("expected has-movements error, got %v", err)
	}
	if err := svc.Delete(ctx, "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := svc.CountByClient(ctx, "client-1"); n != 1 {
		t.Fatalf("expected 1 remaining account, got %d", n)
	}
}

func TestDirectoryMapsAccounts(t *testing.T) {
	svc, repo := newTestService(t, nil)
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateInput{Number: "9", Type: "savings", InitialBalance: decimal.NewFromInt(7), ClientID: "client-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	dir := NewDirectory(repo)
	a, err := dir.ByNumber(ctx, "9")
	if err != nil {
		t.Fatalf("by number: %v", err)
	}
	if a.ClientID != "client-1" || !a.Active || !a.InitialBalance.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected ledger account: %+v", a)
	}
	if _, err := dir.ByNumber(ctx, "missing"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	accounts, err := dir.ByClient(ctx, "client-1")
	if err != nil || len(accounts) != 1 {
		t.Fatalf("expected one account for client, got %d (%v)", len(accounts), err)
	}
}
