package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// MovementChecker reports whether the ledger holds movements for an account.
type MovementChecker interface {
	HasMovements(ctx context.Context, accountNumber string) (bool, error)
}

// Service exposes account operations. Balances live in the ledger; an account
// only records the opening balance.
type Service struct {
	repo      Repository
	clients   ledger.ClientDirectory
	movements MovementChecker
	now       func() time.Time
}

// NewService builds an account service instance. movements may be nil, in
// which case deletion is never blocked.
func NewService(repo Repository, clients ledger.ClientDirectory, movements MovementChecker) *Service {
	return &Service{repo: repo, clients: clients, movements: movements, now: time.Now}
}

// Create opens an account for an existing client.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	a := Account{
		ID:             uuid.New().String(),
		Number:         strings.TrimSpace(in.Number),
		Type:           strings.TrimSpace(in.Type),
		InitialBalance: in.InitialBalance,
		Active:         true,
		ClientID:       strings.TrimSpace(in.ClientID),
		CreatedAt:      s.now().UTC(),
	}
	if in.Active != nil {
		a.Active = *in.Active
	}

	if a.Number == "" {
		return Account{}, fmt.Errorf("%w: number is required", ErrInvalidAccount)
	}
	if a.Type == "" {
		return Account{}, fmt.Errorf("%w: type is required", ErrInvalidAccount)
	}
	if a.InitialBalance.IsNegative() {
		return Account{}, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidAccount)
	}
	if _, err := s.clients.ByID(ctx, a.ClientID); err != nil {
		return Account{}, err
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Get retrieves an account by number.
func (s *Service) Get(ctx context.Context, number string) (Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns every account, or only those of clientID when it is set.
func (s *Service) List(ctx context.Context, clientID string) ([]Account, error) {
	return s.repo.List(ctx, clientID)
}

// CountByClient reports how many accounts a client owns.
func (s *Service) CountByClient(ctx context.Context, clientID string) (int, error) {
	accounts, err := s.repo.List(ctx, clientID)
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}

// Update applies the non-nil fields of in. Number and initial balance are immutable.
func (s *Service) Update(ctx context.Context, number string, in UpdateInput) (Account, error) {
	a, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return Account{}, err
	}
	if in.Type != nil {
		a.Type = strings.TrimSpace(*in.Type)
		if a.Type == "" {
			return Account{}, fmt.Errorf("%w: type is required", ErrInvalidAccount)
		}
	}
	if in.Active != nil {
		a.Active = *in.Active
	}
	if in.ClientID != nil && *in.ClientID != a.ClientID {
		if _, err := s.clients.ByID(ctx, *in.ClientID); err != nil {
			return Account{}, err
		}
		a.ClientID = *in.ClientID
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Delete removes an account the ledger holds no movements for.
func (s *Service) Delete(ctx context.Context, number string) error {
	if _, err := s.repo.GetByNumber(ctx, number); err != nil {
		return err
	}
	if s.movements != nil {
		has, err := s.movements.HasMovements(ctx, number)
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("%w: %s", ErrAccountHasMovements, number)
		}
	}
	return s.repo.Delete(ctx, number)
}
