package account

import (
	"context"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// Directory exposes accounts to the ledger engine and statement builder.
type Directory struct {
	repo Repository
}

// NewDirectory wraps an account repository as a ledger.AccountDirectory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) ByNumber(ctx context.Context, number string) (ledger.Account, error) {
	a, err := d.repo.GetByNumber(ctx, number)
	if err != nil {
		return ledger.Account{}, err
	}
	return toLedger(a), nil
}

func (d *Directory) ByClient(ctx context.Context, clientID string) ([]ledger.Account, error) {
	if clientID == "" {
		return []ledger.Account{}, nil
	}
	accounts, err := d.repo.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Account, len(accounts))
	for i, a := range accounts {
		out[i] = toLedger(a)
	}
	return out, nil
}

func toLedger(a Account) ledger.Account {
	return ledger.Account{
		ID:             a.ID,
		Number:         a.Number,
		Type:           a.Type,
		InitialBalance: a.InitialBalance,
		Active:         a.Active,
		ClientID:       a.ClientID,
	}
}
