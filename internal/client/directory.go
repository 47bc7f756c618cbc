package client

import (
	"context"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// Directory exposes clients to the ledger engine and statement builder.
type Directory struct {
	repo Repository
}

// NewDirectory wraps a client repository as a ledger.ClientDirectory.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) ByID(ctx context.Context, id string) (ledger.Client, error) {
	c, err := d.repo.Get(ctx, id)
	if err != nil {
		return ledger.Client{}, err
	}
	return ledger.Client{ID: c.ID, Name: c.Name}, nil
}
