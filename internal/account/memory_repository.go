package account

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/accountledger/internal/ledger"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[a.Number]; exists {
		return ErrDuplicateAccount
	}
	r.accounts[a.Number] = a
	return nil
}

func (r *memoryRepository) GetByNumber(_ context.Context, number string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[number]
	if !ok {
		return Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepository) List(_ context.Context, clientID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0)
	for _, a := range r.accounts {
		if clientID == "" || a.ClientID == clientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.Number]; !ok {
		return ledger.ErrAccountNotFound
	}
	r.accounts[a.Number] = a
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, number string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[number]; !ok {
		return ledger.ErrAccountNotFound
	}
	delete(r.accounts, number)
	return nil
}
