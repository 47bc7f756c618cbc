package client

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/accountledger/internal/ledger"
)

type memoryRepository struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewMemoryRepository builds an in-memory client store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{clients: make(map[string]Client)}
}

func (r *memoryRepository) Create(_ context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clients {
		if existing.Identification == c.Identification {
			return ErrDuplicateClient
		}
	}
	r.clients[c.ID] = c
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return Client{}, ledger.ErrClientNotFound
	}
	return c, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return ledger.ErrClientNotFound
	}
	r.clients[c.ID] = c
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return ledger.ErrClientNotFound
	}
	delete(r.clients, id)
	return nil
}
