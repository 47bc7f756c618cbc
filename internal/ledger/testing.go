package ledger

import (
	"context"
	"sync"
)

// StaticDirectory is a test helper that serves accounts and clients from memory.
// It satisfies both AccountDirectory and ClientDirectory.
type StaticDirectory struct {
	mu       sync.RWMutex
	accounts map[string]Account
	clients  map[string]Client
}

// NewStaticDirectory returns an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		accounts: make(map[string]Account),
		clients:  make(map[string]Client),
	}
}

// PutAccount adds or replaces an account keyed by its number.
func (d *StaticDirectory) PutAccount(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[a.Number] = a
}

// PutClient adds or replaces a client keyed by its id.
func (d *StaticDirectory) PutClient(c Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.ID] = c
}

func (d *StaticDirectory) ByNumber(_ context.Context, number string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[number]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (d *StaticDirectory) ByClient(_ context.Context, clientID string) ([]Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Account, 0)
	for _, a := range d.accounts {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *StaticDirectory) ByID(_ context.Context, id string) (Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}
