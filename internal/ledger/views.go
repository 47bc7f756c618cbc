package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows ListMovements. Every field is optional.
type Filter struct {
	AccountNumber string
	ClientID      string
	From          time.Time
	To            time.Time
}

// MovementContext is account and client information attached to a listed movement.
type MovementContext struct {
	AccountType    string
	InitialBalance decimal.Decimal
	AccountActive  bool
	ClientID       string
	// ClientName is empty when the client could not be resolved.
	ClientName string
}

// MovementView is a read-only projection of a stored movement. Context is nil
// when the owning account could not be resolved.
type MovementView struct {
	Movement
	Context *MovementContext
}

// ListMovements returns movements matching f, newest first, enriched with
// account and client context where it can be resolved.
func (e *Engine) ListMovements(ctx context.Context, f Filter) ([]MovementView, error) {
	q := Query{From: f.From, To: f.To}
	if f.AccountNumber != "" {
		q.AccountNumbers = []string{f.AccountNumber}
	}

	if f.ClientID != "" {
		accounts, err := e.accounts.ByClient(ctx, f.ClientID)
		if err != nil {
			return nil, err
		}
		numbers := make([]string, 0, len(accounts))
		for _, a := range accounts {
			if f.AccountNumber == "" || a.Number == f.AccountNumber {
				numbers = append(numbers, a.Number)
			}
		}
		if len(numbers) == 0 {
			return []MovementView{}, nil
		}
		q.AccountNumbers = numbers
	}

	ms, err := e.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(ms)
	return e.enrich(ctx, ms), nil
}

// GetMovement returns a single movement by id.
func (e *Engine) GetMovement(ctx context.Context, id string) (MovementView, error) {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return MovementView{}, err
	}
	return e.enrich(ctx, []Movement{m})[0], nil
}

// enrich attaches account and client context. Lookup failures leave the
// context out rather than failing the listing.
func (e *Engine) enrich(ctx context.Context, ms []Movement) []MovementView {
	contexts := make(map[string]*MovementContext)
	clientNames := make(map[string]string)

	views := make([]MovementView, len(ms))
	for i, m := range ms {
		views[i] = MovementView{Movement: m}

		mc, seen := contexts[m.AccountNumber]
		if !seen {
			mc = e.accountContext(ctx, m.AccountNumber, clientNames)
			contexts[m.AccountNumber] = mc
		}
		if mc != nil {
			cp := *mc
			views[i].Context = &cp
		}
	}
	return views
}

func (e *Engine) accountContext(ctx context.Context, number string, clientNames map[string]string) *MovementContext {
	acct, err := e.accounts.ByNumber(ctx, number)
	if err != nil {
		return nil
	}
	mc := &MovementContext{
		AccountType:    acct.Type,
		InitialBalance: acct.InitialBalance,
		AccountActive:  acct.Active,
		ClientID:       acct.ClientID,
	}
	if e.clients == nil || acct.ClientID == "" {
		return mc
	}
	name, seen := clientNames[acct.ClientID]
	if !seen {
		if c, err := e.clients.ByID(ctx, acct.ClientID); err == nil {
			name = c.Name
		}
		clientNames[acct.ClientID] = name
	}
	mc.ClientName = name
	return mc
}
