// Package statement aggregates ledger movements into client statements.
package statement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// ErrInvalidRange is returned when from is after to.
var ErrInvalidRange = errors.New("invalid date range")

// MovementLister lists ledger movements.
type MovementLister interface {
	ListMovements(ctx context.Context, f ledger.Filter) ([]ledger.MovementView, error)
}

// Line is one movement inside an account statement.
type Line struct {
	ID      string          `json:"id"`
	Date    time.Time       `json:"date"`
	Type    string          `json:"type"`
	Value   decimal.Decimal `json:"value"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountStatement is the period view of a single account.
type AccountStatement struct {
	Number         string          `json:"number"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Active         bool            `json:"active"`
	// ClosingBalance is the balance of the latest in-range movement, or the
	// initial balance when the account had none.
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	Movements      []Line          `json:"movements"`
}

// Summary totals every account of the statement.
type Summary struct {
	TotalCredits   decimal.Decimal `json:"totalCredits"`
	TotalDebits    decimal.Decimal `json:"totalDebits"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
}

// Statement is a client-scoped aggregation of account balances over a date range.
type Statement struct {
	ClientID   string             `json:"clientId"`
	ClientName string             `json:"clientName"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	Accounts   []AccountStatement `json:"accounts"`
	Summary    Summary            `json:"summary"`
}

// Builder assembles statements from the account and client directories and
// the ledger.
type Builder struct {
	accounts  ledger.AccountDirectory
	clients   ledger.ClientDirectory
	movements MovementLister
}

// NewBuilder constructs a statement builder.
func NewBuilder(accounts ledger.AccountDirectory, clients ledger.ClientDirectory, movements MovementLister) *Builder {
	return &Builder{accounts: accounts, clients: clients, movements: movements}
}

// Build computes the statement of clientID between from and to, both
// inclusive. A zero bound leaves that side of the range open.
func (b *Builder) Build(ctx context.Context, clientID string, from, to time.Time) (Statement, error) {
	if !from.IsZero() {
		from = ledger.DateOf(from)
	}
	if !to.IsZero() {
		to = ledger.DateOf(to)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return Statement{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, ledger.FormatDate(from), ledger.FormatDate(to))
	}

	client, err := b.clients.ByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ledger.ErrClientNotFound) {
			return Statement{}, fmt.Errorf("%w: %s", ledger.ErrClientNotFound, clientID)
		}
		return Statement{}, err
	}

	accounts, err := b.accounts.ByClient(ctx, client.ID)
	if err != nil {
		return Statement{}, err
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })

	views, err := b.movements.ListMovements(ctx, ledger.Filter{ClientID: client.ID, From: from, To: to})
	if err != nil {
		return Statement{}, err
	}
	byAccount := make(map[string][]ledger.Movement, len(accounts))
	for _, v := range views {
		byAccount[v.AccountNumber] = append(byAccount[v.AccountNumber], v.Movement)
	}

	st := Statement{
		ClientID:   client.ID,
		ClientName: client.Name,
		From:       from,
		To:         to,
		Accounts:   make([]AccountStatement, 0, len(accounts)),
		Summary: Summary{
			TotalCredits:   decimal.Zero,
			TotalDebits:    decimal.Zero,
			ClosingBalance: decimal.Zero,
		},
	}
	for _, a := range accounts {
		ms := byAccount[a.Number]
		ledger.SortChronological(ms)

		as := AccountStatement{
			Number:         a.Number,
			Type:           a.Type,
			InitialBalance: a.InitialBalance,
			Active:         a.Active,
			ClosingBalance: a.InitialBalance,
			Movements:      make([]Line, 0, len(ms)),
		}
		for _, m := range ms {
			as.Movements = append(as.Movements, Line{ID: m.ID, Date: m.Date, Type: m.Type, Value: m.Value, Balance: m.Balance})
			if m.IsDebit() {
				st.Summary.TotalDebits = st.Summary.TotalDebits.Add(m.Value.Abs())
			} else {
				st.Summary.TotalCredits = st.Summary.TotalCredits.Add(m.Value)
			}
		}
		if n := len(ms); n > 0 {
			as.ClosingBalance = ms[n-1].Balance
		}
		st.Summary.ClosingBalance = st.Summary.ClosingBalance.Add(as.ClosingBalance)
		st.Accounts = append(st.Accounts, as)
	}
	return st, nil
}
