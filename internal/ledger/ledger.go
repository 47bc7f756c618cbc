package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound occurs when an account number does not resolve in the account directory.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInactive indicates the account is disabled and rejects all new movements.
	ErrAccountInactive = errors.New("account inactive")

	// ErrInvalidMovement is returned for malformed movements (zero value, back-dated entries).
	ErrInvalidMovement = errors.New("invalid movement")

	// ErrInsufficientFunds occurs when a debit would drive the account balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrClientNotFound occurs when a client id does not resolve in the client directory.
	ErrClientNotFound = errors.New("client not found")

	// ErrWriteConflict signals that an account head changed between read and commit.
	// It is transient and safe to retry.
	ErrWriteConflict = errors.New("write conflict")

	// ErrNotFound is returned when a movement id does not exist.
	ErrNotFound = errors.New("movement not found")

	// ErrMovementHasDependents is returned when deleting a movement that later movements chain from.
	ErrMovementHasDependents = errors.New("movement has dependent movements")
)

// InsufficientFundsError carries the balance a debit was checked against.
type InsufficientFundsError struct {
	AccountNumber string
	Prior         decimal.Decimal
	Attempted     decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: balance %s, attempted debit %s",
		e.AccountNumber, e.Prior.StringFixed(2), e.Attempted.StringFixed(2))
}

// Is lets errors.Is(err, ErrInsufficientFunds) match the typed error.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Movement is a single signed balance change on one account.
type Movement struct {
	ID            string
	AccountNumber string
	// Seq is the per-account insertion sequence; it breaks ties between movements sharing a date.
	Seq       int64
	Date      time.Time
	Type      string
	Value     decimal.Decimal
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// IsDebit reports whether the movement reduces the balance.
func (m Movement) IsDebit() bool {
	return m.Value.IsNegative()
}

// Head is the version token of an account's chain together with its most recent movement.
// Stores reject writes made against a stale head with ErrWriteConflict.
type Head struct {
	AccountNumber string
	Version       int64
	Last          *Movement
}

// Query selects stored movements. Empty AccountNumbers means every account;
// zero From/To leave that side of the date range open. Bounds are inclusive.
type Query struct {
	AccountNumbers []string
	From           time.Time
	To             time.Time
}

// Revision replaces the stored movement Before with After. Both share an ID;
// Before locates the record as it is currently stored.
type Revision struct {
	Before Movement
	After  Movement
}

// Store is the durable movement record consumed by the engine.
//
// All list results are ordered newest date first, ties broken by the latest
// insertion first.
type Store interface {
	Head(ctx context.Context, accountNumber string) (Head, error)
	// Append stores m as the next movement after expected. The store assigns m.Seq.
	Append(ctx context.Context, m Movement, expected Head) (Movement, error)
	// Rewrite replaces existing movements (matched by ID) after checking every expected head.
	Rewrite(ctx context.Context, expected []Head, revisions []Revision) error
	Remove(ctx context.Context, m Movement, expected Head) error
	Get(ctx context.Context, id string) (Movement, error)
	Find(ctx context.Context, q Query) ([]Movement, error)
}

// Account is the ledger's view of an account directory record.
type Account struct {
	ID             string
	Number         string
	Type           string
	InitialBalance decimal.Decimal
	Active         bool
	ClientID       string
}

// Client is the ledger's view of a client directory record.
type Client struct {
	ID   string
	Name string
}

// AccountDirectory resolves accounts. ByNumber returns ErrAccountNotFound for unknown numbers.
type AccountDirectory interface {
	ByNumber(ctx context.Context, number string) (Account, error)
	ByClient(ctx context.Context, clientID string) ([]Account, error)
}

// ClientDirectory resolves clients. ByID returns ErrClientNotFound for unknown ids.
type ClientDirectory interface {
	ByID(ctx context.Context, id string) (Client, error)
}

// EventKind names a ledger event.
type EventKind string

const (
	EventMovementRecorded  EventKind = "movement.recorded"
	EventMovementCorrected EventKind = "movement.corrected"
	EventMovementDeleted   EventKind = "movement.deleted"
	EventAccountRechained  EventKind = "account.rechained"
)

// Event is emitted after a ledger write commits.
type Event struct {
	Kind     EventKind
	Movement Movement
	// StaleFollowers counts later movements whose stored balance no longer chains.
	StaleFollowers int
	OccurredAt     time.Time
}

// Publisher delivers ledger events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
