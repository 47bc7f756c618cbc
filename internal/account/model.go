package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateAccount occurs when the account number is already taken.
	ErrDuplicateAccount = errors.New("account number already exists")

	// ErrAccountHasMovements blocks deleting an account that the ledger references.
	ErrAccountHasMovements = errors.New("account has movements")

	// ErrInvalidAccount wraps every field validation failure.
	ErrInvalidAccount = errors.New("invalid account data")
)

// Account is a balance-carrying account owned by a client.
type Account struct {
	ID     string
	Number string
	Type   string
	// InitialBalance is fixed at creation.
	InitialBalance decimal.Decimal
	Active         bool
	ClientID       string
	CreatedAt      time.Time
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	Number         string
	Type           string
	InitialBalance decimal.Decimal
	ClientID       string
	// Active defaults to true when nil.
	Active *bool
}

// UpdateInput lists the mutable account fields. Nil fields are left unchanged.
type UpdateInput struct {
	Type     *string
	Active   *bool
	ClientID *string
}
