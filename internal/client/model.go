package client

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateClient occurs when another client already holds the identification.
	ErrDuplicateClient = errors.New("client identification already registered")

	// ErrClientHasAccounts blocks deleting a client that still owns accounts.
	ErrClientHasAccounts = errors.New("client has accounts")

	// ErrInvalidClient wraps every field validation failure.
	ErrInvalidClient = errors.New("invalid client data")
)

// Client is an account holder.
type Client struct {
	ID             string
	Name           string
	Gender         string
	Age            int
	Identification string
	Address        string
	Phone          string
	PasswordHash   []byte
	Active         bool
	CreatedAt      time.Time
}

// CreateInput captures data required to register a client.
type CreateInput struct {
	Name           string
	Gender         string
	Age            int
	Identification string
	Address        string
	Phone          string
	Password       string
	// Active defaults to true when nil.
	Active *bool
}

// UpdateInput lists the mutable client fields. Nil fields are left unchanged.
type UpdateInput struct {
	Name     *string
	Gender   *string
	Age      *int
	Address  *string
	Phone    *string
	Password *string
	Active   *bool
}
