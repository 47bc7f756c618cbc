package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minAge            = 18
	maxAge            = 120
	minPasswordLength = 4
)

// AccountCounter reports how many accounts a client owns.
type AccountCounter interface {
	CountByClient(ctx context.Context, clientID string) (int, error)
}

// Service manages the client lifecycle.
type Service struct {
	repo     Repository
	accounts AccountCounter
	now      func() time.Time
}

// NewService creates a new client service. accounts may be nil, in which case
// deletion is never blocked.
func NewService(repo Repository, accounts AccountCounter) *Service {
	return &Service{repo: repo, accounts: accounts, now: time.Now}
}

// Create validates and registers a client with a hashed password.
func (s *Service) Create(ctx context.Context, in CreateInput) (Client, error) {
	c := Client{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(in.Name),
		Gender:         strings.TrimSpace(in.Gender),
		Age:            in.Age,
		Identification: strings.TrimSpace(in.Identification),
		Address:        strings.TrimSpace(in.Address),
		Phone:          strings.TrimSpace(in.Phone),
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
	if c.Identification == "" {
		return Client{}, fmt.Errorf("%w: identification is required", ErrInvalidClient)
	}
	if err := validate(c); err != nil {
		return Client{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return Client{}, err
	}
	c.PasswordHash = hash

	if err := s.repo.Create(ctx, c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// Get retrieves a client by id.
func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	return s.repo.Get(ctx, id)
}

// List returns every client.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	return s.repo.List(ctx)
}

// Update applies the non-nil fields of in. Identification is immutable.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Client{}, err
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Gender != nil {
		c.Gender = strings.TrimSpace(*in.Gender)
	}
	if in.Age != nil {
		c.Age = *in.Age
	}
	if in.Address != nil {
		c.Address = strings.TrimSpace(*in.Address)
	}
	if in.Phone != nil {
		c.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Active != nil {
		c.Active = *in.Active
	}
	if err := validate(c); err != nil {
		return Client{}, err
	}
	if in.Password != nil {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return Client{}, err
		}
		c.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// Delete removes a client that owns no accounts.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if s.accounts != nil {
		n, err := s.accounts.CountByClient(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d account(s)", ErrClientHasAccounts, n)
		}
	}
	return s.repo.Delete(ctx, id)
}

// CheckPassword reports whether password matches the client's stored hash.
func (s *Service) CheckPassword(ctx context.Context, id, password string) (bool, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)) == nil, nil
}

func validate(c Client) error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	if c.Age < minAge || c.Age > maxAge {
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidClient, minAge, maxAge)
	}
	return nil
}

func hashPassword(password string) ([]byte, error) {
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidClient, minPasswordLength)
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
