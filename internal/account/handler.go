package account

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// BalanceReader returns the current ledger balance of an account.
type BalanceReader interface {
	Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error)
}

// Handler exposes account HTTP endpoints.
type Handler struct {
	service  *Service
	balances BalanceReader
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service, balances BalanceReader) *Handler {
	return &Handler{service: service, balances: balances}
}

type createRequest struct {
	Number         string          `json:"number"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	ClientID       string          `json:"clientId"`
	Active         *bool           `json:"active"`
}

type updateRequest struct {
	Type     *string `json:"type"`
	Active   *bool   `json:"active"`
	ClientID *string `json:"clientId"`
}

type accountResponse struct {
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Active         bool            `json:"active"`
	ClientID       string          `json:"clientId"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Number:         a.Number,
		Type:           a.Type,
		InitialBalance: a.InitialBalance,
		Active:         a.Active,
		ClientID:       a.ClientID,
		CreatedAt:      a.CreatedAt,
	}
}

// Create opens an account.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Create(c.UserContext(), CreateInput{
		Number:         req.Number,
		Type:           req.Type,
		InitialBalance: req.InitialBalance,
		ClientID:       req.ClientID,
		Active:         req.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(acct))
}

// Get returns one account by number.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(acct))
}

// List returns all accounts, filtered by ?clientId= when present.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext(), c.Query("clientId"))
	if err != nil {
		return err
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toResponse(a)
	}
	return c.JSON(out)
}

// Update changes mutable account fields.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Update(c.UserContext(), c.Params("number"), UpdateInput{
		Type:     req.Type,
		Active:   req.Active,
		ClientID: req.ClientID,
	})
	if err != nil {
		return err
	}
	return c.JSON(toResponse(acct))
}

// Delete removes an account without movements.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("number")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Balance returns the current ledger balance of the account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	number := c.Params("number")
	balance, err := h.balances.Balance(c.UserContext(), number)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"number":    number,
		"balance":   balance,
		"timestamp": time.Now().UTC(),
	})
}
