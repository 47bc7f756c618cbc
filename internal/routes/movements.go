package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

type movementRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Value         decimal.Decimal `json:"value"`
}

type correctionRequest struct {
	AccountNumber *string          `json:"accountNumber"`
	Type          *string          `json:"type"`
	Value         *decimal.Decimal `json:"value"`
}

type movementContext struct {
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Active         bool            `json:"active"`
	ClientID       string          `json:"clientId"`
	ClientName     string          `json:"clientName,omitempty"`
}

type movementResponse struct {
	ID            string           `json:"id"`
	AccountNumber string           `json:"accountNumber"`
	Date          string           `json:"date"`
	Type          string           `json:"type"`
	Value         decimal.Decimal  `json:"value"`
	Balance       decimal.Decimal  `json:"balance"`
	CreatedAt     time.Time        `json:"createdAt"`
	Account       *movementContext `json:"account,omitempty"`
}

type chainResponse struct {
	AccountNumber  string          `json:"accountNumber"`
	Checked        int             `json:"checked"`
	Stale          []string        `json:"stale"`
	FirstNegative  string          `json:"firstNegative,omitempty"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	Consistent     bool            `json:"consistent"`
}

func toMovementResponse(m ledger.Movement, mc *ledger.MovementContext) movementResponse {
	out := movementResponse{
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		Date:          ledger.FormatDate(m.Date),
		Type:          m.Type,
		Value:         m.Value,
		Balance:       m.Balance,
		CreatedAt:     m.CreatedAt,
	}
	if mc != nil {
		out.Account = &movementContext{
			Type:           mc.AccountType,
			InitialBalance: mc.InitialBalance,
			Active:         mc.AccountActive,
			ClientID:       mc.ClientID,
			ClientName:     mc.ClientName,
		}
	}
	return out
}

func toChainResponse(r ledger.ChainReport) chainResponse {
	stale := make([]string, len(r.Stale))
	for i, m := range r.Stale {
		stale[i] = m.ID
	}
	return chainResponse{
		AccountNumber:  r.AccountNumber,
		Checked:        r.Checked,
		Stale:          stale,
		FirstNegative:  r.FirstNegative,
		ClosingBalance: r.Closing,
		Consistent:     r.Consistent(),
	}
}

// parseDateParam parses an optional YYYY-MM-DD value.
func parseDateParam(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := ledger.ParseDate(v)
	if err != nil {
		return time.Time{}, fiber.NewError(http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
	}
	return d, nil
}

// RegisterMovementRoutes wires movement endpoints and the chain maintenance
// endpoints of accounts.
func RegisterMovementRoutes(r fiber.Router, engine *ledger.Engine) {
	r.Post("/movements", func(c *fiber.Ctx) error {
		var req movementRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		date, err := parseDateParam("date", req.Date)
		if err != nil {
			return err
		}
		m, err := engine.RecordMovement(c.UserContext(), ledger.MovementInput{
			AccountNumber: strings.TrimSpace(req.AccountNumber),
			Date:          date,
			Type:          strings.TrimSpace(req.Type),
			Value:         req.Value,
		})
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(toMovementResponse(m, nil))
	})

	r.Get("/movements", func(c *fiber.Ctx) error {
		from, err := parseDateParam("from", c.Query("from"))
		if err != nil {
			return err
		}
		to, err := parseDateParam("to", c.Query("to"))
		if err != nil {
			return err
		}
		views, err := engine.ListMovements(c.UserContext(), ledger.Filter{
			AccountNumber: c.Query("account"),
			ClientID:      c.Query("clientId"),
			From:          from,
			To:            to,
		})
		if err != nil {
			return err
		}
		out := make([]movementResponse, len(views))
		for i, v := range views {
			out[i] = toMovementResponse(v.Movement, v.Context)
		}
		return c.JSON(out)
	})

	r.Get("/movements/:id", func(c *fiber.Ctx) error {
		v, err := engine.GetMovement(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(toMovementResponse(v.Movement, v.Context))
	})

	r.Put("/movements/:id", func(c *fiber.Ctx) error {
		var req correctionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		res, err := engine.CorrectMovement(c.UserContext(), c.Params("id"), ledger.Correction{
			AccountNumber: req.AccountNumber,
			Type:          req.Type,
			Value:         req.Value,
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"movement":       toMovementResponse(res.Movement, nil),
			"staleFollowers": res.StaleFollowers,
		})
	})

	r.Delete("/movements/:id", func(c *fiber.Ctx) error {
		if err := engine.DeleteMovement(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	})

	r.Get("/accounts/:number/verify", func(c *fiber.Ctx) error {
		report, err := engine.Verify(c.UserContext(), c.Params("number"))
		if err != nil {
			return err
		}
		return c.JSON(toChainResponse(report))
	})

	r.Post("/accounts/:number/rechain", func(c *fiber.Ctx) error {
		report, err := engine.Rechain(c.UserContext(), c.Params("number"))
		if err != nil {
			return err
		}
		return c.JSON(toChainResponse(report))
	})
}
