package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountledger/internal/account"
	"github.com/congo-pay/accountledger/internal/client"
	"github.com/congo-pay/accountledger/internal/ledger"
	"github.com/congo-pay/accountledger/internal/middleware"
	"github.com/congo-pay/accountledger/internal/statement"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first mapping matched with errors.Is wins.
var errorMappings = []errorMapping{
	{ledger.ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
	{ledger.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
	{ledger.ErrClientNotFound, http.StatusNotFound, "CLIENT_NOT_FOUND"},
	{ledger.ErrInvalidMovement, http.StatusBadRequest, "INVALID_MOVEMENT"},
	{ledger.ErrAccountInactive, http.StatusBadRequest, "ACCOUNT_INACTIVE"},
	{ledger.ErrWriteConflict, http.StatusConflict, "WRITE_CONFLICT"},
	{ledger.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ledger.ErrMovementHasDependents, http.StatusConflict, "MOVEMENT_HAS_DEPENDENTS"},
	{account.ErrDuplicateAccount, http.StatusConflict, "DUPLICATE_ACCOUNT"},
	{account.ErrAccountHasMovements, http.StatusConflict, "ACCOUNT_HAS_MOVEMENTS"},
	{account.ErrInvalidAccount, http.StatusBadRequest, "INVALID_DATA"},
	{client.ErrDuplicateClient, http.StatusConflict, "DUPLICATE_CLIENT"},
	{client.ErrClientHasAccounts, http.StatusConflict, "CLIENT_HAS_ACCOUNTS"},
	{client.ErrInvalidClient, http.StatusBadRequest, "INVALID_DATA"},
	{statement.ErrInvalidRange, http.StatusBadRequest, "INVALID_DATA"},
}

// resolve returns the HTTP status and error code for err.
func resolve(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case http.StatusBadRequest:
			return fe.Code, "INVALID_DATA"
		case http.StatusNotFound:
			return fe.Code, "NOT_FOUND"
		case http.StatusConflict:
			return fe.Code, "CONFLICT"
		default:
			return fe.Code, "ERROR"
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// StatusOf returns the HTTP status ErrorHandler writes for err.
func StatusOf(err error) int {
	status, _ := resolve(err)
	return status
}

// ErrorHandler renders every handler error as a JSON body carrying the
// status, its reason phrase, the message and a stable error code. Internal
// errors are logged and their message is not exposed.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code := resolve(err)
		message := err.Error()
		if status >= http.StatusInternalServerError && code == "INTERNAL_ERROR" {
			logger.Error("unhandled error",
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.Any("error", err))
			message = "internal server error"
		}

		body := fiber.Map{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"status":    status,
			"error":     http.StatusText(status),
			"message":   message,
			"code":      code,
		}
		if id := middleware.GetRequestID(c); id != "" {
			body["request_id"] = id
		}
		return c.Status(status).JSON(body)
	}
}
