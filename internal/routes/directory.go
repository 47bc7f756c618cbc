package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountledger/internal/account"
	"github.com/congo-pay/accountledger/internal/client"
)

// RegisterClientRoutes wires client endpoints.
func RegisterClientRoutes(r fiber.Router, h *client.Handler) {
	r.Post("/clients", h.Create)
	r.Get("/clients", h.List)
	r.Get("/clients/:id", h.Get)
	r.Put("/clients/:id", h.Update)
	r.Delete("/clients/:id", h.Delete)
}

// RegisterAccountRoutes wires account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/:number", h.Get)
	r.Put("/accounts/:number", h.Update)
	r.Delete("/accounts/:number", h.Delete)
	r.Get("/accounts/:number/balance", h.Balance)
}
