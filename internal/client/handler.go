package client

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes client HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a client HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	Age            int    `json:"age"`
	Identification string `json:"identification"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Password       string `json:"password"`
	Active         *bool  `json:"active"`
}

type updateRequest struct {
	Name     *string `json:"name"`
	Gender   *string `json:"gender"`
	Age      *int    `json:"age"`
	Address  *string `json:"address"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
	Active   *bool   `json:"active"`
}

type clientResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Gender         string    `json:"gender"`
	Age            int       `json:"age"`
	Identification string    `json:"identification"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toResponse(c Client) clientResponse {
	return clientResponse{
		ID:             c.ID,
		Name:           c.Name,
		Gender:         c.Gender,
		Age:            c.Age,
		Identification: c.Identification,
		Address:        c.Address,
		Phone:          c.Phone,
		Active:         c.Active,
		CreatedAt:      c.CreatedAt,
	}
}

// Create registers a client.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	client, err := h.service.Create(c.UserContext(), CreateInput{
		Name:           req.Name,
		Gender:         req.Gender,
		Age:            req.Age,
		Identification: req.Identification,
		Address:        req.Address,
		Phone:          req.Phone,
		Password:       req.Password,
		Active:         req.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(client))
}

// Get returns a single client.
func (h *Handler) Get(c *fiber.Ctx) error {
	client, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(client))
}

// List returns all clients.
func (h *Handler) List(c *fiber.Ctx) error {
	clients, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]clientResponse, len(clients))
	for i, client := range clients {
		out[i] = toResponse(client)
	}
	return c.JSON(out)
}

// Update changes mutable client fields.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	client, err := h.service.Update(c.UserContext(), c.Params("id"), UpdateInput{
		Name:     req.Name,
		Gender:   req.Gender,
		Age:      req.Age,
		Address:  req.Address,
		Phone:    req.Phone,
		Password: req.Password,
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(toResponse(client))
}

// Delete removes a client without accounts.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
