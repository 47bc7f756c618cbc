package routes

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountledger/internal/statement"
)

// RegisterReportRoutes wires the client statement endpoint. format=pdf
// returns the rendered document base64 encoded inside a JSON envelope.
func RegisterReportRoutes(r fiber.Router, builder *statement.Builder) {
	r.Get("/reports", func(c *fiber.Ctx) error {
		clientID := strings.TrimSpace(c.Query("clientId"))
		if clientID == "" {
			return fiber.NewError(http.StatusBadRequest, "clientId is required")
		}
		from, err := parseDateParam("from", c.Query("from"))
		if err != nil {
			return err
		}
		to, err := parseDateParam("to", c.Query("to"))
		if err != nil {
			return err
		}

		format := strings.ToLower(c.Query("format", "json"))
		if format != "json" && format != "pdf" {
			return fiber.NewError(http.StatusBadRequest, "format must be json or pdf")
		}

		st, err := builder.Build(c.UserContext(), clientID, from, to)
		if err != nil {
			return err
		}
		if format == "json" {
			return c.JSON(st)
		}

		doc, err := statement.RenderPDF(st)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"format":  "pdf",
			"content": base64.StdEncoding.EncodeToString(doc),
		})
	})
}
