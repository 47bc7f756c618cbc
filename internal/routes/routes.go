package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountledger/internal/account"
	"github.com/congo-pay/accountledger/internal/app"
	"github.com/congo-pay/accountledger/internal/client"
	"github.com/congo-pay/accountledger/internal/config"
	"github.com/congo-pay/accountledger/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Services *app.Services
}

// Setup configures middlewares and all application routes.
func Setup(a *fiber.App, d Deps) error {
	if d.Services == nil {
		return fmt.Errorf("routes: services are required")
	}
	// Redis presence outside dev is also enforced by config.
	if !d.Cfg.IsDevelopment() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	a.Use(recover.New())
	a.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	a.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	a.Use(middleware.Audit(d.Logger, StatusOf))
	if d.Cache != nil {
		a.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(a, d)

	api := a.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	svc := d.Services
	RegisterClientRoutes(api, client.NewHandler(svc.Clients))
	RegisterAccountRoutes(api, account.NewHandler(svc.Accounts, svc.Engine))
	RegisterMovementRoutes(api, svc.Engine)
	RegisterReportRoutes(api, svc.Statements)

	return nil
}
