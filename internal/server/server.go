package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountledger/internal/app"
	"github.com/congo-pay/accountledger/internal/config"
	"github.com/congo-pay/accountledger/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, backends *app.Backends, services *app.Services, logger *slog.Logger) (*Server, error) {
	fa := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: routes.ErrorHandler(logger),
	})

	err := routes.Setup(fa, routes.Deps{
		Cfg:      cfg,
		DB:       backends.DB,
		Cache:    backends.Cache,
		Logger:   logger,
		Services: services,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: fa, cfg: cfg}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
