// Package main provides the Grantflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/grantflow/grantflow/pkg/cmd"
	"github.com/grantflow/grantflow/pkg/schema"
	"github.com/grantflow/grantflow/pkg/web"
)

type API struct {
	logger     *slog.Logger
	components *cmd.Components
	validate   *validator.Validate
}

func NewAPI(logger *slog.Logger, components *cmd.Components) *API {
	return &API{
		logger:     logger,
		components: components,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() (*fiber.App, error) {
	schemaValidator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}

	handlers := web.NewAPIHandlers(
		a.components.Persistence,
		a.components.Engine,
		a.components.Tasks,
		a.components.Approvals,
		schemaValidator,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Grantflow API")
	})

	handlers.RegisterRoutes(app)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
