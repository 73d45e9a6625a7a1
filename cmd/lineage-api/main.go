package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "weather-etl/internal/api/http"
	"weather-etl/internal/config"
	"weather-etl/internal/lineage"
	"weather-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := store.Open(cfg.StagingDB)
	if err != nil {
		log.Fatalf("failed to open staging db: %v", err)
	}
	defer db.Close()
	if err := store.InitStaging(db); err != nil {
		log.Fatalf("failed to init staging schema: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "weather-etl-lineage",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-etl-lineage",
		})
	})
	httpapi.RegisterRoutes(app, lineage.New(db), db)

	go func() {
		if err := app.Listen(cfg.APIAddr); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("lineage api listening on %s", cfg.APIAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
