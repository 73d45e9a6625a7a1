// Package httpapi serves lineage and run records over HTTP for operators.
package httpapi

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"weather-etl/internal/lineage"
	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

// RegisterRoutes wires the lineage handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, tracker *lineage.Tracker, db *sql.DB) {
	v1 := app.Group("/api/v1")

	v1.Get("/batches", func(c *fiber.Ctx) error {
		status, err := parseStatus(c.Query("status"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		limit := c.QueryInt("limit", 50)

		batches, err := tracker.List(status, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list batches")
		}
		return c.JSON(fiber.Map{
			"count":   len(batches),
			"batches": batches,
		})
	})

	v1.Get("/batches/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "batch id must be an integer")
		}

		batch, err := tracker.Get(id)
		if errors.Is(err, sql.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "batch not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch batch")
		}
		return c.JSON(batch)
	})

	v1.Get("/runs", func(c *fiber.Ctx) error {
		runs, err := store.ListRuns(db, c.QueryInt("limit", 50))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list runs")
		}
		return c.JSON(fiber.Map{
			"count": len(runs),
			"runs":  runs,
		})
	})
}

// parseStatus validates the optional status filter against the batch states.
func parseStatus(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	status := strings.ToUpper(s)
	switch status {
	case model.StatusRunning, model.StatusSuccess, model.StatusFailed:
		return status, nil
	}
	return "", errors.New("status must be one of RUNNING, SUCCESS, FAILED")
}
