package rest

import (
	"context"

	"github.com/AzielCF/az-bookings/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type Health struct {
	Checks map[string]HealthCheck
}

func InitRestHealth(app fiber.Router, checks map[string]HealthCheck) Health {
	handler := Health{Checks: checks}
	app.Get("/health/status", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	records := make(map[string]string, len(h.Checks))
	healthy := true
	for name, check := range h.Checks {
		if err := check(c.UserContext()); err != nil {
			records[name] = err.Error()
			healthy = false
			continue
		}
		records[name] = "ok"
	}

	if !healthy {
		return c.Status(503).JSON(utils.ResponseData{
			Status:  503,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "One or more dependencies are unhealthy",
			Results: records,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}
