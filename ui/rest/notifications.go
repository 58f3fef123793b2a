package rest

import (
	"context"
	"errors"
	"time"

	notifApp "github.com/AzielCF/az-bookings/notifications/application"
	"github.com/AzielCF/az-bookings/notifications/domain"
	pkgError "github.com/AzielCF/az-bookings/pkg/error"
	"github.com/AzielCF/az-bookings/pkg/utils"
	"github.com/AzielCF/az-bookings/validations"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// BatchRunner is the processor surface served over HTTP.
type BatchRunner interface {
	RunDueBatch(ctx context.Context, now, deadline time.Time) (domain.BatchResult, error)
	Stats(ctx context.Context, now time.Time) (notifApp.EngineStats, error)
}

type Notifications struct {
	Runner          BatchRunner
	DefaultDeadline time.Duration
	Clock           func() time.Time
}

func InitRestNotifications(app fiber.Router, runner BatchRunner, defaultDeadline time.Duration) Notifications {
	rest := Notifications{Runner: runner, DefaultDeadline: defaultDeadline, Clock: time.Now}
	app.Post("/notifications/run", rest.Run)
	app.Get("/notifications/stats", rest.Stats)
	return rest
}

// Run processes the due batch. deadline_seconds bounds the wall-clock budget.
func (controller *Notifications) Run(c *fiber.Ctx) error {
	deadlineSeconds := c.QueryInt("deadline_seconds", int(controller.DefaultDeadline/time.Second))
	utils.PanicIfNeeded(validations.ValidateRunDeadline(c.UserContext(), deadlineSeconds))

	now := controller.Clock()
	deadline := now.Add(time.Duration(deadlineSeconds) * time.Second)

	result, err := controller.Runner.RunDueBatch(c.UserContext(), now, deadline)
	if errors.Is(err, domain.ErrBatchInProgress) {
		utils.PanicIfNeeded(pkgError.ConflictError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	logrus.WithFields(logrus.Fields{
		"processed":  result.Processed,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
		"remaining":  result.Remaining,
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	}).Info("[REST] Due batch run finished")

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Due batch processed",
		Results: result,
	})
}

func (controller *Notifications) Stats(c *fiber.Ctx) error {
	stats, err := controller.Runner.Stats(c.UserContext(), controller.Clock())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Notification engine stats",
		Results: stats,
	})
}
