package rest

import (
	"context"

	bookingDomain "github.com/AzielCF/az-bookings/bookings/domain"
	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	pkgError "github.com/AzielCF/az-bookings/pkg/error"
	"github.com/AzielCF/az-bookings/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// BookingService is implemented by bookings/application.Service.
type BookingService interface {
	Save(ctx context.Context, id string, request bookingDomain.UpsertRequest) (*bookingDomain.Booking, error)
	Get(ctx context.Context, id string) (*bookingDomain.Booking, error)
	Delete(ctx context.Context, id string) error
	Reconcile(ctx context.Context, id string) (notifDomain.ReconcileResult, error)
	Notifications(ctx context.Context, id string) ([]notifDomain.ScheduledNotification, error)
}

type Bookings struct {
	Service BookingService
}

func InitRestBookings(app fiber.Router, service BookingService) Bookings {
	rest := Bookings{Service: service}
	app.Put("/bookings/:id", rest.Upsert)
	app.Get("/bookings/:id", rest.Get)
	app.Delete("/bookings/:id", rest.Delete)
	app.Post("/bookings/:id/reconcile", rest.Reconcile)
	app.Get("/bookings/:id/notifications", rest.Notifications)
	return rest
}

func (controller *Bookings) Upsert(c *fiber.Ctx) error {
	var request bookingDomain.UpsertRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid body: " + err.Error()))
	}

	booking, err := controller.Service.Save(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Booking saved",
		Results: booking,
	})
}

func (controller *Bookings) Get(c *fiber.Ctx) error {
	booking, err := controller.Service.Get(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch booking",
		Results: booking,
	})
}

func (controller *Bookings) Delete(c *fiber.Ctx) error {
	err := controller.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Booking deleted",
	})
}

func (controller *Bookings) Reconcile(c *fiber.Ctx) error {
	result, err := controller.Service.Reconcile(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Booking reconciled",
		Results: result,
	})
}

func (controller *Bookings) Notifications(c *fiber.Ctx) error {
	rows, err := controller.Service.Notifications(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch notifications",
		Results: rows,
	})
}
