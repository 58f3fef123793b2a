package mcp

import (
	"context"
	"fmt"
	"time"

	notifDomain "github.com/AzielCF/az-bookings/notifications/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// BatchRunner runs the due batch.
type BatchRunner interface {
	RunDueBatch(ctx context.Context, now, deadline time.Time) (notifDomain.BatchResult, error)
}

// BookingNotifications is the booking surface the tools need.
type BookingNotifications interface {
	Reconcile(ctx context.Context, id string) (notifDomain.ReconcileResult, error)
	Notifications(ctx context.Context, id string) ([]notifDomain.ScheduledNotification, error)
}

type NotificationsHandler struct {
	runner          BatchRunner
	bookings        BookingNotifications
	defaultDeadline time.Duration
	clock           func() time.Time
}

func InitMcpNotifications(runner BatchRunner, bookings BookingNotifications, defaultDeadline time.Duration) *NotificationsHandler {
	return &NotificationsHandler{
		runner:          runner,
		bookings:        bookings,
		defaultDeadline: defaultDeadline,
		clock:           time.Now,
	}
}

func (h *NotificationsHandler) AddNotificationTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolRunDueBatch(), h.handleRunDueBatch)
	mcpServer.AddTool(h.toolReconcileBooking(), h.handleReconcileBooking)
	mcpServer.AddTool(h.toolListForBooking(), h.handleListForBooking)
}

func (h *NotificationsHandler) toolRunDueBatch() mcp.Tool {
	return mcp.NewTool(
		"notifications_run_due_batch",
		mcp.WithDescription("Send every booking notification that is due now, within a wall-clock budget. Returns processed, skipped, failed and remaining counts."),
		mcp.WithTitleAnnotation("Run Due Notifications"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithNumber("deadline_seconds",
			mcp.Description("Wall-clock budget in seconds. Defaults to the configured deadline."),
		),
	)
}

func (h *NotificationsHandler) handleRunDueBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seconds := request.GetInt("deadline_seconds", int(h.defaultDeadline/time.Second))
	if seconds <= 0 {
		return nil, fmt.Errorf("deadline_seconds must be positive")
	}

	now := h.clock()
	result, err := h.runner.RunDueBatch(ctx, now, now.Add(time.Duration(seconds)*time.Second))
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Processed %d, skipped %d, failed %d, remaining %d",
		result.Processed, result.Skipped, result.Failed, result.Remaining)
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *NotificationsHandler) toolReconcileBooking() mcp.Tool {
	return mcp.NewTool(
		"notifications_reconcile_booking",
		mcp.WithDescription("Schedule any notification the booking is missing given its current state. Existing notifications are never changed."),
		mcp.WithTitleAnnotation("Reconcile Booking Notifications"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("booking_id",
			mcp.Description("The booking id."),
			mcp.Required(),
		),
	)
}

func (h *NotificationsHandler) handleReconcileBooking(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookingID, err := request.RequireString("booking_id")
	if err != nil {
		return nil, err
	}

	result, err := h.bookings.Reconcile(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Scheduled %d new notifications for booking %s (%d already existed)",
		len(result.Inserted), bookingID, result.Existing)
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *NotificationsHandler) toolListForBooking() mcp.Tool {
	return mcp.NewTool(
		"notifications_list_for_booking",
		mcp.WithDescription("List the scheduled notifications of a booking with their due time and sent state."),
		mcp.WithTitleAnnotation("List Booking Notifications"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("booking_id",
			mcp.Description("The booking id."),
			mcp.Required(),
		),
	)
}

func (h *NotificationsHandler) handleListForBooking(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookingID, err := request.RequireString("booking_id")
	if err != nil {
		return nil, err
	}

	rows, err := h.bookings.Notifications(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Found %d notifications for booking %s", len(rows), bookingID)
	return mcp.NewToolResultStructured(map[string]any{"notifications": rows}, fallback), nil
}
