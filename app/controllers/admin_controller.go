package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/usercontext"
)

// EventLedger is the operator view of the webhook ledger.
type EventLedger interface {
	GetEvent(ctx context.Context, id uint) (*models.PaymentEvent, error)
	ListEvents(ctx context.Context, failedOnly bool, limit int) ([]models.PaymentEvent, error)
	ProcessPayment(ctx context.Context, eventID uint, paymentID string) (billing.Outcome, error)
}

// AdminController handles operator endpoints for payment reconciliation.
type AdminController struct {
	ledger EventLedger
}

// NewAdminController creates a new admin controller with the ledger dependency
func NewAdminController(ledger EventLedger) *AdminController {
	return &AdminController{ledger: ledger}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).IsAdmin {
		return apperr.Forbidden("Solo administradores")
	}
	return c.Next()
}

// HandleListEvents lists ledger entries, newest first. ?failed=true keeps
// only entries whose last attempt failed.
func (ac *AdminController) HandleListEvents(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	events, err := ac.ledger.ListEvents(c.UserContext(), c.QueryBool("failed", false), limit)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// HandleReprocessEvent re-runs reconciliation for a ledger entry.
func (ac *AdminController) HandleReprocessEvent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return apperr.NotFound("El evento no existe")
	}
	event, err := ac.ledger.GetEvent(c.UserContext(), uint(id))
	if err != nil {
		return notFoundOr(err, "El evento no existe")
	}
	if event.PaymentID == "" {
		return apperr.Validation("El evento no tiene un pago asociado")
	}

	outcome, err := ac.ledger.ProcessPayment(c.UserContext(), event.ID, event.PaymentID)
	if err != nil {
		logger.Get().Warn("manual reconciliation failed",
			"event_id", event.ID,
			"payment_id", event.PaymentID,
			"admin_id", usercontext.GetUserID(c),
			"error", err)
		return err
	}
	logger.Get().Info("manual reconciliation", "event_id", event.ID, "payment_id", event.PaymentID, "outcome", outcome)
	return c.JSON(fiber.Map{"event_id": event.ID, "payment_id": event.PaymentID, "outcome": outcome})
}
