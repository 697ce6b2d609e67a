package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// Service ties the webhook ledger to the reconciler.
type Service struct {
	repo       Repository
	reconciler *Reconciler
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, reconciler *Reconciler) *Service {
	return &Service{repo: repo, reconciler: reconciler}
}

// RecordWebhookEvent persists webhook payloads idempotently. created is false
// when the same provider event id was already stored.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		PaymentID:       strings.TrimSpace(in.PaymentID),
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed stores the outcome and an optional error on an event.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome Outcome, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, string(outcome), errMsg)
}

// ProcessPayment reconciles a payment and, when eventID is set, records the
// result on the ledger entry.
func (s *Service) ProcessPayment(ctx context.Context, eventID uint, paymentID string) (Outcome, error) {
	outcome, err := s.reconciler.Reconcile(ctx, paymentID)
	if eventID != 0 {
		if markErr := s.MarkWebhookProcessed(ctx, eventID, outcome, err); markErr != nil && err == nil {
			return outcome, markErr
		}
	}
	return outcome, err
}

// CurrentPlan returns the plan a user is entitled to now and the active row,
// which is nil on the free plan.
func (s *Service) CurrentPlan(ctx context.Context, userID string) (plans.Plan, *models.UserPlan, error) {
	row, err := s.repo.GetActivePlan(ctx, userID)
	if err != nil {
		return plans.PlanFree, nil, err
	}
	p := effectivePlan(row, time.Now())
	if p == plans.PlanFree {
		return p, nil, nil
	}
	return p, row, nil
}

func (s *Service) GetEvent(ctx context.Context, id uint) (*models.PaymentEvent, error) {
	return s.repo.GetPaymentEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context, failedOnly bool, limit int) ([]models.PaymentEvent, error) {
	return s.repo.ListPaymentEvents(ctx, failedOnly, limit)
}

// IsRetryable reports whether a failed reconciliation may succeed later.
// Unresolvable intents and invalid input need an operator, everything else
// (gateway outages, a payment the gateway does not show yet, database
// errors) is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if mercadopago.IsTransient(err) {
		return true
	}
	appErr, ok := apperr.As(err)
	if !ok {
		return true
	}
	return appErr.Code == apperr.CodeNotFound
}
