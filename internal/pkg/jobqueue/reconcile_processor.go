package jobqueue

import (
	"context"
	"fmt"

	"github.com/arsound/arsound/internal/pkg/billing"
)

// PaymentProcessor is the part of billing.Service the retry job needs.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, eventID uint, paymentID string) (billing.Outcome, error)
}

// ReconcileHandler re-runs reconciliation for a payment whose webhook
// delivery failed. Failures that need an operator are not retried.
func ReconcileHandler(p PaymentProcessor) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := ReconcilePaymentPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("%w: invalid reconcile payload: %v", ErrPermanent, err)
		}

		_, err = p.ProcessPayment(ctx, payload.EventID, payload.PaymentID)
		if err == nil {
			return nil
		}
		if !billing.IsRetryable(err) {
			return fmt.Errorf("%w: payment %s: %v", ErrPermanent, payload.PaymentID, err)
		}
		return err
	}
}
