package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/jobqueue"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
)

const paymentTopic = "payment"

var errInvalidSignature = errors.New("invalid webhook signature")

// WebhookService is the part of billing.Service the webhook needs.
type WebhookService interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.PaymentEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome billing.Outcome, processingErr error) error
	ProcessPayment(ctx context.Context, eventID uint, paymentID string) (billing.Outcome, error)
}

// RetryEnqueuer schedules another reconciliation attempt.
type RetryEnqueuer interface {
	EnqueueReconcile(ctx context.Context, paymentID string, eventID uint) (*jobqueue.Job, error)
}

// WebhookController receives MercadoPago notifications.
type WebhookController struct {
	billing WebhookService
	retries RetryEnqueuer
	secret  string
}

// NewWebhookController creates the controller. An empty secret disables
// signature checks; retries may be nil.
func NewWebhookController(svc WebhookService, retries RetryEnqueuer, secret string) *WebhookController {
	return &WebhookController{billing: svc, retries: retries, secret: strings.TrimSpace(secret)}
}

// webhookBody covers both the current notification body and the legacy IPN one.
type webhookBody struct {
	mercadopago.Notification
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
}

type delivery struct {
	eventID   string
	topic     string
	paymentID string
	payload   string
}

// parseDelivery reads the notification from the JSON body, falling back to
// query parameters (type/data.id, or legacy topic/id).
func parseDelivery(c *fiber.Ctx) (delivery, error) {
	var d delivery
	raw := c.Body()

	if len(strings.TrimSpace(string(raw))) > 0 {
		var body webhookBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return d, err
		}
		d.payload = string(raw)
		d.eventID = body.ID.String()
		d.topic = firstNonEmpty(body.Type, body.Topic)
		d.paymentID = firstNonEmpty(body.Data.ID, lastPathSegment(body.Resource))
	} else {
		encoded, err := json.Marshal(c.Queries())
		if err != nil {
			return d, err
		}
		d.payload = string(encoded)
	}

	d.topic = strings.ToLower(strings.TrimSpace(firstNonEmpty(d.topic, c.Query("type"), c.Query("topic"))))
	d.paymentID = strings.TrimSpace(firstNonEmpty(d.paymentID, c.Query("data.id"), c.Query("id")))
	return d, nil
}

// HandleMercadoPago records the delivery, then reconciles it. Once the event
// is in the ledger the gateway always gets a 2xx, failures are retried from
// the queue.
func (wc *WebhookController) HandleMercadoPago(c *fiber.Ctx) error {
	ctx := c.UserContext()
	log := logger.Get()

	d, err := parseDelivery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_invalid_payload", "message": "Notificación inválida"})
	}

	signatureValid := false
	if wc.secret != "" {
		// the gateway signs the data.id query parameter
		dataID := firstNonEmpty(c.Query("data.id"), d.paymentID)
		signatureValid = mercadopago.VerifySignature(wc.secret, c.Get("x-signature"), c.Get("x-request-id"), dataID)
	}

	created, event, err := wc.billing.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.ProviderMercadoPago,
		ProviderEventID: d.eventID,
		PaymentID:       d.paymentID,
		EventType:       d.topic,
		PayloadJSON:     d.payload,
		SignatureValid:  signatureValid,
	})
	if err != nil {
		log.Error("failed to record webhook event", "payment_id", d.paymentID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "No se pudo registrar la notificación"})
	}

	if wc.secret != "" && !signatureValid {
		log.Warn("webhook signature rejected", "event_id", event.ID, "payment_id", d.paymentID)
		if err := wc.billing.MarkWebhookProcessed(ctx, event.ID, models.OutcomeRejected, errInvalidSignature); err != nil {
			log.Error("failed to mark webhook event", "event_id", event.ID, "error", err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "auth_invalid_signature", "message": "Firma inválida"})
	}

	if !created && event.ProcessedAt != nil && !event.Failed() {
		return c.JSON(fiber.Map{"status": "ok", "outcome": billing.OutcomeDuplicate})
	}

	if d.topic != paymentTopic || d.paymentID == "" {
		if err := wc.billing.MarkWebhookProcessed(ctx, event.ID, billing.OutcomeIgnored, nil); err != nil {
			log.Error("failed to mark webhook event", "event_id", event.ID, "error", err)
		}
		return c.JSON(fiber.Map{"status": "ok", "outcome": billing.OutcomeIgnored})
	}

	outcome, err := wc.billing.ProcessPayment(ctx, event.ID, d.paymentID)
	if err != nil {
		log.Error("payment reconciliation failed",
			"event_id", event.ID,
			"payment_id", d.paymentID,
			"retryable", billing.IsRetryable(err),
			"error", err)
		if billing.IsRetryable(err) && wc.retries != nil {
			if _, qerr := wc.retries.EnqueueReconcile(ctx, d.paymentID, event.ID); qerr != nil {
				log.Error("failed to enqueue reconcile retry", "payment_id", d.paymentID, "error", qerr)
			}
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}

	return c.JSON(fiber.Map{"status": "ok", "outcome": outcome})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func lastPathSegment(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
