package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/arsound/arsound/internal/pkg/shortener"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// PaymentFetcher loads the authoritative payment record from the gateway.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
}

// Reconciler turns approved gateway payments into purchases and plan
// activations. It is safe to call repeatedly with the same payment id.
type Reconciler struct {
	repo       Repository
	gateway    PaymentFetcher
	plans      *plans.Registry
	downgrades *DowngradeHandler
	group      singleflight.Group
	now        func() time.Time
	codeFn     func() (string, error)
}

func NewReconciler(repo Repository, gateway PaymentFetcher, registry *plans.Registry) *Reconciler {
	return &Reconciler{
		repo:       repo,
		gateway:    gateway,
		plans:      registry,
		downgrades: NewDowngradeHandler(registry),
		now:        time.Now,
		codeFn:     shortener.PurchaseCode,
	}
}

// Reconcile fetches the payment and applies it. Concurrent calls for the same
// payment id in this process share one execution; across processes the unique
// payment id columns decide.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) (Outcome, error) {
	// the shared call must outlive the caller that started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(paymentID, func() (any, error) {
		return r.reconcile(shared, paymentID)
	})
	if err != nil {
		return "", err
	}
	return v.(Outcome), nil
}

func (r *Reconciler) reconcile(ctx context.Context, paymentID string) (Outcome, error) {
	log := logger.Get().With(slog.String("payment_id", paymentID))

	payment, err := r.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if mercadopago.IsNotFound(err) {
			return "", apperr.Wrap(apperr.CodeNotFound, "payment not found at gateway", err)
		}
		return "", fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	if !payment.Approved() {
		log.InfoContext(ctx, "payment not approved, ignoring", slog.String("status", payment.Status))
		return OutcomeIgnored, nil
	}

	intent, stage, err := ResolveIntent(payment)
	if err != nil {
		log.ErrorContext(ctx, "unresolvable payment intent",
			slog.String("external_reference", payment.ExternalReference),
			slog.String("stage", stage),
			slog.Any("error", err))
		return "", apperr.UnresolvableIntent(paymentID, err)
	}
	log = log.With(slog.String("intent", string(intent.Kind)), slog.String("stage", stage))

	var outcome Outcome
	switch intent.Kind {
	case IntentPack:
		outcome, err = r.applyPack(ctx, payment, intent)
	case IntentPlan:
		outcome, err = r.applyPlan(ctx, payment, intent)
	}
	if err != nil {
		log.ErrorContext(ctx, "reconciliation failed",
			slog.String("external_reference", payment.ExternalReference),
			slog.Any("error", err))
		return "", err
	}
	log.InfoContext(ctx, "payment reconciled", slog.String("outcome", string(outcome)))
	return outcome, nil
}

func (r *Reconciler) applyPack(ctx context.Context, payment *mercadopago.Payment, intent Intent) (Outcome, error) {
	paymentID := payment.IDString()

	if _, err := r.repo.GetPurchaseByPaymentID(ctx, paymentID); err == nil {
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	pack, err := r.repo.GetPackUnscoped(ctx, intent.PackID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.UnresolvableIntent(paymentID, fmt.Errorf("pack %s does not exist", intent.PackID))
	}
	if err != nil {
		return "", err
	}

	breakdown, err := r.packBreakdown(ctx, payment, pack)
	if err != nil {
		return "", err
	}

	code, err := r.codeFn()
	if err != nil {
		return "", err
	}

	purchase := &models.Purchase{
		BuyerID:            intent.ActorID,
		SellerID:           pack.OwnerID,
		PackID:             pack.ID,
		AmountPaid:         breakdown.FinalPrice,
		BaseAmount:         breakdown.BaseAmount,
		DiscountAmount:     breakdown.DiscountAmount,
		PlatformCommission: breakdown.Commission,
		SellerEarnings:     breakdown.SellerEarnings,
		GatewayPaymentID:   paymentID,
		Status:             models.PurchaseStatusCompleted,
		PurchaseCode:       code,
	}
	if id, ok := metadataInt(payment.Metadata, "discount_code_id"); ok && id > 0 {
		// the seller may have deleted the code after checkout
		exists, err := r.repo.DiscountCodeForPack(ctx, uint(id), pack.ID)
		if err != nil {
			return "", err
		}
		if exists {
			codeID := uint(id)
			purchase.DiscountCodeID = &codeID
		} else {
			logger.Get().WarnContext(ctx, "discount code no longer exists, recording purchase without it",
				slog.String("payment_id", paymentID),
				slog.Int64("discount_code_id", id))
		}
	}

	outcome := OutcomePurchased
	err = r.repo.Transaction(ctx, func(tx Repository) error {
		created, err := tx.CreatePurchaseIfNotExists(ctx, purchase)
		if err != nil {
			return err
		}
		if !created {
			outcome = OutcomeDuplicate
			return nil
		}
		if err := tx.CreateDownload(ctx, &models.Download{
			UserID:     purchase.BuyerID,
			PackID:     purchase.PackID,
			PurchaseID: &purchase.ID,
		}); err != nil {
			return err
		}
		return tx.IncrementDownloadCount(ctx, purchase.PackID)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// packBreakdown trusts the checkout metadata when it is complete, adds up and
// matches the amount paid. Otherwise it recomputes from the amount actually
// paid, the pack's base price and the seller's current plan.
func (r *Reconciler) packBreakdown(ctx context.Context, payment *mercadopago.Payment, pack *models.Pack) (Breakdown, error) {
	paid := mercadopago.MajorToMinor(payment.TransactionAmount)
	if b, ok := BreakdownFromMetadata(payment.Metadata); ok && (paid <= 0 || paid == b.FinalPrice) {
		return b, nil
	}

	sellerPlan, err := CurrentPlan(ctx, r.repo, pack.OwnerID, r.now())
	if err != nil {
		return Breakdown{}, err
	}
	limits := r.plans.Limits(string(sellerPlan))

	final := paid
	if final <= 0 {
		final = pack.ListPrice()
	}
	if final != pack.ListPrice() {
		logger.Get().WarnContext(ctx, "pack payment differs from list price",
			slog.String("payment_id", payment.IDString()),
			slog.String("pack_id", pack.ID),
			slog.Int64("paid", final),
			slog.Int64("list_price", pack.ListPrice()))
	}
	base := pack.Price
	if final > base {
		base = final
	}
	b := Split(final, limits)
	b.BaseAmount = base
	b.DiscountAmount = base - final
	if base > 0 {
		b.DiscountPercent = int((base - final) * 100 / base)
	}
	return b, nil
}

func (r *Reconciler) applyPlan(ctx context.Context, payment *mercadopago.Payment, intent Intent) (Outcome, error) {
	paymentID := payment.IDString()

	target, ok := plans.Parse(intent.PlanKey)
	if !ok {
		return "", apperr.UnresolvableIntent(paymentID, fmt.Errorf("unknown plan %q", intent.PlanKey))
	}
	price := r.plans.Limits(string(target)).MonthlyPrice
	if paid := mercadopago.MajorToMinor(payment.TransactionAmount); paid < price {
		logger.Get().WarnContext(ctx, "plan payment below monthly price",
			slog.String("payment_id", paymentID),
			slog.String("plan", string(target)),
			slog.Int64("paid", paid),
			slog.Int64("price", price))
		return "", apperr.Underpaid(paymentID, paid, price)
	}

	outcome := OutcomePlanActivated
	err := r.repo.Transaction(ctx, func(tx Repository) error {
		row := &models.UserPlan{
			UserID:           intent.ActorID,
			PlanType:         string(target),
			GatewayPaymentID: &paymentID,
		}
		claimed, err := tx.ClaimPlanPayment(ctx, row)
		if err != nil {
			return err
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		now := r.now()
		current, err := CurrentPlan(ctx, tx, intent.ActorID, now)
		if err != nil {
			return err
		}

		log := logger.Get().With(slog.String("payment_id", paymentID), slog.String("user_id", intent.ActorID))
		switch {
		case plans.IsDowngrade(current, target):
			archived, err := r.downgrades.Downgrade(ctx, tx, intent.ActorID, current, target)
			if err != nil {
				return fmt.Errorf("downgrade: %w", err)
			}
			log.InfoContext(ctx, "plan downgrade archived packs",
				slog.String("from", string(current)), slog.String("to", string(target)),
				slog.Int("archived", len(archived)))
		case plans.IsUpgrade(current, target):
			restored, err := r.downgrades.Restore(ctx, tx, intent.ActorID, target)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			if len(restored) > 0 {
				log.InfoContext(ctx, "plan upgrade restored packs",
					slog.String("from", string(current)), slog.String("to", string(target)),
					slog.Int("restored", len(restored)))
			}
		}

		return tx.ActivatePlan(ctx, intent.ActorID, row.ID, now, now.Add(PlanPeriod))
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}
