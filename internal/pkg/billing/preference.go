package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
	"gorm.io/gorm"
)

// URLs are the public endpoints the gateway redirects to and notifies.
type URLs struct {
	Success      string
	Failure      string
	Pending      string
	Notification string
}

// DefaultURLs derives the checkout URLs from the public base URL.
func DefaultURLs(publicURL string) URLs {
	return URLs{
		Success:      publicURL + "/checkout/success",
		Failure:      publicURL + "/checkout/failure",
		Pending:      publicURL + "/checkout/pending",
		Notification: publicURL + "/api/webhooks/mercadopago",
	}
}

// PreferenceBuilder turns a checkout intent into a gateway request.
type PreferenceBuilder struct {
	repo      Repository
	plans     *plans.Registry
	discounts *DiscountResolver
	urls      URLs
	now       func() time.Time
}

func NewPreferenceBuilder(repo Repository, registry *plans.Registry, discounts *DiscountResolver, urls URLs) *PreferenceBuilder {
	return &PreferenceBuilder{repo: repo, plans: registry, discounts: discounts, urls: urls, now: time.Now}
}

// BuildPackPreference prices a pack for a buyer and builds the gateway request.
// A discount code, when given, replaces the seller's own sale percentage and
// consumes one use of the code.
func (b *PreferenceBuilder) BuildPackPreference(ctx context.Context, in PackCheckout) (*mercadopago.PreferenceRequest, Breakdown, error) {
	pack, err := b.repo.GetPack(ctx, in.PackID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && pack.IsArchived) {
		return nil, Breakdown{}, apperr.NotFound("El pack no existe o no está disponible")
	}
	if err != nil {
		return nil, Breakdown{}, err
	}
	if pack.OwnerID == in.BuyerID {
		return nil, Breakdown{}, apperr.Validation("No podés comprar tu propio pack")
	}
	if pack.Price <= 0 {
		return nil, Breakdown{}, apperr.Validation("Este pack es gratis, descargalo directamente")
	}
	ref, err := BuildReference(Intent{Kind: IntentPack, ActorID: in.BuyerID, PackID: pack.ID})
	if err != nil {
		return nil, Breakdown{}, apperr.Wrap(apperr.CodeValidation, "Comprador inválido", err)
	}

	account, err := b.repo.GetSellerAccount(ctx, pack.OwnerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Breakdown{}, err
	}
	if !account.IsPayable() {
		return nil, Breakdown{}, apperr.New(apperr.CodeSellerNotPayable, "El vendedor todavía no configuró su cuenta de cobro")
	}
	collectorID, err := strconv.ParseInt(account.ProviderAccountID, 10, 64)
	if err != nil {
		return nil, Breakdown{}, apperr.Wrap(apperr.CodeSellerNotPayable, "El vendedor todavía no configuró su cuenta de cobro", err)
	}

	sellerPlan, err := CurrentPlan(ctx, b.repo, pack.OwnerID, b.now())
	if err != nil {
		return nil, Breakdown{}, err
	}
	limits := b.plans.Limits(string(sellerPlan))

	percent := 0
	if pack.HasDiscount {
		percent = pack.DiscountPercent
	}
	var codeID uint
	if in.DiscountCode != "" {
		res, err := b.discounts.Resolve(ctx, DiscountRequest{
			PackID:    pack.ID,
			SellerID:  pack.OwnerID,
			Code:      in.DiscountCode,
			BuyerID:   in.BuyerID,
			BasePrice: pack.Price,
		})
		if err != nil {
			return nil, Breakdown{}, err
		}
		if !res.Valid {
			return nil, Breakdown{}, apperr.New(apperr.CodeDiscount, res.Message).
				WithDetails(map[string]any{"failure": res.Failure, "reason": res.Reason})
		}
		percent = res.Percent
		codeID = res.CodeID
	}

	breakdown := Price(pack.Price, percent, limits)

	metadata := breakdown.Metadata()
	metadata["type"] = MetadataTypePack
	metadata["buyer_id"] = in.BuyerID
	metadata["pack_id"] = pack.ID
	metadata["seller_id"] = pack.OwnerID
	if codeID != 0 {
		metadata["discount_code_id"] = codeID
	}

	req := &mercadopago.PreferenceRequest{
		Items: []mercadopago.Item{{
			ID:         pack.ID,
			Title:      pack.Title,
			Quantity:   1,
			CurrencyID: mercadopago.CurrencyARS,
			UnitPrice:  mercadopago.MinorToMajor(breakdown.FinalPrice),
		}},
		Payer:             &mercadopago.Payer{Email: in.BuyerEmail},
		BackURLs:          b.backURLs(),
		AutoReturn:        mercadopago.AutoReturnApproved,
		NotificationURL:   b.urls.Notification,
		ExternalReference: ref,
		Metadata:          metadata,
		MarketplaceFee:    mercadopago.MinorToMajor(breakdown.Commission),
		CollectorID:       collectorID,
	}
	return req, breakdown, nil
}

// BuildPlanPreference builds the request for one month of a paid plan.
func (b *PreferenceBuilder) BuildPlanPreference(ctx context.Context, in PlanCheckout) (*mercadopago.PreferenceRequest, error) {
	limits, ok := b.plans.Lookup(in.PlanKey)
	if !ok || !limits.Purchasable() {
		return nil, apperr.New(apperr.CodeInvalidPlan, "El plan solicitado no existe")
	}

	ref, err := BuildReference(Intent{Kind: IntentPlan, ActorID: in.UserID, PlanKey: string(limits.Plan)})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "Usuario inválido", err)
	}

	return &mercadopago.PreferenceRequest{
		Items: []mercadopago.Item{{
			ID:          fmt.Sprintf("plan_%s_monthly", limits.Plan),
			Title:       "ARSOUND " + limits.DisplayName,
			Description: "Suscripción mensual",
			Quantity:    1,
			CurrencyID:  mercadopago.CurrencyARS,
			UnitPrice:   mercadopago.MinorToMajor(limits.MonthlyPrice),
		}},
		Payer:             &mercadopago.Payer{Email: in.Email},
		BackURLs:          b.backURLs(),
		AutoReturn:        mercadopago.AutoReturnApproved,
		NotificationURL:   b.urls.Notification,
		ExternalReference: ref,
		Metadata: map[string]any{
			"type":      MetadataTypePlan,
			"user_id":   in.UserID,
			"plan_type": string(limits.Plan),
		},
	}, nil
}

func (b *PreferenceBuilder) backURLs() mercadopago.BackURLs {
	return mercadopago.BackURLs{Success: b.urls.Success, Failure: b.urls.Failure, Pending: b.urls.Pending}
}

// Checkout sends built preferences to the gateway.
type Checkout struct {
	builder *PreferenceBuilder
	gateway mercadopago.Gateway
}

func NewCheckout(builder *PreferenceBuilder, gateway mercadopago.Gateway) *Checkout {
	return &Checkout{builder: builder, gateway: gateway}
}

func (c *Checkout) Pack(ctx context.Context, in PackCheckout) (*CheckoutResult, error) {
	req, breakdown, err := c.builder.BuildPackPreference(ctx, in)
	if err != nil {
		return nil, err
	}
	res, err := c.create(ctx, req)
	if err != nil {
		if codeID, ok := metadataInt(req.Metadata, "discount_code_id"); ok {
			if rerr := c.builder.discounts.Release(context.WithoutCancel(ctx), uint(codeID)); rerr != nil {
				logger.Get().ErrorContext(ctx, "release discount code failed",
					slog.Int64("discount_code_id", codeID),
					slog.Any("error", rerr))
			}
		}
		return nil, err
	}
	res.Breakdown = breakdown
	return res, nil
}

func (c *Checkout) Plan(ctx context.Context, in PlanCheckout) (*CheckoutResult, error) {
	req, err := c.builder.BuildPlanPreference(ctx, in)
	if err != nil {
		return nil, err
	}
	return c.create(ctx, req)
}

func (c *Checkout) create(ctx context.Context, req *mercadopago.PreferenceRequest) (*CheckoutResult, error) {
	pref, err := c.gateway.CreatePreference(ctx, req)
	if err != nil {
		logger.Get().ErrorContext(ctx, "create preference failed",
			slog.String("external_reference", req.ExternalReference),
			slog.Any("error", err))
		return nil, apperr.Payment(err)
	}
	return &CheckoutResult{
		PreferenceID:     pref.ID,
		InitPoint:        pref.InitPoint,
		SandboxInitPoint: pref.SandboxInitPoint,
	}, nil
}
