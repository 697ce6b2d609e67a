package billing

import (
	"context"
	"errors"
	"time"

	"github.com/arsound/arsound/app/models"
	"gorm.io/gorm"
)

// DiscountFailure names why a code was rejected.
type DiscountFailure string

const (
	FailureCodeNotFound DiscountFailure = "code_not_found"
	FailureCodeExpired  DiscountFailure = "code_expired"
	FailureExhausted    DiscountFailure = "code_exhausted"
	FailureNotEligible  DiscountFailure = "not_eligible"
)

const (
	ReasonNotFollower      = "not a follower"
	ReasonNotFirstPurchase = "not first purchase"
)

var failureMessages = map[DiscountFailure]string{
	FailureCodeNotFound: "El código de descuento no existe",
	FailureCodeExpired:  "El código de descuento expiró",
	FailureExhausted:    "El código de descuento ya no tiene usos disponibles",
}

var reasonMessages = map[string]string{
	ReasonNotFollower:      "Este código es solo para seguidores del productor",
	ReasonNotFirstPurchase: "Este código es solo para tu primera compra",
}

// DiscountRequest asks whether Code applies to a purchase of PackID.
type DiscountRequest struct {
	PackID    string
	SellerID  string
	Code      string
	BuyerID   string
	BasePrice int64
}

// DiscountResult is the outcome of a code check. A rejected code is a valid
// result with Valid false, not an error.
type DiscountResult struct {
	Valid          bool            `json:"valid"`
	Failure        DiscountFailure `json:"failure,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Message        string          `json:"message,omitempty"`
	CodeID         uint            `json:"-"`
	Percent        int             `json:"discount_percent,omitempty"`
	BasePrice      int64           `json:"base_price"`
	DiscountAmount int64           `json:"discount_amount"`
	FinalPrice     int64           `json:"final_price"`
}

func rejected(f DiscountFailure, reason string, base int64) DiscountResult {
	msg := failureMessages[f]
	if reason != "" {
		msg = reasonMessages[reason]
	}
	return DiscountResult{Failure: f, Reason: reason, Message: msg, BasePrice: base, FinalPrice: base}
}

// DiscountResolver validates and redeems discount codes.
type DiscountResolver struct {
	repo Repository
	now  func() time.Time
}

func NewDiscountResolver(repo Repository) *DiscountResolver {
	return &DiscountResolver{repo: repo, now: time.Now}
}

// Preview runs every check without consuming a use.
func (d *DiscountResolver) Preview(ctx context.Context, req DiscountRequest) (DiscountResult, error) {
	res, _, err := d.check(ctx, req)
	return res, err
}

// Resolve runs every check and, when the code is valid, consumes one use with
// a conditional increment. A concurrent redemption that takes the last use
// turns the result into FailureExhausted.
func (d *DiscountResolver) Resolve(ctx context.Context, req DiscountRequest) (DiscountResult, error) {
	res, code, err := d.check(ctx, req)
	if err != nil || !res.Valid {
		return res, err
	}
	ok, err := d.repo.RedeemDiscountCode(ctx, code.ID)
	if err != nil {
		return DiscountResult{}, err
	}
	if !ok {
		return rejected(FailureExhausted, "", req.BasePrice), nil
	}
	return res, nil
}

// Release returns a use consumed by Resolve when the checkout it was
// redeemed for never reached the gateway.
func (d *DiscountResolver) Release(ctx context.Context, codeID uint) error {
	if codeID == 0 {
		return nil
	}
	return d.repo.ReleaseDiscountCode(ctx, codeID)
}

func (d *DiscountResolver) check(ctx context.Context, req DiscountRequest) (DiscountResult, *models.DiscountCode, error) {
	normalized := models.NormalizeDiscountCode(req.Code)
	if normalized == "" {
		return rejected(FailureCodeNotFound, "", req.BasePrice), nil, nil
	}

	code, err := d.repo.FindDiscountCode(ctx, req.PackID, normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rejected(FailureCodeNotFound, "", req.BasePrice), nil, nil
	}
	if err != nil {
		return DiscountResult{}, nil, err
	}

	if code.Expired(d.now()) {
		return rejected(FailureCodeExpired, "", req.BasePrice), nil, nil
	}
	if code.Exhausted() {
		return rejected(FailureExhausted, "", req.BasePrice), nil, nil
	}

	if code.ForFollowers {
		following, err := d.repo.IsFollowing(ctx, req.BuyerID, req.SellerID)
		if err != nil {
			return DiscountResult{}, nil, err
		}
		if !following {
			return rejected(FailureNotEligible, ReasonNotFollower, req.BasePrice), nil, nil
		}
	}

	if code.ForFirstPurchase {
		bought, err := d.repo.HasCompletedPurchase(ctx, req.BuyerID)
		if err != nil {
			return DiscountResult{}, nil, err
		}
		if bought {
			return rejected(FailureNotEligible, ReasonNotFirstPurchase, req.BasePrice), nil, nil
		}
	}

	final := models.ApplyPercentOff(req.BasePrice, code.DiscountPercent)
	return DiscountResult{
		Valid:          true,
		CodeID:         code.ID,
		Percent:        code.DiscountPercent,
		BasePrice:      req.BasePrice,
		DiscountAmount: req.BasePrice - final,
		FinalPrice:     final,
	}, code, nil
}
