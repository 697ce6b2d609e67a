package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// DiscountPreviewer checks a code without redeeming it.
type DiscountPreviewer interface {
	Preview(ctx context.Context, req billing.DiscountRequest) (billing.DiscountResult, error)
}

// DiscountController manages sellers' discount codes and buyers' previews.
type DiscountController struct {
	repos    *repository.Repositories
	registry *plans.Registry
	resolver PlanResolver
	preview  DiscountPreviewer
}

func NewDiscountController(repos *repository.Repositories, registry *plans.Registry, resolver PlanResolver, preview DiscountPreviewer) *DiscountController {
	return &DiscountController{repos: repos, registry: registry, resolver: resolver, preview: preview}
}

type createDiscountRequest struct {
	Code             string     `json:"code" validate:"required,min=3,max=50,alphanum"`
	DiscountPercent  int        `json:"discount_percent" validate:"required,min=1,max=100"`
	ExpiresAt        *time.Time `json:"expires_at"`
	MaxUses          *int       `json:"max_uses" validate:"omitempty,min=1"`
	ForFirstPurchase bool       `json:"for_first_purchase"`
	ForFollowers     bool       `json:"for_followers"`
}

type validateDiscountRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

// HandleCreate adds a code to one of the caller's packs. The percentage is
// capped by the caller's plan.
func (dc *DiscountController) HandleCreate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req createDiscountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	pack, err := dc.ownedPack(c, userID)
	if err != nil {
		return err
	}

	plan, _, err := dc.resolver.CurrentPlan(c.UserContext(), userID)
	if err != nil {
		return internal(err)
	}
	limits := dc.registry.Limits(string(plan))
	if !limits.AllowsDiscount(req.DiscountPercent) {
		return limitError(apperr.CodeLimitDiscount, "El descuento supera el máximo de tu plan", limits).
			WithDetails(map[string]any{"max_discount_percent": limits.MaxDiscountPercent})
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return apperr.Validation("La fecha de vencimiento tiene que ser futura")
	}

	if _, err := dc.repos.DiscountCode.GetByPackAndCode(pack.ID, req.Code); err == nil {
		return apperr.New(apperr.CodeConflict, "Ya existe un código con ese nombre para este pack")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internal(err)
	}

	code := &models.DiscountCode{
		PackID:           pack.ID,
		Code:             req.Code,
		DiscountPercent:  req.DiscountPercent,
		ExpiresAt:        req.ExpiresAt,
		MaxUses:          req.MaxUses,
		ForAllUsers:      !req.ForFirstPurchase && !req.ForFollowers,
		ForFirstPurchase: req.ForFirstPurchase,
		ForFollowers:     req.ForFollowers,
	}
	if err := dc.repos.DiscountCode.Create(code); err != nil {
		return internal(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"discount_code": code})
}

// HandleList lists the codes of one of the caller's packs.
func (dc *DiscountController) HandleList(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := dc.ownedPack(c, userID)
	if err != nil {
		return err
	}
	codes, err := dc.repos.DiscountCode.ListByPack(pack.ID)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"discount_codes": codes})
}

// HandleDelete removes a code from one of the caller's packs.
func (dc *DiscountController) HandleDelete(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := dc.ownedPack(c, userID)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(c.Params("codeID"), 10, 64)
	if err != nil {
		return apperr.NotFound("El código no existe")
	}
	code, err := dc.repos.DiscountCode.GetByID(uint(id))
	if err != nil {
		return notFoundOr(err, "El código no existe")
	}
	if code.PackID != pack.ID {
		return apperr.NotFound("El código no existe")
	}
	if err := dc.repos.DiscountCode.Delete(code.ID); err != nil {
		return internal(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleValidate previews a code for the caller without consuming a use.
// A rejected code is a 200 with valid=false.
func (dc *DiscountController) HandleValidate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req validateDiscountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	pack, err := dc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOr(err, "El pack no existe")
	}
	if pack.IsArchived {
		return apperr.NotFound("El pack no existe")
	}

	res, err := dc.preview.Preview(c.UserContext(), billing.DiscountRequest{
		PackID:    pack.ID,
		SellerID:  pack.OwnerID,
		Code:      strings.TrimSpace(req.Code),
		BuyerID:   userID,
		BasePrice: pack.Price,
	})
	if err != nil {
		return internal(err)
	}
	return c.JSON(res)
}

func (dc *DiscountController) ownedPack(c *fiber.Ctx, userID string) (*models.Pack, error) {
	pack, err := dc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return nil, notFoundOr(err, "El pack no existe")
	}
	if pack.OwnerID != userID {
		return nil, apperr.New(apperr.CodeNotOwner, "Solo el dueño puede administrar los códigos de este pack")
	}
	return pack, nil
}
