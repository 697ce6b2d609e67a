package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/app/repository"
)

// PurchaseController serves buyers' libraries, sellers' sales and the
// seller payout account.
type PurchaseController struct {
	repos *repository.Repositories
}

func NewPurchaseController(repos *repository.Repositories) *PurchaseController {
	return &PurchaseController{repos: repos}
}

// HandleMyPurchases lists packs the caller bought, newest first.
func (pc *PurchaseController) HandleMyPurchases(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	offset, limit := pagination(c)
	purchases, err := pc.repos.Purchase.ListByBuyer(userID, offset, limit)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"purchases": purchases, "offset": offset, "limit": limit})
}

// HandleMySales lists the caller's sales with totals.
func (pc *PurchaseController) HandleMySales(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	offset, limit := pagination(c)
	sales, err := pc.repos.Purchase.ListBySeller(userID, offset, limit)
	if err != nil {
		return internal(err)
	}
	summary, err := pc.repos.Purchase.SalesSummary(userID)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"sales": sales, "summary": summary, "offset": offset, "limit": limit})
}

type sellerAccountRequest struct {
	ProviderAccountID string `json:"provider_account_id" validate:"required,numeric,max=30"`
	Email             string `json:"email" validate:"omitempty,email,max=200"`
}

// HandleGetSellerAccount returns the caller's MercadoPago payout account.
func (pc *PurchaseController) HandleGetSellerAccount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	account, err := pc.repos.SellerAccount.GetByUserID(userID, models.ProviderMercadoPago)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"account": nil, "payable": false})
	}
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"account": account, "payable": account.IsPayable()})
}

// HandleUpsertSellerAccount stores the collector id sales are paid out to.
func (pc *PurchaseController) HandleUpsertSellerAccount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req sellerAccountRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	account := &models.SellerAccount{
		UserID:            userID,
		Provider:          models.ProviderMercadoPago,
		ProviderAccountID: strings.TrimSpace(req.ProviderAccountID),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := pc.repos.SellerAccount.Upsert(account); err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"account": account, "payable": account.IsPayable()})
}
