package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/arsound/arsound/internal/pkg/storage"
	"github.com/arsound/arsound/internal/pkg/upload"
	"github.com/arsound/arsound/internal/pkg/usercontext"
)

// MaxPinnedPacks caps pinned packs per profile on plans that allow pinning.
const MaxPinnedPacks = 3

// Presigner hands out direct-to-bucket URLs for pack archives.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, size int64) (*storage.PresignedRequest, error)
	PresignDownload(ctx context.Context, key, fileName string) (*storage.PresignedRequest, error)
}

// ViewCounter buffers pack views.
type ViewCounter interface {
	AddPackView(ctx context.Context, packID string) error
}

// PackController handles the pack catalog and sellers' pack management.
type PackController struct {
	repos    *repository.Repositories
	registry *plans.Registry
	resolver PlanResolver
	files    Presigner
	views    ViewCounter
	now      func() time.Time
}

// NewPackController creates the controller. files and views may be nil, the
// related endpoints then answer 503 or skip counting.
func NewPackController(repos *repository.Repositories, registry *plans.Registry, resolver PlanResolver, files Presigner, views ViewCounter) *PackController {
	return &PackController{
		repos:    repos,
		registry: registry,
		resolver: resolver,
		files:    files,
		views:    views,
		now:      time.Now,
	}
}

type createPackRequest struct {
	Title           string `json:"title" validate:"required,min=3,max=200"`
	Description     string `json:"description" validate:"max=5000"`
	Genre           string `json:"genre" validate:"max=50"`
	Price           int64  `json:"price" validate:"min=0"`
	HasDiscount     bool   `json:"has_discount"`
	DiscountPercent int    `json:"discount_percent" validate:"min=0,max=100"`
	ExternalLink    string `json:"external_link" validate:"omitempty,url,max=500"`
	IsPinned        bool   `json:"is_pinned"`
}

type updatePackRequest struct {
	Title           *string `json:"title" validate:"omitempty,min=3,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	Genre           *string `json:"genre" validate:"omitempty,max=50"`
	Price           *int64  `json:"price" validate:"omitempty,min=0"`
	HasDiscount     *bool   `json:"has_discount"`
	DiscountPercent *int    `json:"discount_percent" validate:"omitempty,min=0,max=100"`
	ExternalLink    *string `json:"external_link" validate:"omitempty,max=500"`
	IsPinned        *bool   `json:"is_pinned"`
}

// touchesContent reports whether the update edits anything beyond pinning,
// which is what the edit window guards.
func (r updatePackRequest) touchesContent() bool {
	return r.Title != nil || r.Description != nil || r.Genre != nil || r.Price != nil ||
		r.HasDiscount != nil || r.DiscountPercent != nil || r.ExternalLink != nil
}

type uploadURLRequest struct {
	FileName string `json:"file_name" validate:"required,max=200"`
	FileSize int64  `json:"file_size" validate:"required,gt=0"`
}

func (pc *PackController) limitsFor(ctx context.Context, userID string) (plans.Limits, error) {
	plan, _, err := pc.resolver.CurrentPlan(ctx, userID)
	if err != nil {
		return plans.Limits{}, internal(err)
	}
	return pc.registry.Limits(string(plan)), nil
}

// loadOwned returns a pack the caller owns.
func (pc *PackController) loadOwned(c *fiber.Ctx, userID string) (*models.Pack, error) {
	pack, err := pc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return nil, notFoundOr(err, "El pack no existe")
	}
	if pack.OwnerID != userID {
		return nil, apperr.New(apperr.CodeNotOwner, "Solo el dueño puede modificar este pack")
	}
	return pack, nil
}

func limitError(code apperr.Code, msg string, limits plans.Limits) *apperr.Error {
	return apperr.New(code, msg).WithDetails(map[string]any{"plan": limits.Plan})
}

// checkQuota enforces the total and monthly pack quotas for one more live pack.
// Monthly counts start at the first day of the current UTC month.
func (pc *PackController) checkQuota(ownerID string, limits plans.Limits, countMonthly bool) error {
	live, err := pc.repos.Pack.CountLiveByOwner(ownerID)
	if err != nil {
		return internal(err)
	}
	if !limits.AllowsPackCount(int(live)) {
		return limitError(apperr.CodeLimitPacks, "Llegaste al máximo de packs de tu plan", limits)
	}
	if !countMonthly {
		return nil
	}
	now := pc.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	created, err := pc.repos.Pack.CountCreatedSince(ownerID, monthStart)
	if err != nil {
		return internal(err)
	}
	if !limits.AllowsMonthlyCount(int(created)) {
		return limitError(apperr.CodeLimitPacks, "Llegaste al máximo de packs por mes de tu plan", limits)
	}
	return nil
}

func checkPricing(limits plans.Limits, price int64, hasDiscount bool, percent int) error {
	if !limits.AllowsPrice(price) {
		return limitError(apperr.CodeLimitPrice, "El precio supera el máximo de tu plan", limits)
	}
	if hasDiscount && !limits.AllowsDiscount(percent) {
		return limitError(apperr.CodeLimitDiscount, "El descuento supera el máximo de tu plan", limits)
	}
	return nil
}

func (pc *PackController) checkPin(ownerID string, limits plans.Limits) error {
	if !limits.CanPin {
		return limitError(apperr.CodeLimitFeature, "Tu plan no permite fijar packs", limits)
	}
	pinned, err := pc.repos.Pack.CountPinned(ownerID)
	if err != nil {
		return internal(err)
	}
	if pinned >= MaxPinnedPacks {
		return apperr.New(apperr.CodeConflict, "Ya tenés el máximo de packs fijados")
	}
	return nil
}

// HandleList returns the public catalog.
func (pc *PackController) HandleList(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	packs, total, err := pc.repos.Pack.ListPublic(repository.PackFilter{
		Genre:   c.Query("genre"),
		Query:   c.Query("q"),
		OwnerID: c.Query("owner_id"),
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"packs": packs, "total": total, "offset": offset, "limit": limit})
}

// HandleMine lists the caller's packs including archived ones.
func (pc *PackController) HandleMine(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	packs, err := pc.repos.Pack.ListByOwner(userID, true)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"packs": packs})
}

// HandleGet shows one pack. Archived packs are visible to their owner only.
func (pc *PackController) HandleGet(c *fiber.Ctx) error {
	pack, err := pc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOr(err, "El pack no existe")
	}
	userID := usercontext.GetUserID(c)
	if pack.IsArchived && pack.OwnerID != userID {
		return apperr.NotFound("El pack no existe")
	}

	if pc.views != nil && pack.OwnerID != userID {
		if err := pc.views.AddPackView(c.UserContext(), pack.ID); err != nil {
			logger.Get().Warn("failed to count pack view", "pack_id", pack.ID, "error", err)
		}
	}

	likes, err := pc.repos.Social.CountLikes(pack.ID)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"pack": pack, "list_price": pack.ListPrice(), "likes": likes})
}

// HandleCreate publishes a pack within the caller's plan limits.
func (pc *PackController) HandleCreate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req createPackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	limits, err := pc.limitsFor(c.UserContext(), userID)
	if err != nil {
		return err
	}

	if err := pc.checkQuota(userID, limits, true); err != nil {
		return err
	}
	if err := checkPricing(limits, req.Price, req.HasDiscount, req.DiscountPercent); err != nil {
		return err
	}
	if req.ExternalLink != "" && !limits.CanAddLinks {
		return limitError(apperr.CodeLimitFeature, "Tu plan no permite agregar links", limits)
	}
	if req.IsPinned {
		if err := pc.checkPin(userID, limits); err != nil {
			return err
		}
	}

	pack := &models.Pack{
		OwnerID:         userID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Genre:           strings.TrimSpace(req.Genre),
		Price:           req.Price,
		HasDiscount:     req.HasDiscount && req.DiscountPercent > 0,
		DiscountPercent: req.DiscountPercent,
		ExternalLink:    strings.TrimSpace(req.ExternalLink),
		IsPinned:        req.IsPinned,
	}
	if !pack.HasDiscount {
		pack.DiscountPercent = 0
	}
	if err := pc.repos.Pack.Create(pack); err != nil {
		return internal(err)
	}
	logger.Get().Info("pack created", "pack_id", pack.ID, "owner_id", userID, "plan", limits.Plan)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"pack": pack})
}

// HandleUpdate edits a pack. Content edits are only possible inside the
// plan's edit window, counted from creation.
func (pc *PackController) HandleUpdate(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req updatePackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	pack, err := pc.loadOwned(c, userID)
	if err != nil {
		return err
	}
	limits, err := pc.limitsFor(c.UserContext(), userID)
	if err != nil {
		return err
	}

	if req.touchesContent() && limits.EditWindowDays > 0 {
		deadline := pack.CreatedAt.AddDate(0, 0, limits.EditWindowDays)
		if pc.now().After(deadline) {
			return limitError(apperr.CodeLimitEditWindow, "Ya pasó el plazo para editar este pack", limits)
		}
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Genre != nil {
		fields["genre"] = strings.TrimSpace(*req.Genre)
	}

	price, hasDiscount, percent := pack.Price, pack.HasDiscount, pack.DiscountPercent
	if req.Price != nil {
		price = *req.Price
	}
	if req.HasDiscount != nil {
		hasDiscount = *req.HasDiscount
	}
	if req.DiscountPercent != nil {
		percent = *req.DiscountPercent
	}
	if req.Price != nil || req.HasDiscount != nil || req.DiscountPercent != nil {
		if err := checkPricing(limits, price, hasDiscount, percent); err != nil {
			return err
		}
		if !hasDiscount || percent == 0 {
			hasDiscount, percent = false, 0
		}
		fields["price"] = price
		fields["has_discount"] = hasDiscount
		fields["discount_percent"] = percent
	}

	if req.ExternalLink != nil {
		link := strings.TrimSpace(*req.ExternalLink)
		if link != "" && !limits.CanAddLinks {
			return limitError(apperr.CodeLimitFeature, "Tu plan no permite agregar links", limits)
		}
		if link != "" {
			if err := validate.Var(link, "url"); err != nil {
				return apperr.Wrap(apperr.CodeValidation, "El link no es válido", err)
			}
		}
		fields["external_link"] = link
	}

	if req.IsPinned != nil && *req.IsPinned != pack.IsPinned {
		if *req.IsPinned {
			if err := pc.checkPin(userID, limits); err != nil {
				return err
			}
		}
		fields["is_pinned"] = *req.IsPinned
	}

	return pc.updateAndRespond(c, pack, fields)
}

func (pc *PackController) updateAndRespond(c *fiber.Ctx, pack *models.Pack, fields map[string]interface{}) error {
	if err := pc.repos.Pack.Update(pack, fields); err != nil {
		return internal(err)
	}
	updated, err := pc.repos.Pack.GetByID(pack.ID)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"pack": updated})
}

// HandleDelete soft deletes a pack. Deleted packs still count against the
// monthly quota.
func (pc *PackController) HandleDelete(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := pc.loadOwned(c, userID)
	if err != nil {
		return err
	}
	if err := pc.repos.Pack.Delete(pack.ID); err != nil {
		return internal(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleArchive hides a pack from the catalog.
func (pc *PackController) HandleArchive(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := pc.loadOwned(c, userID)
	if err != nil {
		return err
	}
	if pack.IsArchived {
		return c.JSON(fiber.Map{"pack": pack})
	}
	now := pc.now()
	fields := map[string]interface{}{
		"is_archived":     true,
		"archived_reason": models.ArchivedReasonOwner,
		"archived_at":     &now,
		"is_pinned":       false,
	}
	return pc.updateAndRespond(c, pack, fields)
}

// HandleUnarchive publishes an archived pack again if the total quota allows.
func (pc *PackController) HandleUnarchive(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := pc.loadOwned(c, userID)
	if err != nil {
		return err
	}
	if !pack.IsArchived {
		return c.JSON(fiber.Map{"pack": pack})
	}
	limits, err := pc.limitsFor(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if err := pc.checkQuota(userID, limits, false); err != nil {
		return err
	}
	fields := map[string]interface{}{
		"is_archived":     false,
		"archived_reason": "",
		"archived_at":     nil,
	}
	return pc.updateAndRespond(c, pack, fields)
}

// HandleUploadURL returns a presigned PUT for the pack archive. The signed
// size is checked against the plan's file size limit.
func (pc *PackController) HandleUploadURL(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	if pc.files == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Almacenamiento no disponible")
	}
	var req uploadURLRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	pack, err := pc.loadOwned(c, userID)
	if err != nil {
		return err
	}
	limits, err := pc.limitsFor(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if err := upload.ValidateArchiveName(req.FileName); err != nil {
		return apperr.Validation(err.Error())
	}
	if !limits.AllowsFileSize(req.FileSize) {
		return limitError(apperr.CodeLimitFileSize, "El archivo supera el tamaño máximo de tu plan", limits).
			WithDetails(map[string]any{"max_file_size": limits.MaxFileSize})
	}

	key := storage.ObjectKey(userID, pack.ID, req.FileName)
	presigned, err := pc.files.PresignUpload(c.UserContext(), key, req.FileSize)
	if err != nil {
		return internal(err)
	}
	if err := pc.repos.Pack.Update(pack, map[string]interface{}{"file_key": key, "file_size": req.FileSize}); err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"upload": presigned, "file_key": key})
}

// HandleDownloadURL returns a presigned GET for the owner, a buyer, or anyone
// logged in when the pack is free.
func (pc *PackController) HandleDownloadURL(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	if pc.files == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Almacenamiento no disponible")
	}
	pack, err := pc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOr(err, "El pack no existe")
	}
	if pack.FileKey == "" {
		return apperr.NotFound("El pack todavía no tiene archivo")
	}

	allowed := pack.OwnerID == userID
	free := pack.Price == 0 && !pack.IsArchived
	if !allowed {
		bought, err := pc.repos.Purchase.HasPurchased(userID, pack.ID)
		if err != nil {
			return internal(err)
		}
		allowed = bought || free
	}
	if !allowed {
		return apperr.Forbidden("Tenés que comprar el pack para descargarlo")
	}

	presigned, err := pc.files.PresignDownload(c.UserContext(), pack.FileKey, downloadName(pack))
	if err != nil {
		return internal(err)
	}
	if free && pack.OwnerID != userID {
		if err := pc.repos.Pack.RecordDownload(userID, pack.ID); err != nil {
			logger.Get().Warn("failed to record download", "pack_id", pack.ID, "user_id", userID, "error", err)
		}
	}
	return c.JSON(fiber.Map{"download": presigned})
}

func downloadName(p *models.Pack) string {
	name := strings.TrimSpace(p.Title)
	if name == "" {
		name = p.ID
	}
	return name + ".zip"
}
