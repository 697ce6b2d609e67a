package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/arsound/arsound/internal/pkg/utils"
)

// AccountController serves the caller's own account.
type AccountController struct {
	repos    *repository.Repositories
	registry *plans.Registry
	resolver PlanResolver
}

func NewAccountController(repos *repository.Repositories, registry *plans.Registry, resolver PlanResolver) *AccountController {
	return &AccountController{repos: repos, registry: registry, resolver: resolver}
}

// HandleGetUserAccount returns account information for the authenticated user.
func (ac *AccountController) HandleGetUserAccount(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	account, err := ac.repos.User.GetByID(userID)
	if err != nil {
		return notFoundOr(err, "El usuario no existe")
	}
	stats, err := ac.repos.User.GetStatsByUserID(userID)
	if err != nil {
		return internal(err)
	}
	plan, _, err := ac.resolver.CurrentPlan(c.UserContext(), userID)
	if err != nil {
		return internal(err)
	}
	limits := ac.registry.Limits(string(plan))

	var packsRemaining interface{}
	if limits.MaxTotalPacks > 0 {
		remaining := int64(limits.MaxTotalPacks) - stats.PackCount
		if remaining < 0 {
			remaining = 0
		}
		packsRemaining = remaining
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"bio":                  account.Bio,
		"avatar_url":           utils.GravatarURL(account.Email, 0),
		"plan":                 plan,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"api_key_prefix":       account.APIKeyPrefix,
		"api_key_last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
		"stats": fiber.Map{
			"packs": fiber.Map{
				"live":      stats.PackCount,
				"archived":  stats.ArchivedCount,
				"remaining": packsRemaining,
			},
			"followers": stats.Followers,
			"purchases": stats.Purchases,
		},
		"limits": limits,
	})
}

// HandleRotateAPIKey issues a new key and revokes the old one. The raw key is
// only ever returned here.
func (ac *AccountController) HandleRotateAPIKey(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	account, err := ac.repos.User.GetByID(userID)
	if err != nil {
		return notFoundOr(err, "El usuario no existe")
	}
	key, err := account.IssueAPIKey()
	if err != nil {
		return internal(err)
	}
	if err := ac.repos.User.Update(account); err != nil {
		return internal(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"api_key": key, "api_key_prefix": account.APIKeyPrefix})
}
