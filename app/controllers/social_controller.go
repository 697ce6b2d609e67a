package controllers

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/apperr"
)

const maxCommentLength = 1000

// SocialController handles follows, likes and comments.
type SocialController struct {
	repos  *repository.Repositories
	policy *bluemonday.Policy
}

func NewSocialController(repos *repository.Repositories) *SocialController {
	return &SocialController{repos: repos, policy: bluemonday.StrictPolicy()}
}

type commentRequest struct {
	Content string `json:"content" validate:"required"`
}

// HandleFollow follows a producer. Following twice is a no-op.
func (sc *SocialController) HandleFollow(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	target := c.Params("userID")
	if target == userID {
		return apperr.Validation("No podés seguirte a vos mismo")
	}
	if _, err := sc.repos.User.GetByID(target); err != nil {
		return notFoundOr(err, "El usuario no existe")
	}
	created, err := sc.repos.Social.Follow(userID, target)
	if err != nil {
		return internal(err)
	}
	return sc.followState(c, target, true, created)
}

func (sc *SocialController) HandleUnfollow(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	target := c.Params("userID")
	if err := sc.repos.Social.Unfollow(userID, target); err != nil {
		return internal(err)
	}
	return sc.followState(c, target, false, false)
}

func (sc *SocialController) followState(c *fiber.Ctx, target string, following, created bool) error {
	followers, err := sc.repos.Social.CountFollowers(target)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"following": following, "created": created, "followers": followers})
}

// HandleToggleLike likes or unlikes a pack.
func (sc *SocialController) HandleToggleLike(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	pack, err := sc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOr(err, "El pack no existe")
	}
	liked, err := sc.repos.Social.ToggleLike(userID, pack.ID)
	if err != nil {
		return internal(err)
	}
	likes, err := sc.repos.Social.CountLikes(pack.ID)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"liked": liked, "likes": likes})
}

// HandleAddComment stores a comment with all markup stripped.
func (sc *SocialController) HandleAddComment(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req commentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	content := strings.TrimSpace(sc.policy.Sanitize(req.Content))
	if content == "" || utf8.RuneCountInString(content) > maxCommentLength {
		return apperr.Validation("El comentario tiene que tener entre 1 y 1000 caracteres")
	}

	pack, err := sc.repos.Pack.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOr(err, "El pack no existe")
	}
	if pack.IsArchived {
		return apperr.NotFound("El pack no existe")
	}

	comment := &models.Comment{UserID: userID, PackID: pack.ID, Content: content}
	if err := sc.repos.Social.AddComment(comment); err != nil {
		return internal(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"comment": comment})
}

// HandleListComments lists a pack's comments, oldest first.
func (sc *SocialController) HandleListComments(c *fiber.Ctx) error {
	offset, limit := pagination(c)
	comments, err := sc.repos.Social.ListComments(c.Params("id"), offset, limit)
	if err != nil {
		return internal(err)
	}
	return c.JSON(fiber.Map{"comments": comments, "offset": offset, "limit": limit})
}
