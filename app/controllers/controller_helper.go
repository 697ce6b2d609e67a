package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/logger"
	"github.com/arsound/arsound/internal/pkg/usercontext"
)

var validate = validator.New()

// ErrorHandler renders every error returned by a handler as
// {"error": code, "message": msg}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperr.As(err); ok {
		status := appErr.HTTPStatus()
		if status >= fiber.StatusInternalServerError {
			logger.Get().Error("request failed", "path", c.Path(), "code", appErr.Code, "error", err)
		}
		body := fiber.Map{"error": appErr.Code, "message": appErr.Message}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		return c.Status(status).JSON(body)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": "http_error", "message": fe.Message})
	}

	logger.Get().Error("unhandled error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   apperr.CodeInternal,
		"message": "Error interno del servidor",
	})
}

func errLoginRequired() error {
	return apperr.Auth("Tenés que iniciar sesión")
}

// currentUserID returns the authenticated caller or an auth error.
func currentUserID(c *fiber.Ctx) (string, error) {
	id := usercontext.GetUserID(c)
	if id == "" {
		return "", errLoginRequired()
	}
	return id, nil
}

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Wrap(apperr.CodeInvalidPayload, "Cuerpo de la solicitud inválido", err)
	}
	if err := validate.Struct(out); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "Datos inválidos", err)
	}
	return nil
}

// notFoundOr maps gorm's not-found to a NotFound error with msg and wraps
// anything else as internal.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Wrap(apperr.CodeInternal, "Error interno del servidor", err)
}

func internal(err error) error {
	return apperr.Wrap(apperr.CodeInternal, "Error interno del servidor", err)
}

// pagination reads offset/limit query params with sane bounds.
func pagination(c *fiber.Ctx) (int, int) {
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
