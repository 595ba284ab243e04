package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/ownership"
	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/query"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
	"github.com/nexabase-io/nexabase/internal/settings"
)

// Envelope is the uniform response wrapper
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorBody carries the machine-readable error detail
type ErrorBody struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Pagination is the page descriptor of list responses
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalCount  int64 `json:"total_count"`
	TotalPages  int   `json:"total_pages"`
}

// NewPagination computes the descriptor from offset-style inputs
func NewPagination(page, pageSize int, total int64) Pagination {
	if pageSize <= 0 {
		pageSize = 30
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{CurrentPage: page, PageSize: pageSize, TotalCount: total, TotalPages: totalPages}
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Data: data})
}

func okMessage(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Message: message})
}

func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{Success: true, Data: data})
}

func noContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func fail(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC(),
		},
	})
}

// respondError maps domain errors onto HTTP statuses and the envelope
func respondError(c *fiber.Ctx, err error) error {
	var schemaVErr *schema.ValidationError
	var queryVErr *query.ValidationError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &schemaVErr):
		return fail(c, fiber.StatusBadRequest, "validation_failed", "validation failed", schemaVErr.Messages)
	case errors.As(err, &queryVErr):
		return fail(c, fiber.StatusBadRequest, "invalid_query", "invalid query parameters", queryVErr.Messages)

	case errors.Is(err, schema.ErrNotFound),
		errors.Is(err, records.ErrNotFound),
		errors.Is(err, permissions.ErrRoleNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, ownership.ErrUserNotFound),
		errors.Is(err, settings.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "not_found", err.Error(), nil)

	case errors.Is(err, schema.ErrAlreadyExists),
		errors.Is(err, permissions.ErrRoleExists),
		errors.Is(err, auth.ErrUserExists):
		return fail(c, fiber.StatusConflict, "conflict", err.Error(), nil)

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrTokenBlacklisted):
		return fail(c, fiber.StatusUnauthorized, "unauthorized", err.Error(), nil)

	case errors.Is(err, auth.ErrAccountLocked):
		return fail(c, fiber.StatusForbidden, "account_locked", err.Error(), nil)
	case errors.Is(err, auth.ErrAccountDisabled):
		return fail(c, fiber.StatusForbidden, "account_disabled", err.Error(), nil)
	case errors.Is(err, auth.ErrNotVerified):
		return fail(c, fiber.StatusForbidden, "not_verified", err.Error(), nil)
	case errors.Is(err, ownership.ErrNotOwner):
		return fail(c, fiber.StatusForbidden, "forbidden", err.Error(), nil)

	case errors.Is(err, schema.ErrSystemCollection),
		errors.Is(err, permissions.ErrBuiltinRole):
		return fail(c, fiber.StatusForbidden, "forbidden", err.Error(), nil)

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, records.ErrEmptyUpdate),
		errors.Is(err, ownership.ErrNoOwnerField),
		errors.Is(err, settings.ErrBadType):
		return fail(c, fiber.StatusBadRequest, "validation_failed", err.Error(), nil)

	case errors.As(err, &fiberErr):
		code := "error"
		switch fiberErr.Code {
		case fiber.StatusUnauthorized:
			code = "unauthorized"
		case fiber.StatusForbidden:
			code = "forbidden"
		case fiber.StatusNotFound:
			code = "not_found"
		case fiber.StatusTooManyRequests:
			code = "rate_limited"
		case fiber.StatusBadRequest:
			code = "validation_failed"
		}
		return fail(c, fiberErr.Code, code, fiberErr.Message, nil)
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	return fail(c, fiber.StatusInternalServerError, "internal_error", "internal server error", nil)
}

// errorHandler is the fiber app-level error handler
func errorHandler(c *fiber.Ctx, err error) error {
	return respondError(c, err)
}

func forbidden(c *fiber.Ctx) error {
	return fail(c, fiber.StatusForbidden, "forbidden", "permission denied", nil)
}
