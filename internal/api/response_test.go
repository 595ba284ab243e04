package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/auth"
	"github.com/nexabase-io/nexabase/internal/records"
	"github.com/nexabase-io/nexabase/internal/schema"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 30, 61)
	assert.Equal(t, 2, p.CurrentPage)
	assert.Equal(t, 30, p.PageSize)
	assert.Equal(t, int64(61), p.TotalCount)
	assert.Equal(t, 3, p.TotalPages)

	// Zero page size falls back to the default.
	p = NewPagination(1, 0, 10)
	assert.Equal(t, 30, p.PageSize)
	assert.Equal(t, 1, p.TotalPages)

	p = NewPagination(1, 10, 0)
	assert.Zero(t, p.TotalPages)
}

func errStatus(t *testing.T, err error) (int, Envelope) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return err })

	resp, reqErr := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, reqErr)
	defer resp.Body.Close()

	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"record not found", records.ErrNotFound, fiber.StatusNotFound, "not_found"},
		{"collection exists", schema.ErrAlreadyExists, fiber.StatusConflict, "conflict"},
		{"bad credentials", auth.ErrInvalidCredentials, fiber.StatusUnauthorized, "unauthorized"},
		{"locked", auth.ErrAccountLocked, fiber.StatusForbidden, "account_locked"},
		{"unverified", auth.ErrNotVerified, fiber.StatusForbidden, "not_verified"},
		{"system collection", schema.ErrSystemCollection, fiber.StatusForbidden, "forbidden"},
		{"empty update", records.ErrEmptyUpdate, fiber.StatusBadRequest, "validation_failed"},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := errStatus(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.False(t, env.Error.Timestamp.IsZero())
		})
	}
}

func TestRespondErrorValidationMessages(t *testing.T) {
	verr := &schema.ValidationError{Messages: []string{"title is required"}}
	status, env := errStatus(t, verr)

	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, []interface{}{"title is required"}, env.Error.Details)
}

// Internal errors never leak detail to the client.
func TestRespondErrorHidesInternalDetail(t *testing.T) {
	_, env := errStatus(t, errors.New("dsn=secret://creds"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "internal server error", env.Error.Message)
}
