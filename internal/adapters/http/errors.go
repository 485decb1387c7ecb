package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, quota_exhausted, search_suppressed, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errUnavailable returns a 503 error for unconfigured backends.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errFromDomain maps domain sentinels onto status codes. Anything
// unrecognised came from an upstream service.
func errFromDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidLocation), errors.Is(err, domain.ErrInvalidRadius):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrQuotaExhausted):
		return newError(c, fiber.StatusTooManyRequests, "quota_exhausted", "places quota exhausted, retry after the cooldown")
	case errors.Is(err, domain.ErrSearchSuppressed):
		return newError(c, fiber.StatusTooManyRequests, "search_suppressed", err.Error())
	case errors.Is(err, domain.ErrSearchCancelled):
		return newError(c, fiber.StatusConflict, "search_cancelled", "a newer search replaced this one")
	default:
		return newError(c, fiber.StatusBadGateway, "upstream_error", err.Error())
	}
}
