package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Client-facing error messages.
const (
	MsgInvalidBody     = "Invalid request body"
	MsgChildIDRequired = "Child ID required"
	MsgElapsedRequired = "Valid elapsed seconds required"
	MsgInvalidTicketID = "Invalid ticket ID"
	MsgInvalidChildID  = "Invalid child ID"
	MsgUnauthorized    = "Unauthorized"
	MsgForbidden       = "Forbidden"
	MsgTicketNotFound  = "Ticket not found"
	MsgInvalidRequest  = "Invalid request"
	MsgInternalError   = "Internal server error"
	MsgRewardFulfilled = "Reward fulfilled"
)

// success writes {"success": true, ...fields} with status 200.
func success(c *fiber.Ctx, fields fiber.Map) error {
	body := fiber.Map{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// fail writes {"error": msg}.
func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// failValidation writes {"error": msg, "details": {...}} with status 400.
func failValidation(c *fiber.Ctx, msg string, details map[string]string) error {
	body := fiber.Map{"error": msg}
	if len(details) > 0 {
		body["details"] = details
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// validationDetails maps each failing JSON field to the rule it failed.
func validationDetails(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	details := make(map[string]string, len(ve))
	for _, fe := range ve {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

// ErrorHandler renders errors that escape handlers, including recovered
// panics and unknown routes, as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return fail(c, fe.Code, fe.Message)
	}
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("unhandled error")
	return fail(c, fiber.StatusInternalServerError, MsgInternalError)
}
