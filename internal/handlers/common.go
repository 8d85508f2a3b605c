package handlers

import (
	"net/http"

	"underwriting-service/internal/engine"
	"underwriting-service/internal/models"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// callerFrom builds the acting principal from the identity headers set by
// the gateway.
func callerFrom(c fiber.Ctx) (engine.Caller, bool) {
	userID := c.Get("X-User-ID")
	role := c.Get("X-User-Role")
	if userID == "" || role == "" {
		return engine.Caller{}, false
	}
	return engine.Caller{ID: userID, Role: models.Role(role)}, true
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(
		utils.CreateErrorResponse("UNAUTHORIZED", "X-User-ID and X-User-Role headers are required"))
}

func parseUUIDParam(c fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}

func invalidUUID(c fiber.Ctx, what string) error {
	return c.Status(http.StatusBadRequest).JSON(
		utils.CreateErrorResponse("INVALID_UUID", "Invalid "+what+" ID format"))
}

func invalidBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(
		utils.CreateErrorResponse("INVALID_BODY", "Request body could not be parsed"))
}

// domainError maps an engine failure onto an HTTP status by its classified
// kind; the envelope derives the matching wire code itself.
func domainError(c fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	switch models.KindOf(err) {
	case models.ErrValidation:
		status = http.StatusBadRequest
	case models.ErrAuthorization:
		status = http.StatusForbidden
	case models.ErrState:
		status = http.StatusConflict
	case models.ErrResource:
		status = http.StatusUnprocessableEntity
	case models.ErrNotFound:
		status = http.StatusNotFound
	}
	return c.Status(status).JSON(utils.CreateDomainErrorResponse(err))
}
