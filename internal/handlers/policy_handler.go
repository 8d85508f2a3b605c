package handlers

import (
	"net/http"

	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type PolicyHandler struct {
	service *services.UnderwritingService
}

func NewPolicyHandler(service *services.UnderwritingService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

func (h *PolicyHandler) Register(app *fiber.App) {
	policyGroup := app.Group("/underwriting/protected/api/v1/policies")

	policyGroup.Post("/", h.CreatePolicy)
	policyGroup.Post("/:id/activate", h.ActivatePolicy)
	policyGroup.Post("/:id/trigger", h.TriggerPolicy)
	policyGroup.Post("/:id/cancel", h.CancelPolicy)
	policyGroup.Post("/:id/expire", h.ExpirePolicy)
	policyGroup.Post("/batch-expire", h.BatchExpirePolicies)
	policyGroup.Get("/:id", h.GetPolicy)
	policyGroup.Get("/owner/:owner_id", h.GetPoliciesByOwner)
	policyGroup.Get("/owner/:owner_id/record", h.GetOwnerRecord)
}

func (h *PolicyHandler) CreatePolicy(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.CreatePolicyRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	policy, err := h.service.CreatePolicy(c.Context(), caller, req)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(policy))
}

func (h *PolicyHandler) ActivatePolicy(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	if err := h.service.ActivatePolicy(c.Context(), caller, policyID); err != nil {
		return domainError(c, err)
	}

	policy, err := h.service.GetPolicy(policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (h *PolicyHandler) TriggerPolicy(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	if err := h.service.TriggerPolicy(c.Context(), caller, policyID); err != nil {
		return domainError(c, err)
	}

	policy, err := h.service.GetPolicy(policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (h *PolicyHandler) CancelPolicy(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	if err := h.service.CancelPolicy(c.Context(), caller, policyID); err != nil {
		return domainError(c, err)
	}

	policy, err := h.service.GetPolicy(policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"policy":          policy,
		"refunded_amount": policy.RefundedAmount,
	}))
}

func (h *PolicyHandler) ExpirePolicy(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	if err := h.service.ExpirePolicy(c.Context(), caller, policyID); err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"policy_id": policyID,
		"status":    models.PolicyExpired,
	}))
}

func (h *PolicyHandler) BatchExpirePolicies(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.BatchExpireRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	result, err := h.service.BatchExpirePolicies(c.Context(), caller, req.PolicyIDs)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(result))
}

func (h *PolicyHandler) GetPolicy(c fiber.Ctx) error {
	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	policy, err := h.service.GetPolicy(policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (h *PolicyHandler) GetPoliciesByOwner(c fiber.Ctx) error {
	ownerID := c.Params("owner_id")
	policies := h.service.PoliciesByOwner(ownerID)

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"owner_id": ownerID,
		"policies": policies,
		"count":    len(policies),
	}))
}

func (h *PolicyHandler) GetOwnerRecord(c fiber.Ctx) error {
	ownerID := c.Params("owner_id")
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.OwnerRecord(ownerID)))
}
