package handlers

import (
	"net/http"

	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type PayoutHandler struct {
	service *services.UnderwritingService
}

func NewPayoutHandler(service *services.UnderwritingService) *PayoutHandler {
	return &PayoutHandler{service: service}
}

func (h *PayoutHandler) Register(app *fiber.App) {
	payoutGroup := app.Group("/underwriting/protected/api/v1/payouts")

	payoutGroup.Post("/initiate/:policy_id", h.InitiatePayout)
	payoutGroup.Post("/:id/calculate", h.CalculatePayout)
	payoutGroup.Post("/:id/approve", h.ApprovePayout)
	payoutGroup.Post("/:id/process", h.ProcessPayout)
	payoutGroup.Post("/:id/confirm", h.ConfirmPayout)
	payoutGroup.Post("/batches", h.CreateBatch)
	payoutGroup.Post("/batches/:id/process", h.ProcessBatch)
	payoutGroup.Get("/:id", h.GetPayout)
	payoutGroup.Get("/by-policy/:policy_id", h.GetPayoutsByPolicy)
}

func (h *PayoutHandler) InitiatePayout(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	policyID, err := parseUUIDParam(c, "policy_id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	payout, err := h.service.InitiatePayout(c.Context(), caller, policyID)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) CalculatePayout(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	if err := h.service.CalculatePayout(c.Context(), caller, payoutID); err != nil {
		return domainError(c, err)
	}

	payout, err := h.service.GetPayout(payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) ApprovePayout(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	if err := h.service.ApprovePayout(c.Context(), caller, payoutID); err != nil {
		return domainError(c, err)
	}

	payout, err := h.service.GetPayout(payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) ProcessPayout(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	if err := h.service.ProcessPayout(c.Context(), caller, payoutID); err != nil {
		return domainError(c, err)
	}

	payout, err := h.service.GetPayout(payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) ConfirmPayout(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	var req models.ConfirmPayoutRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.ConfirmPayout(c.Context(), caller, payoutID, req.SettlementRef); err != nil {
		return domainError(c, err)
	}

	payout, err := h.service.GetPayout(payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) CreateBatch(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.CreateBatchRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	batch, err := h.service.CreatePayoutBatch(caller, req.PayoutIDs)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(batch))
}

func (h *PayoutHandler) ProcessBatch(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	batchID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "batch")
	}

	result, err := h.service.ProcessPayoutBatch(c.Context(), caller, batchID)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(result))
}

func (h *PayoutHandler) GetPayout(c fiber.Ctx) error {
	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	payout, err := h.service.GetPayout(payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *PayoutHandler) GetPayoutsByPolicy(c fiber.Ctx) error {
	policyID, err := parseUUIDParam(c, "policy_id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	payouts := h.service.PayoutsByPolicy(policyID)
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"policy_id": policyID,
		"payouts":   payouts,
		"count":     len(payouts),
	}))
}
