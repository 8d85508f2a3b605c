package handlers

import (
	"net/http"

	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type TreasuryHandler struct {
	service *services.UnderwritingService
}

func NewTreasuryHandler(service *services.UnderwritingService) *TreasuryHandler {
	return &TreasuryHandler{service: service}
}

func (h *TreasuryHandler) Register(app *fiber.App) {
	treasuryGroup := app.Group("/underwriting/protected/api/v1/treasury")

	treasuryGroup.Post("/reserves/fund", h.FundReserves)
	treasuryGroup.Post("/reserves/withdraw", h.WithdrawReserves)
	treasuryGroup.Post("/fees/withdraw", h.WithdrawFees)
	treasuryGroup.Post("/rebalance", h.Rebalance)
	treasuryGroup.Get("/state", h.GetState)
}

func (h *TreasuryHandler) FundReserves(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.ReserveRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.FundReserves(c.Context(), caller, req.Amount); err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.TreasuryState()))
}

func (h *TreasuryHandler) WithdrawReserves(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.ReserveRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.WithdrawReserves(c.Context(), caller, req.Amount, req.Recipient); err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.TreasuryState()))
}

func (h *TreasuryHandler) WithdrawFees(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.ReserveRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.WithdrawFees(c.Context(), caller, req.Amount, req.Recipient); err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.TreasuryState()))
}

func (h *TreasuryHandler) Rebalance(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	moved, err := h.service.RebalanceTreasury(c.Context(), caller)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"moved": moved,
		"state": h.service.TreasuryState(),
	}))
}

func (h *TreasuryHandler) GetState(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.TreasuryState()))
}
