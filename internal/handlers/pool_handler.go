package handlers

import (
	"net/http"

	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type PoolHandler struct {
	service *services.UnderwritingService
}

func NewPoolHandler(service *services.UnderwritingService) *PoolHandler {
	return &PoolHandler{service: service}
}

func (h *PoolHandler) Register(app *fiber.App) {
	poolGroup := app.Group("/underwriting/protected/api/v1/pool")

	poolGroup.Post("/stake", h.Stake)
	poolGroup.Post("/unstake", h.Unstake)
	poolGroup.Post("/rewards/claim", h.ClaimRewards)
	poolGroup.Post("/rewards/distribute", h.DistributeRewards)
	poolGroup.Get("/state", h.GetState)
	poolGroup.Get("/positions/me", h.GetOwnPosition)
}

func (h *PoolHandler) Stake(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.StakeRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	shares, err := h.service.Stake(c.Context(), caller, req.Amount)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"staker_id":     caller.ID,
		"amount":        req.Amount,
		"shares_minted": shares,
	}))
}

func (h *PoolHandler) Unstake(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.UnstakeRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	amount, err := h.service.Unstake(c.Context(), caller, req.Shares)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"staker_id":       caller.ID,
		"shares_burned":   req.Shares,
		"amount_returned": amount,
	}))
}

func (h *PoolHandler) ClaimRewards(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	amount, err := h.service.ClaimRewards(c.Context(), caller)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"staker_id":      caller.ID,
		"amount_claimed": amount,
	}))
}

func (h *PoolHandler) DistributeRewards(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.DistributeRewardsRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.DistributeRewards(c.Context(), caller, req.Amount); err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"amount_distributed": req.Amount,
	}))
}

func (h *PoolHandler) GetState(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.service.PoolState()))
}

func (h *PoolHandler) GetOwnPosition(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	position, err := h.service.Position(caller.ID)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"position":        position,
		"pending_rewards": h.service.PendingRewards(caller.ID),
	}))
}
