package handlers

import (
	"context"
	"net/http"
	"strconv"

	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

// PublisherStatus exposes event publisher counters to the health endpoint.
type PublisherStatus interface {
	GetMetrics() map[string]any
	HealthCheck() bool
}

// CachePinger reports damage-oracle cache reachability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

type AdminHandler struct {
	service   *services.UnderwritingService
	publisher PublisherStatus
	cache     CachePinger
}

func NewAdminHandler(service *services.UnderwritingService, publisher PublisherStatus, cache CachePinger) *AdminHandler {
	return &AdminHandler{service: service, publisher: publisher, cache: cache}
}

func (h *AdminHandler) Register(app *fiber.App) {
	app.Get("/checkhealth", h.CheckHealth)

	adminGroup := app.Group("/underwriting/protected/api/v1/admin")
	adminGroup.Post("/pause", h.Pause)
	adminGroup.Post("/unpause", h.Unpause)
	adminGroup.Put("/parameters", h.UpdateParameters)
	adminGroup.Get("/invariants", h.CheckInvariants)
	adminGroup.Get("/ledger", h.GetLedger)
	adminGroup.Get("/audit/policies/:id", h.GetJournaledPolicy)
	adminGroup.Get("/audit/policies/owner/:owner_id", h.GetJournaledPoliciesByOwner)
	adminGroup.Get("/audit/payouts/:id", h.GetJournaledPayout)
	adminGroup.Get("/audit/payouts/by-policy/:policy_id", h.GetJournaledPayoutsByPolicy)
}

func (h *AdminHandler) CheckHealth(c fiber.Ctx) error {
	health := map[string]any{
		"status": "ok",
		"paused": h.service.Paused(),
	}
	if h.publisher != nil {
		health["publisher"] = h.publisher.GetMetrics()
		health["publisher_healthy"] = h.publisher.HealthCheck()
	}
	if h.cache != nil {
		health["cache_healthy"] = h.cache.Ping(c.Context()) == nil
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(health))
}

func (h *AdminHandler) Pause(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.service.Pause(caller); err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{"paused": true}))
}

func (h *AdminHandler) Unpause(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.service.Unpause(caller); err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{"paused": false}))
}

func (h *AdminHandler) UpdateParameters(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req models.UpdateParametersRequest
	if err := c.Bind().Body(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.service.UpdateParameters(caller, req); err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{"updated": true}))
}

func (h *AdminHandler) CheckInvariants(c fiber.Ctx) error {
	if err := h.service.CheckInvariants(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("INVARIANT_VIOLATION", err.Error()))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{"consistent": true}))
}

func (h *AdminHandler) GetLedger(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if caller.Role != models.RoleAdministrator {
		return c.Status(http.StatusForbidden).JSON(
			utils.CreateErrorResponse("FORBIDDEN", "ledger access requires the administrator role"))
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	entries, err := h.service.LedgerEntries(c.Context(), limit)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"entries": entries,
		"count":   len(entries),
	}))
}

// requireAdmin gates the journal audit views the same way as the ledger.
func (h *AdminHandler) requireAdmin(c fiber.Ctx) (bool, error) {
	caller, ok := callerFrom(c)
	if !ok {
		return false, unauthorized(c)
	}
	if caller.Role != models.RoleAdministrator {
		return false, c.Status(http.StatusForbidden).JSON(
			utils.CreateErrorResponse("FORBIDDEN", "audit access requires the administrator role"))
	}
	return true, nil
}

func (h *AdminHandler) GetJournaledPolicy(c fiber.Ctx) error {
	if ok, err := h.requireAdmin(c); !ok {
		return err
	}

	policyID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	policy, err := h.service.JournaledPolicy(c.Context(), policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (h *AdminHandler) GetJournaledPoliciesByOwner(c fiber.Ctx) error {
	if ok, err := h.requireAdmin(c); !ok {
		return err
	}

	ownerID := c.Params("owner_id")
	policies, err := h.service.JournaledPoliciesByOwner(c.Context(), ownerID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"owner_id": ownerID,
		"policies": policies,
		"count":    len(policies),
	}))
}

func (h *AdminHandler) GetJournaledPayout(c fiber.Ctx) error {
	if ok, err := h.requireAdmin(c); !ok {
		return err
	}

	payoutID, err := parseUUIDParam(c, "id")
	if err != nil {
		return invalidUUID(c, "payout")
	}

	payout, err := h.service.JournaledPayout(c.Context(), payoutID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(payout))
}

func (h *AdminHandler) GetJournaledPayoutsByPolicy(c fiber.Ctx) error {
	if ok, err := h.requireAdmin(c); !ok {
		return err
	}

	policyID, err := parseUUIDParam(c, "policy_id")
	if err != nil {
		return invalidUUID(c, "policy")
	}

	payouts, err := h.service.JournaledPayoutsByPolicy(c.Context(), policyID)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"policy_id": policyID,
		"payouts":   payouts,
		"count":     len(payouts),
	}))
}
