package worker

import (
	"context"
	"log/slog"
	"time"

	"underwriting-service/internal/engine"
	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
)

// ExpirationScheduler sweeps policies past their coverage window on a fixed
// interval. It runs as the internal scheduler principal with the operator
// role, so the sweep observes the same authorization and pause rules as any
// external caller.
type ExpirationScheduler struct {
	service  *services.UnderwritingService
	interval time.Duration
	ticker   *time.Ticker
}

func NewExpirationScheduler(service *services.UnderwritingService, interval time.Duration) *ExpirationScheduler {
	return &ExpirationScheduler{
		service:  service,
		interval: interval,
		ticker:   time.NewTicker(interval),
	}
}

func (s *ExpirationScheduler) Run(ctx context.Context) {
	slog.Info("expiration scheduler running", "interval", s.interval)
	defer s.ticker.Stop()

	for {
		select {
		case <-s.ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("expiration scheduler shutting down")
			return
		}
	}
}

func (s *ExpirationScheduler) sweep(ctx context.Context) {
	caller := engine.Caller{ID: "scheduler", Role: models.RoleOperator}

	result, err := s.service.ExpireDuePolicies(ctx, caller)
	if err != nil {
		// Sweeps fail while the engine is paused; the next tick retries.
		slog.Warn("expiration sweep rejected", "error", err)
		return
	}
	if result.SuccessCount > 0 || result.FailureCount > 0 {
		slog.Info("expiration sweep completed",
			"expired", result.SuccessCount,
			"failed", result.FailureCount,
		)
	}
}
