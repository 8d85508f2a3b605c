package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"underwriting-service/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client fetches externally assessed crop damage severity from the damage
// oracle service. Readings are cached in Redis so repeated calculation
// attempts for the same policy do not hammer the oracle.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

type damageResponse struct {
	PolicyID  string `json:"policy_id"`
	DamageBps int64  `json:"damage_bps"`
	Source    string `json:"source"`
}

func NewClient(cfg config.OracleConfig, cache *redis.Client) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		cache:      cache,
		cacheTTL:   time.Duration(cfg.CacheTTLSecs) * time.Second,
	}
}

// DamagePercentageBps returns the assessed damage for a policy on a basis
// point scale. A cached reading is served when present; cache failures are
// logged and the oracle is queried directly.
func (c *Client) DamagePercentageBps(ctx context.Context, policyID uuid.UUID) (int64, error) {
	cacheKey := fmt.Sprintf("damage_oracle:%s", policyID)

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			if bps, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return bps, nil
			}
		} else if err != redis.Nil {
			slog.Warn("damage oracle cache read failed", "policy_id", policyID, "error", err)
		}
	}

	url := fmt.Sprintf("%s/api/v1/damage/%s", c.baseURL, policyID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create oracle request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call damage oracle: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read oracle response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("damage oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var reading damageResponse
	if err := json.Unmarshal(body, &reading); err != nil {
		return 0, fmt.Errorf("failed to parse oracle response: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, strconv.FormatInt(reading.DamageBps, 10), c.cacheTTL).Err(); err != nil {
			slog.Warn("damage oracle cache write failed", "policy_id", policyID, "error", err)
		}
	}

	return reading.DamageBps, nil
}
