package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ListModels queries GET /api/tags for the models the server has
// pulled. Discovery is best-effort: any failure, non-200 status, or
// empty list falls back to the default model so the caller always has
// something to offer.
func (c *ollamaClient) ListModels(ctx context.Context) []string {
	fallback := []string{c.cfg.DefaultModel}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/api/tags"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallback
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("model discovery failed, using default",
			zap.String("default", c.cfg.DefaultModel),
			zap.Error(err),
		)
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("model discovery returned non-200, using default",
			zap.Int("status", resp.StatusCode),
			zap.String("default", c.cfg.DefaultModel),
		)
		return fallback
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		c.logger.Warn("model discovery decode failed, using default", zap.Error(err))
		return fallback
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	if len(models) == 0 {
		return fallback
	}
	return models
}
