package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opcost/internal"
	"opcost/internal/config"
	"opcost/internal/util"
)

// Client fetches sheet specs from the shop-management API, the optional
// remote source for the stock catalog.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type specsPayload struct {
	Specs []map[string]any `json:"sheetSpecs"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CatalogRateRPS),
	}
}

func (c *Client) GetSheetSpecs(ctx context.Context) ([]internal.SheetSpec, error) {
	body, err := c.fetchJSON(ctx, "stock/sheet-specs", map[string]string{})
	if err != nil {
		return nil, err
	}

	var payload specsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	specs := make([]internal.SheetSpec, 0, len(payload.Specs))
	for _, raw := range payload.Specs {
		spec, err := toSheetSpec(raw)
		if err != nil {
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if err := c.cfg.Require("CATALOG_API_TOKEN", c.cfg.CatalogAPIToken); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(c.cfg.CatalogAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.CatalogAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("catalog status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("catalog api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("catalog api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toSheetSpec(raw map[string]any) (internal.SheetSpec, error) {
	id, _ := raw["id"].(string)
	material, _ := raw["materialName"].(string)
	material = util.NormalizeText(material)
	if material == "" {
		return internal.SheetSpec{}, errors.New("empty material name")
	}

	thickness := toFloat(raw["thicknessMm"])
	width := toFloat(raw["widthMm"])
	height := toFloat(raw["heightMm"])
	cost := toFloat(raw["costPerSheet"])
	if thickness <= 0 || width <= 0 || height <= 0 || cost <= 0 {
		return internal.SheetSpec{}, errors.New("incomplete sheet spec")
	}

	if strings.TrimSpace(id) == "" {
		id = fmt.Sprintf("%s-%g", material, thickness)
	}

	return internal.SheetSpec{
		ID:                id,
		MaterialName:      internal.MaterialName(material),
		ThicknessMM:       thickness,
		WidthMM:           width,
		HeightMM:          height,
		CostPerSheet:      cost,
		DefaultScrap:      toFloat(raw["defaultScrap"]),
		DefaultEfficiency: toFloat(raw["defaultEfficiency"]),
	}, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	}
	return 0
}
