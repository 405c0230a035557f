package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"opcost/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestGetSheetSpecsWithRetry(t *testing.T) {
	attempt := 0

	cfg, _ := config.Load()
	cfg.CatalogAPIToken = "test"
	cfg.CatalogAPIBaseURL = "https://example.test/api/v1"
	cfg.CatalogRateRPS = 1000

	client := NewClient(cfg)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/stock/sheet-specs" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test" {
				t.Fatalf("missing auth header")
			}
			attempt++
			if attempt == 1 {
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Body:       io.NopCloser(strings.NewReader(`{"error":"maintenance"}`)),
					Header:     make(http.Header),
				}, nil
			}

			payload := map[string]any{"success": true, "data": map[string]any{"sheetSpecs": []map[string]any{
				{"id": "304-1.2", "materialName": "#304", "thicknessMm": 1.2, "widthMm": 1000, "heightMm": 2000, "costPerSheet": 500},
				{"materialName": "GALV", "thicknessMm": 0.9, "widthMm": 1200, "heightMm": 2400, "costPerSheet": 300},
				{"materialName": "", "thicknessMm": 1.0},
			}}}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	specs, err := client.GetSheetSpecs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	if len(specs) != 2 {
		t.Fatalf("len=%d", len(specs))
	}
	if specs[1].ID != "GALV-0.9" {
		t.Fatalf("generated id: %q", specs[1].ID)
	}
}

func TestGetSheetSpecsRequiresToken(t *testing.T) {
	cfg, _ := config.Load()
	cfg.CatalogAPIToken = ""
	client := NewClient(cfg)
	if _, err := client.GetSheetSpecs(context.Background()); err == nil {
		t.Fatalf("want error without token")
	}
}
