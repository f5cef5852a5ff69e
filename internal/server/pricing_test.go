package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/estate/internal/config"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	obsmetrics "github.com/smallbiznis/estate/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// switchableSource fails every fetch once down is set.
type switchableSource struct {
	exchangeratedomain.Source
	down atomic.Bool
}

func (s *switchableSource) Fetch(ctx context.Context) (*exchangeratedomain.Snapshot, error) {
	if s.down.Load() {
		return nil, errors.New("connection refused")
	}
	return s.Source.Fetch(ctx)
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestCalculatePricingConvertsAndTaxes(t *testing.T) {
	ts := newTestServer(t, serverOption{})
	plan := ts.createPlan(t, "featured", "10")

	rec := ts.do(t, request{
		method: http.MethodPost,
		path:   "/workflow/calculate-pricing",
		body:   map[string]any{"planId": plan.ID.String(), "countryCode": "sa"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)

	pricing := body["pricing"].(map[string]any)
	assert.Equal(t, "37.50", pricing["amount"])
	assert.Equal(t, "SAR", pricing["currency_code"])
	assert.Equal(t, "3.75", pricing["rate"])
	assert.Equal(t, "converted", pricing["price_source"])
	assert.Equal(t, false, pricing["rate_fallback"])

	tax := pricing["tax"].(map[string]any)
	assert.Equal(t, "5.63", tax["tax_amount"])
	assert.Equal(t, "43.13", tax["total"])
	assert.Equal(t, "15", tax["tax_rate"])

	breakdown := body["breakdown"].(map[string]any)
	assert.Contains(t, breakdown["total"], "43.13")
}

func TestCalculatePricingExemptAndValidation(t *testing.T) {
	ts := newTestServer(t, serverOption{})
	plan := ts.createPlan(t, "basic", "20")

	rec := ts.do(t, request{
		method: http.MethodPost,
		path:   "/workflow/calculate-pricing",
		body:   map[string]any{"planId": plan.ID.String(), "countryCode": "AE", "isTaxExempt": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tax := decodeBody(t, rec)["pricing"].(map[string]any)["tax"].(map[string]any)
	assert.Equal(t, true, tax["is_exempt"])
	assert.Equal(t, "0.00", tax["tax_amount"])
	assert.Equal(t, tax["subtotal"], tax["total"])

	rec = ts.do(t, request{
		method: http.MethodPost,
		path:   "/workflow/calculate-pricing",
		body:   map[string]any{"planId": plan.ID.String(), "countryCode": "ZZ"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "countryCode", errorOf(t, rec)["errors"].([]any)[0].(map[string]any)["field"])

	rec = ts.do(t, request{
		method: http.MethodPost,
		path:   "/workflow/calculate-pricing",
		body:   map[string]any{"planId": "99", "countryCode": "AE"},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "plan_not_found", errorOf(t, rec)["code"])
}

func TestCalculatePricingParityFallback(t *testing.T) {
	withoutEGP := func(c *config.PricingConfig) {
		delete(c.ExchangeRates.Static, "EGP")
	}

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, serverOption{mutate: withoutEGP})
		plan := ts.createPlan(t, "featured", "10")

		rec := ts.do(t, request{
			method: http.MethodPost,
			path:   "/workflow/calculate-pricing",
			body:   map[string]any{"planId": plan.ID.String(), "countryCode": "EG"},
		})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
		payload := errorOf(t, rec)
		assert.Equal(t, "upstream_unavailable", payload["type"])
		assert.Equal(t, "rate_unavailable", payload["code"])
	})

	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, serverOption{mutate: func(c *config.PricingConfig) {
			withoutEGP(c)
			c.ExchangeRates.AllowParityFallback = true
		}})
		plan := ts.createPlan(t, "featured", "10")

		rec := ts.do(t, request{
			method: http.MethodPost,
			path:   "/workflow/calculate-pricing",
			body:   map[string]any{"planId": plan.ID.String(), "countryCode": "EG"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		pricing := decodeBody(t, rec)["pricing"].(map[string]any)
		assert.Equal(t, "10.00", pricing["amount"])
		assert.Equal(t, "EGP", pricing["currency_code"])
		assert.Equal(t, "1", pricing["rate"])
		assert.Equal(t, true, pricing["rate_fallback"])

		rec = ts.do(t, request{method: http.MethodGet, path: "/workflow/local-price?amount=5&country=EG"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		local := decodeBody(t, rec)["pricing"].(map[string]any)
		assert.Equal(t, "5.00", local["amount"])
		assert.Equal(t, true, local["rate_fallback"])
	})
}

func TestGetLocalPrice(t *testing.T) {
	ts := newTestServer(t, serverOption{})

	rec := ts.do(t, request{method: http.MethodGet, path: "/workflow/local-price?amount=100&country=AE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pricing := decodeBody(t, rec)["pricing"].(map[string]any)
	assert.Equal(t, "367.25", pricing["amount"])
	assert.Equal(t, "AED", pricing["currency_code"])
	assert.Equal(t, false, pricing["rate_stale"])

	// SAR to SAR needs no rate
	rec = ts.do(t, request{method: http.MethodGet, path: "/workflow/local-price?amount=12.345&country=SA&currency=SAR"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pricing = decodeBody(t, rec)["pricing"].(map[string]any)
	assert.Equal(t, "12.35", pricing["amount"])
	assert.Equal(t, "1", pricing["rate"])

	tests := []struct {
		name string
		path string
	}{
		{"missing amount", "/workflow/local-price?country=AE"},
		{"bad amount", "/workflow/local-price?amount=abc&country=AE"},
		{"negative amount", "/workflow/local-price?amount=-1&country=AE"},
		{"missing country", "/workflow/local-price?amount=1"},
		{"unknown country", "/workflow/local-price?amount=1&country=ZZ"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, request{method: http.MethodGet, path: tc.path})
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestListPlansWithCountry(t *testing.T) {
	ts := newTestServer(t, serverOption{})
	ts.createPlan(t, "basic", "5")
	ts.createPlan(t, "premium", "50")

	rec := ts.do(t, request{method: http.MethodGet, path: "/workflow/plans"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plans := decodeBody(t, rec)["data"].([]any)
	require.Len(t, plans, 2)
	assert.Nil(t, plans[0].(map[string]any)["pricing"])

	rec = ts.do(t, request{method: http.MethodGet, path: "/workflow/plans?country=JP"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plans = decodeBody(t, rec)["data"].([]any)
	require.Len(t, plans, 2)
	pricing := plans[0].(map[string]any)["pricing"].(map[string]any)
	assert.Equal(t, "JPY", pricing["currency_code"])
	assert.Equal(t, "750", pricing["amount"])
}

func TestAdminPlanPrices(t *testing.T) {
	ts := newTestServer(t, serverOption{})
	plan := ts.createPlan(t, "featured", "10")
	second := ts.createPlan(t, "spotlight", "25")
	path := "/workflow/admin/plans/" + plan.ID.String() + "/prices"

	rec := ts.do(t, request{method: http.MethodPut, path: path + "/SA", actor: &owner, body: map[string]any{"price": "40"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, request{method: http.MethodPut, path: path + "/SA", actor: &admin, body: map[string]any{"price": "40"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "SAR", stored["currency_code"])

	rec = ts.do(t, request{method: http.MethodPut, path: path + "/SA", actor: &admin, body: map[string]any{"price": "0"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_price", errorOf(t, rec)["code"])

	rec = ts.do(t, request{method: http.MethodGet, path: path, actor: &admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = ts.do(t, request{
		method: http.MethodPost,
		path:   "/workflow/calculate-pricing",
		body:   map[string]any{"planId": plan.ID.String(), "countryCode": "SA"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pricing := decodeBody(t, rec)["pricing"].(map[string]any)
	assert.Equal(t, "override", pricing["price_source"])
	assert.Equal(t, "40.00", pricing["amount"])

	rec = ts.do(t, request{
		method: http.MethodPut,
		path:   "/workflow/admin/plans/order",
		actor:  &admin,
		body:   map[string]any{"planIds": []string{second.ID.String(), plan.ID.String()}},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodGet, path: "/workflow/plans"})
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decodeBody(t, rec)["data"].([]any)
	assert.Equal(t, "spotlight", plans[0].(map[string]any)["code"])

	rec = ts.do(t, request{
		method: http.MethodPut,
		path:   "/workflow/admin/plans/order",
		actor:  &admin,
		body:   map[string]any{"planIds": []string{plan.ID.String(), plan.ID.String()}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaleQuoteIsCountedOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := obsmetrics.New(obsmetrics.Config{ServiceName: "estate"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	src := &switchableSource{}
	ts := newTestServer(t, serverOption{
		metrics: m,
		source: func(inner exchangeratedomain.Source) exchangeratedomain.Source {
			src.Source = inner
			return src
		},
	})

	rec := ts.do(t, request{method: http.MethodGet, path: "/workflow/local-price?amount=100&country=AE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Zero(t, counterTotal(t, reader, "estate_pricing_rate_stale_total"))

	ts.clock.Advance(7 * time.Hour)
	src.down.Store(true)

	rec = ts.do(t, request{method: http.MethodGet, path: "/workflow/local-price?amount=100&country=AE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["pricing"].(map[string]any)["rate_stale"])
	assert.Equal(t, int64(1), counterTotal(t, reader, "estate_pricing_rate_stale_total"))
}
