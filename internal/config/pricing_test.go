package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultPricingConfigIsValid(t *testing.T) {
	cfg := DefaultPricingConfig()
	require.NoError(t, ValidatePricingConfig(cfg))
	assert.True(t, cfg.DefaultTaxRateDecimal().IsZero())

	rates := cfg.ExchangeRates.StaticRates()
	assert.True(t, rates["SAR"].Equal(decimal.RequireFromString("3.75")))
}

func TestValidatePricingConfigRejectsOutOfRangeDefaultRate(t *testing.T) {
	cfg := DefaultPricingConfig()
	cfg.DefaultTaxRate = "101"
	assert.Error(t, ValidatePricingConfig(cfg))

	cfg.DefaultTaxRate = "abc"
	assert.Error(t, ValidatePricingConfig(cfg))
}

func TestStaticRatesSkipsInvalidRows(t *testing.T) {
	cfg := ExchangeRateConfig{Static: map[string]string{"aed": "3.67", "xxx": "-1", "yyy": "n/a"}}
	rates := cfg.StaticRates()
	assert.Len(t, rates, 1)
	assert.Contains(t, rates, "AED")
}

func TestNewPricingConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := []byte(`pricing:
  base_currency: USD
  default_tax_rate: "2.5"
  invoice_number_template: "INV-{YYYY}-{SEQ6}"
  exchange_rates:
    max_age: 30m
    refresh_interval: 5m
    allow_parity_fallback: true
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPricingConfigHolder(Config{PricingConfigFile: path}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.True(t, got.DefaultTaxRateDecimal().Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 30*time.Minute, got.ExchangeRates.MaxAge)
	assert.True(t, got.ExchangeRates.AllowParityFallback)
	assert.NotEmpty(t, got.Countries)
}
