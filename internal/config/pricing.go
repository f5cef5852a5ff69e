package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingConfig is the operator-tunable pricing policy. Everything except the
// country and currency tables may be hot reloaded.
type PricingConfig struct {
	BaseCurrency          string             `mapstructure:"base_currency"`
	DefaultTaxRate        string             `mapstructure:"default_tax_rate"`
	InvoiceNumberTemplate string             `mapstructure:"invoice_number_template"`
	ExchangeRates         ExchangeRateConfig `mapstructure:"exchange_rates"`
	PublicRateLimit       PublicRateLimit    `mapstructure:"public_rate_limit"`
	Countries             []CountryConfig    `mapstructure:"countries"`
	Currencies            []CurrencyConfig   `mapstructure:"currencies"`
	DefaultTaxRules       []TaxRuleConfig    `mapstructure:"default_tax_rules"`
}

type ExchangeRateConfig struct {
	MaxAge              time.Duration     `mapstructure:"max_age"`
	RefreshInterval     time.Duration     `mapstructure:"refresh_interval"`
	ServeStale          bool              `mapstructure:"serve_stale"`
	AllowParityFallback bool              `mapstructure:"allow_parity_fallback"`
	Static              map[string]string `mapstructure:"static"`
}

type PublicRateLimit struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type CountryConfig struct {
	Code        string `mapstructure:"code"`
	Name        string `mapstructure:"name"`
	LocalName   string `mapstructure:"local_name"`
	Currency    string `mapstructure:"currency"`
	TaxCategory string `mapstructure:"tax_category"`
}

type CurrencyConfig struct {
	Code      string `mapstructure:"code"`
	Symbol    string `mapstructure:"symbol"`
	Name      string `mapstructure:"name"`
	MinorUnit int32  `mapstructure:"minor_unit"`
}

type TaxRuleConfig struct {
	Country string `mapstructure:"country"`
	Rate    string `mapstructure:"rate"`
	Notes   string `mapstructure:"notes"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BaseCurrency:          "USD",
		DefaultTaxRate:        "0",
		InvoiceNumberTemplate: "INV-{YYYY}-{SEQ6}",
		ExchangeRates: ExchangeRateConfig{
			MaxAge:              6 * time.Hour,
			RefreshInterval:     time.Hour,
			ServeStale:          true,
			AllowParityFallback: false,
			Static: map[string]string{
				"SAR": "3.75",
				"AED": "3.6725",
				"KWD": "0.307",
				"QAR": "3.64",
				"BHD": "0.376",
				"OMR": "0.3845",
				"EGP": "48.50",
				"JOD": "0.709",
				"IQD": "1310",
				"GBP": "0.79",
				"JPY": "150",
			},
		},
		PublicRateLimit: PublicRateLimit{Rate: 5, Burst: 20},
		Countries: []CountryConfig{
			{Code: "SA", Name: "Saudi Arabia", LocalName: "المملكة العربية السعودية", Currency: "SAR", TaxCategory: "vat"},
			{Code: "AE", Name: "United Arab Emirates", LocalName: "الإمارات العربية المتحدة", Currency: "AED", TaxCategory: "vat"},
			{Code: "KW", Name: "Kuwait", LocalName: "الكويت", Currency: "KWD", TaxCategory: "none"},
			{Code: "QA", Name: "Qatar", LocalName: "قطر", Currency: "QAR", TaxCategory: "none"},
			{Code: "BH", Name: "Bahrain", LocalName: "البحرين", Currency: "BHD", TaxCategory: "vat"},
			{Code: "OM", Name: "Oman", LocalName: "عُمان", Currency: "OMR", TaxCategory: "vat"},
			{Code: "EG", Name: "Egypt", LocalName: "مصر", Currency: "EGP", TaxCategory: "vat"},
			{Code: "JO", Name: "Jordan", LocalName: "الأردن", Currency: "JOD", TaxCategory: "sales_tax"},
			{Code: "IQ", Name: "Iraq", LocalName: "العراق", Currency: "IQD", TaxCategory: "none"},
			{Code: "US", Name: "United States", LocalName: "الولايات المتحدة", Currency: "USD", TaxCategory: "sales_tax"},
			{Code: "GB", Name: "United Kingdom", LocalName: "المملكة المتحدة", Currency: "GBP", TaxCategory: "vat"},
			{Code: "JP", Name: "Japan", LocalName: "اليابان", Currency: "JPY", TaxCategory: "vat"},
		},
		Currencies: []CurrencyConfig{
			{Code: "SAR", Symbol: "ر.س", Name: "Saudi Riyal", MinorUnit: 2},
			{Code: "AED", Symbol: "د.إ", Name: "UAE Dirham", MinorUnit: 2},
			{Code: "KWD", Symbol: "د.ك", Name: "Kuwaiti Dinar", MinorUnit: 3},
			{Code: "QAR", Symbol: "ر.ق", Name: "Qatari Riyal", MinorUnit: 2},
			{Code: "BHD", Symbol: ".د.ب", Name: "Bahraini Dinar", MinorUnit: 3},
			{Code: "OMR", Symbol: "ر.ع.", Name: "Omani Rial", MinorUnit: 3},
			{Code: "EGP", Symbol: "ج.م", Name: "Egyptian Pound", MinorUnit: 2},
			{Code: "JOD", Symbol: "د.ا", Name: "Jordanian Dinar", MinorUnit: 3},
			{Code: "IQD", Symbol: "ع.د", Name: "Iraqi Dinar", MinorUnit: 3},
			{Code: "USD", Symbol: "$", Name: "US Dollar", MinorUnit: 2},
			{Code: "GBP", Symbol: "£", Name: "Pound Sterling", MinorUnit: 2},
			{Code: "JPY", Symbol: "¥", Name: "Japanese Yen", MinorUnit: 0},
		},
		DefaultTaxRules: []TaxRuleConfig{
			{Country: "SA", Rate: "15", Notes: "VAT"},
			{Country: "AE", Rate: "5", Notes: "VAT"},
			{Country: "BH", Rate: "10", Notes: "VAT"},
			{Country: "OM", Rate: "5", Notes: "VAT"},
			{Country: "EG", Rate: "14", Notes: "VAT"},
			{Country: "JO", Rate: "16", Notes: "General sales tax"},
			{Country: "GB", Rate: "20", Notes: "VAT"},
			{Country: "JP", Rate: "10", Notes: "Consumption tax"},
		},
	}
}

// DefaultTaxRateDecimal returns the fallback rate used when a country has no rule.
func (c PricingConfig) DefaultTaxRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultTaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// StaticRates parses the configured static rate table, skipping invalid rows.
func (c ExchangeRateConfig) StaticRates() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.Static))
	for code, raw := range c.Static {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !rate.IsPositive() {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return out
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder(cfg Config, log *zap.Logger) (*PricingConfigHolder, error) {
	log = log.Named("pricing.config")
	v := viper.New()

	if cfg.PricingConfigFile != "" {
		v.SetConfigFile(cfg.PricingConfigFile)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/estate")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ESTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loaded := DefaultPricingConfig()
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
		log.Info("pricing config file not found, using defaults")
	}
	if fileFound {
		if err := v.UnmarshalKey("pricing", &loaded); err != nil {
			return nil, err
		}
	}
	if err := ValidatePricingConfig(loaded); err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfigHolder(loaded)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultPricingConfig()
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Warn("pricing config reload failed", zap.Error(err))
			return
		}
		if err := ValidatePricingConfig(updated); err != nil {
			log.Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPricingConfigHolder wraps a fixed config without file watching.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func ValidatePricingConfig(cfg PricingConfig) error {
	if len(strings.TrimSpace(cfg.BaseCurrency)) != 3 {
		return errors.New("pricing.base_currency must be a 3 letter code")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultTaxRate))
	if err != nil {
		return fmt.Errorf("pricing.default_tax_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("pricing.default_tax_rate must be within [0, 100]")
	}
	if strings.TrimSpace(cfg.InvoiceNumberTemplate) == "" {
		return errors.New("pricing.invoice_number_template cannot be empty")
	}
	if cfg.ExchangeRates.MaxAge <= 0 {
		return errors.New("pricing.exchange_rates.max_age must be positive")
	}
	if cfg.ExchangeRates.RefreshInterval <= 0 {
		return errors.New("pricing.exchange_rates.refresh_interval must be positive")
	}
	if len(cfg.Countries) == 0 {
		return errors.New("pricing.countries cannot be empty")
	}
	if len(cfg.Currencies) == 0 {
		return errors.New("pricing.currencies cannot be empty")
	}
	return nil
}
