package reference

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/reference/domain"
)

var (
	countryCodePattern  = regexp.MustCompile(`^[A-Z]{2}$`)
	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Registry is the immutable country and currency lookup table.
type Registry struct {
	countries  map[string]domain.CountryProfile
	currencies map[string]domain.Currency
}

// NewRegistry builds the registry from the pricing configuration. The tables
// are read once; later config reloads do not change them.
func NewRegistry(holder *config.PricingConfigHolder) (*Registry, error) {
	return BuildRegistry(holder.Get())
}

func BuildRegistry(cfg config.PricingConfig) (*Registry, error) {
	r := &Registry{
		countries:  make(map[string]domain.CountryProfile, len(cfg.Countries)),
		currencies: make(map[string]domain.Currency, len(cfg.Currencies)),
	}

	for _, item := range cfg.Currencies {
		code := normalize(item.Code)
		if !currencyCodePattern.MatchString(code) {
			return nil, fmt.Errorf("%w: currency code %q", domain.ErrInvalidReference, item.Code)
		}
		if _, dup := r.currencies[code]; dup {
			return nil, fmt.Errorf("%w: duplicate currency %s", domain.ErrInvalidReference, code)
		}
		if item.MinorUnit < 0 || item.MinorUnit > 4 {
			return nil, fmt.Errorf("%w: currency %s minor unit %d", domain.ErrInvalidReference, code, item.MinorUnit)
		}
		r.currencies[code] = domain.Currency{
			Code:      code,
			Name:      strings.TrimSpace(item.Name),
			Symbol:    strings.TrimSpace(item.Symbol),
			MinorUnit: item.MinorUnit,
		}
	}

	for _, item := range cfg.Countries {
		code := normalize(item.Code)
		if !countryCodePattern.MatchString(code) {
			return nil, fmt.Errorf("%w: country code %q", domain.ErrInvalidReference, item.Code)
		}
		if _, dup := r.countries[code]; dup {
			return nil, fmt.Errorf("%w: duplicate country %s", domain.ErrInvalidReference, code)
		}
		currency, ok := r.currencies[normalize(item.Currency)]
		if !ok {
			return nil, fmt.Errorf("%w: country %s references unknown currency %q", domain.ErrInvalidReference, code, item.Currency)
		}
		category := domain.TaxCategory(strings.ToLower(strings.TrimSpace(item.TaxCategory)))
		switch category {
		case domain.TaxCategoryVAT, domain.TaxCategorySalesTax, domain.TaxCategoryNone:
		case "":
			category = domain.TaxCategoryNone
		default:
			return nil, fmt.Errorf("%w: country %s tax category %q", domain.ErrInvalidReference, code, item.TaxCategory)
		}
		r.countries[code] = domain.CountryProfile{
			Code:           code,
			Name:           strings.TrimSpace(item.Name),
			LocalName:      strings.TrimSpace(item.LocalName),
			CurrencyCode:   currency.Code,
			CurrencySymbol: currency.Symbol,
			TaxCategory:    category,
		}
	}

	return r, nil
}

func (r *Registry) Country(code string) (domain.CountryProfile, error) {
	country, ok := r.countries[normalize(code)]
	if !ok {
		return domain.CountryProfile{}, domain.ErrUnsupportedCountry
	}
	return country, nil
}

func (r *Registry) Currency(code string) (domain.Currency, error) {
	currency, ok := r.currencies[normalize(code)]
	if !ok {
		return domain.Currency{}, domain.ErrUnsupportedCurrency
	}
	return currency, nil
}

// CountryCurrency resolves the country together with its currency.
func (r *Registry) CountryCurrency(code string) (domain.CountryProfile, domain.Currency, error) {
	country, err := r.Country(code)
	if err != nil {
		return domain.CountryProfile{}, domain.Currency{}, err
	}
	currency, err := r.Currency(country.CurrencyCode)
	if err != nil {
		return domain.CountryProfile{}, domain.Currency{}, err
	}
	return country, currency, nil
}

func (r *Registry) IsCountry(code string) bool {
	_, ok := r.countries[normalize(code)]
	return ok
}

func (r *Registry) IsCurrency(code string) bool {
	_, ok := r.currencies[normalize(code)]
	return ok
}

func (r *Registry) Countries() []domain.CountryProfile {
	out := make([]domain.CountryProfile, 0, len(r.countries))
	for _, country := range r.countries {
		out = append(out, country)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *Registry) Currencies() []domain.Currency {
	out := make([]domain.Currency, 0, len(r.currencies))
	for _, currency := range r.currencies {
		out = append(out, currency)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
