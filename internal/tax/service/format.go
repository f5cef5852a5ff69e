package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
)

// FormatBreakdown renders the quote for display. It only formats; the same
// quote always produces the same strings.
func (s *Service) FormatBreakdown(quote taxdomain.Quote, currencySymbol string) taxdomain.Breakdown {
	return FormatBreakdown(quote, currencySymbol)
}

func FormatBreakdown(quote taxdomain.Quote, currencySymbol string) taxdomain.Breakdown {
	symbol := strings.TrimSpace(currencySymbol)
	if symbol == "" {
		symbol = quote.CurrencySymbol
	}

	label := quote.TaxLabel
	if label == "" {
		label = "Tax"
	}
	if quote.IsExempt {
		label += " (exempt)"
	} else {
		label = fmt.Sprintf("%s (%s%%)", label, quote.TaxRate.String())
	}

	return taxdomain.Breakdown{
		Subtotal: FormatMoney(quote.Subtotal, quote.Scale, symbol),
		TaxLabel: label,
		Tax:      FormatMoney(quote.TaxAmount, quote.Scale, symbol),
		Total:    FormatMoney(quote.Total, quote.Scale, symbol),
		Currency: quote.CurrencyCode,
	}
}

// FormatMoney renders amount with thousands grouping at a fixed scale,
// e.g. "SAR 1,050.00".
func FormatMoney(amount decimal.Decimal, scale int32, symbol string) string {
	text := GroupThousands(amount.StringFixed(scale))
	if symbol == "" {
		return text
	}
	return symbol + " " + text
}

func GroupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
