package domain

import "errors"

var (
	ErrUnsupportedCountry  = errors.New("unsupported_country")
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrInvalidReference    = errors.New("invalid_reference_data")
)
