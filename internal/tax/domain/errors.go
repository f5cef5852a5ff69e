package domain

import "errors"

var (
	ErrInvalidRate   = errors.New("invalid_tax_rate")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrNotFound      = errors.New("tax_rule_not_found")
)
