package domain

import "errors"

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidInvoice        = errors.New("invalid_invoice")
	ErrInvalidInvoiceID      = errors.New("invalid_invoice_id")
	ErrCurrencyMismatch      = errors.New("currency_mismatch")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInvoiceNotPayable     = errors.New("invoice_not_payable")
	ErrInvoiceNumberConflict = errors.New("invoice_number_conflict")
	ErrInvalidPaymentRef     = errors.New("invalid_payment_reference")
)
