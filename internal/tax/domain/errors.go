package domain

import "errors"

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidTaxCode = errors.New("invalid_tax_code")
	ErrInvalidCountry = errors.New("invalid_country")
	ErrInvalidKind    = errors.New("invalid_tax_kind")
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
)
