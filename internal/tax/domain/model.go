package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kind separates tax charged to the buyer from tax withheld from the supplier.
// Duty is charged to the buyer and keyed by category, not country.
type Kind string

const (
	KindSales       Kind = "sales"
	KindWithholding Kind = "withholding"
	KindDuty        Kind = "duty"
)

// Valid reports whether k can back a tax definition. Duty rates come from
// pricing config only.
func (k Kind) Valid() bool {
	return k == KindSales || k == KindWithholding
}

// TaxDefinition is a tax rate for one country and kind.
// NOTE: code is a stable identifier recorded in price snapshots; it is
// immutable once created. name/description are editable.
type TaxDefinition struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	Country string       `gorm:"type:varchar(2);not null;index:idx_tax_definitions_lookup,priority:1"`
	Kind    Kind         `gorm:"type:text;not null;index:idx_tax_definitions_lookup,priority:2"`

	Name string          `gorm:"type:text;not null"`
	Code string          `gorm:"type:text;not null"`
	Rate decimal.Decimal `gorm:"type:numeric(6,4);not null"` // fraction, 0.0750 for 7.5%

	Description *string `gorm:"type:text"`

	IsEnabled bool `gorm:"column:is_enabled;not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TaxDefinition) TableName() string { return "tax_definitions" }

var one = decimal.NewFromInt(1)

func (t *TaxDefinition) Validate() error {
	if t.Code == "" {
		return ErrInvalidTaxCode
	}
	if len(t.Country) != 2 || strings.ToUpper(t.Country) != t.Country {
		return ErrInvalidCountry
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Rate.IsNegative() || t.Rate.GreaterThanOrEqual(one) {
		return ErrInvalidTaxRate
	}
	return nil
}

// RateSource records where a resolved rate came from.
type RateSource string

const (
	RateSourceDefinition RateSource = "definition"
	RateSourceDefault    RateSource = "default"
	RateSourceNone       RateSource = "none"
)

// Rate is a resolved tax rate for one country and kind, or for one category
// when Kind is duty.
type Rate struct {
	Country  string          `json:"country,omitempty"`
	Category string          `json:"category,omitempty"`
	Kind     Kind            `json:"kind"`
	Rate     decimal.Decimal `json:"rate"`
	Code     string          `json:"code,omitempty"`
	Source   RateSource      `json:"source"`
}
