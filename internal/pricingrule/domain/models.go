package domain

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeCategory Scope = "category"
	ScopeCountry  Scope = "country"
	ScopeAccount  Scope = "account"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeCategory, ScopeCountry, ScopeAccount:
		return true
	}
	return false
}

type RuleType string

const (
	RuleTypePlatformFee RuleType = "platform_fee"
	RuleTypeBuyerFee    RuleType = "buyer_fee"
	RuleTypeSupplierFee RuleType = "supplier_fee"
	RuleTypeCommission  RuleType = "commission"
)

// RuleTypes lists every rule type in evaluation order.
var RuleTypes = []RuleType{
	RuleTypePlatformFee,
	RuleTypeBuyerFee,
	RuleTypeSupplierFee,
	RuleTypeCommission,
}

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePlatformFee, RuleTypeBuyerFee, RuleTypeSupplierFee, RuleTypeCommission:
		return true
	}
	return false
}

type FeeType string

const (
	FeeTypePercentage FeeType = "percentage"
	FeeTypeFixed      FeeType = "fixed"
)

func (f FeeType) Valid() bool {
	return f == FeeTypePercentage || f == FeeTypeFixed
}

type PricingRule struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Scope         Scope           `json:"scope" gorm:"type:text;not null;index:idx_pricing_rules_lookup,priority:2"`
	ScopeValue    *string         `json:"scope_value,omitempty" gorm:"type:text;index:idx_pricing_rules_lookup,priority:3"`
	RuleType      RuleType        `json:"rule_type" gorm:"type:text;not null"`
	FeeType       FeeType         `json:"fee_type" gorm:"type:text;not null"`
	FeeValue      decimal.Decimal `json:"fee_value" gorm:"type:numeric(20,6);not null"`
	MinOrderValue *int64          `json:"min_order_value,omitempty"`
	MaxOrderValue *int64          `json:"max_order_value,omitempty"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Priority      int             `json:"priority" gorm:"not null"`
	IsActive      bool            `json:"is_active" gorm:"not null;index:idx_pricing_rules_lookup,priority:1"`
	Description   *string         `json:"description,omitempty" gorm:"type:text"`
	CreatedBy     *string         `json:"created_by,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null"`
}

func (PricingRule) TableName() string { return "pricing_rules" }

// ScopeValueOrEmpty returns the scope value, or "" for global rules.
func (r PricingRule) ScopeValueOrEmpty() string {
	if r.ScopeValue == nil {
		return ""
	}
	return *r.ScopeValue
}

// EffectiveAt reports whether at falls inside [EffectiveFrom, EffectiveTo).
func (r PricingRule) EffectiveAt(at time.Time) bool {
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// RuleSetVersion is a single-row counter bumped with every rule write.
type RuleSetVersion struct {
	ID        int       `gorm:"primaryKey"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RuleSetVersion) TableName() string { return "pricing_rule_versions" }

// RuleSet is every active rule as of one rule-set version, read from one
// consistent view of the store.
type RuleSet struct {
	Version int64         `json:"version"`
	Rules   []PricingRule `json:"rules"`
	// FromCache marks sets served without touching the rule table.
	FromCache bool `json:"-"`
}

// NormalizeScopeValue canonicalizes a scope qualifier so rule values and
// evaluation context values compare equal.
func NormalizeScopeValue(scope Scope, value string) string {
	value = strings.TrimSpace(value)
	switch scope {
	case ScopeCategory:
		return slug.Make(value)
	case ScopeCountry:
		return strings.ToUpper(value)
	default:
		return value
	}
}
