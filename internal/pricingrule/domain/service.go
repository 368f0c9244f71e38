package domain

import (
	"context"
	"errors"
	"time"

	"github.com/banadama/pricing/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type Service interface {
	ListActiveRules(ctx context.Context, scope *Scope, scopeValue *string) ([]PricingRule, error)
	GetRule(ctx context.Context, id string) (*PricingRule, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	CreateRule(ctx context.Context, req CreateRuleRequest) (*PricingRule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*PricingRule, error)
	DeactivateRule(ctx context.Context, id string) (*PricingRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Snapshotter hands the pricing engine one consistent rule set per evaluation.
type Snapshotter interface {
	// Snapshot may be served from cache for the current version.
	Snapshot(ctx context.Context) (RuleSet, error)
	// Refresh drops cached sets and reads the store directly.
	Refresh(ctx context.Context) (RuleSet, error)
	// MissingRules returns the ids that no longer exist in the store.
	MissingRules(ctx context.Context, ids []string) ([]string, error)
}

type ListRequest struct {
	pagination.Pagination
	Scope      string `form:"scope"`
	ScopeValue string `form:"scope_value"`
	RuleType   string `form:"rule_type"`
	ActiveOnly bool   `form:"active_only"`
}

type ListResponse struct {
	pagination.PageInfo
	Rules []PricingRule `json:"rules"`
}

type CreateRuleRequest struct {
	Scope         Scope           `json:"scope"`
	ScopeValue    *string         `json:"scope_value"`
	RuleType      RuleType        `json:"rule_type"`
	FeeType       FeeType         `json:"fee_type"`
	FeeValue      decimal.Decimal `json:"fee_value"`
	MinOrderValue *int64          `json:"min_order_value"`
	MaxOrderValue *int64          `json:"max_order_value"`
	EffectiveFrom *time.Time      `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
	Priority      int             `json:"priority"`
	IsActive      *bool           `json:"is_active"`
	Description   *string         `json:"description"`
}

// UpdateRuleRequest is a partial update; nil fields keep their value.
// Clear* flags reset optional bounds to unbounded.
type UpdateRuleRequest struct {
	Scope              *Scope           `json:"scope"`
	ScopeValue         *string          `json:"scope_value"`
	RuleType           *RuleType        `json:"rule_type"`
	FeeType            *FeeType         `json:"fee_type"`
	FeeValue           *decimal.Decimal `json:"fee_value"`
	MinOrderValue      *int64           `json:"min_order_value"`
	MaxOrderValue      *int64           `json:"max_order_value"`
	ClearMinOrderValue bool             `json:"clear_min_order_value"`
	ClearMaxOrderValue bool             `json:"clear_max_order_value"`
	EffectiveFrom      *time.Time       `json:"effective_from"`
	EffectiveTo        *time.Time       `json:"effective_to"`
	Priority           *int             `json:"priority"`
	IsActive           *bool            `json:"is_active"`
	Description        *string          `json:"description"`
}

var (
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidScope           = errors.New("invalid_scope")
	ErrMissingScopeValue      = errors.New("missing_scope_value")
	ErrUnexpectedScopeValue   = errors.New("unexpected_scope_value")
	ErrInvalidCountry         = errors.New("invalid_country")
	ErrInvalidRuleType        = errors.New("invalid_rule_type")
	ErrInvalidFeeType         = errors.New("invalid_fee_type")
	ErrInvalidFeeValue        = errors.New("invalid_fee_value")
	ErrInvalidOrderRange      = errors.New("invalid_order_range")
	ErrInvalidEffectiveWindow = errors.New("invalid_effective_window")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrNotFound               = errors.New("not_found")
)

// IsValidationError reports errors caused by a malformed rule or request.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidID, ErrInvalidScope, ErrMissingScopeValue, ErrUnexpectedScopeValue,
		ErrInvalidCountry, ErrInvalidRuleType, ErrInvalidFeeType, ErrInvalidFeeValue,
		ErrInvalidOrderRange, ErrInvalidEffectiveWindow, ErrInvalidPageToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
