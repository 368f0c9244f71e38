package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Scope      *Scope
	ScopeValue *string
	RuleType   *RuleType
	ActiveOnly bool
	Limit      int
	Offset     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	Update(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	Delete(ctx context.Context, db *gorm.DB, id string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id string) (*PricingRule, error)
	// FindExistingIDs returns the subset of ids that still exist, active or not.
	FindExistingIDs(ctx context.Context, db *gorm.DB, ids []string) ([]string, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PricingRule, error)

	CurrentVersion(ctx context.Context, db *gorm.DB) (int64, error)
	BumpVersion(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
