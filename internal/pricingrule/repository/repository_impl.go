package repository

import (
	"context"
	"time"

	"github.com/banadama/pricing/internal/pricingrule/domain"
	"gorm.io/gorm"
)

const ruleColumns = `id, scope, scope_value, rule_type, fee_type, fee_value,
	min_order_value, max_order_value, effective_from, effective_to,
	priority, is_active, description, created_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.PricingRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Scope,
		rule.ScopeValue,
		rule.RuleType,
		rule.FeeType,
		rule.FeeValue,
		rule.MinOrderValue,
		rule.MaxOrderValue,
		rule.EffectiveFrom,
		rule.EffectiveTo,
		rule.Priority,
		rule.IsActive,
		rule.Description,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *domain.PricingRule) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing_rules SET
			scope = ?, scope_value = ?, rule_type = ?, fee_type = ?, fee_value = ?,
			min_order_value = ?, max_order_value = ?, effective_from = ?, effective_to = ?,
			priority = ?, is_active = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		rule.Scope,
		rule.ScopeValue,
		rule.RuleType,
		rule.FeeType,
		rule.FeeValue,
		rule.MinOrderValue,
		rule.MaxOrderValue,
		rule.EffectiveFrom,
		rule.EffectiveTo,
		rule.Priority,
		rule.IsActive,
		rule.Description,
		rule.UpdatedAt,
		rule.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM pricing_rules WHERE id = ?`, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.PricingRule, error) {
	var rule domain.PricingRule
	err := db.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+` FROM pricing_rules WHERE id = ?`,
		id,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == "" {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) FindExistingIDs(ctx context.Context, db *gorm.DB, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var existing []string
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM pricing_rules WHERE id IN ?`,
		ids,
	).Scan(&existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.PricingRule, error) {
	var rules []domain.PricingRule
	stmt := db.WithContext(ctx).Model(&domain.PricingRule{})

	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if filter.Scope != nil {
		stmt = stmt.Where("scope = ?", *filter.Scope)
	}
	if filter.ScopeValue != nil {
		stmt = stmt.Where("scope_value = ?", *filter.ScopeValue)
	}
	if filter.RuleType != nil {
		stmt = stmt.Where("rule_type = ?", *filter.RuleType)
	}

	stmt = stmt.Order("scope asc, priority desc, created_at desc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit).Offset(filter.Offset)
	}

	if err := stmt.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) CurrentVersion(ctx context.Context, db *gorm.DB) (int64, error) {
	var version int64
	err := db.WithContext(ctx).Raw(
		`SELECT version FROM pricing_rule_versions WHERE id = 1`,
	).Scan(&version).Error
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (r *repo) BumpVersion(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO pricing_rule_versions (id, version, updated_at)
		VALUES (1, 1, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = pricing_rule_versions.version + 1,
			updated_at = excluded.updated_at`,
		now,
	).Error
	if err != nil {
		return 0, err
	}
	return r.CurrentVersion(ctx, db)
}
