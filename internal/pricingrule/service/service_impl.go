package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/cache"
	"github.com/banadama/pricing/internal/clock"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"github.com/banadama/pricing/internal/observability/metrics"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/banadama/pricing/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const auditTargetType = "pricing_rule"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    pricingruledomain.Repository
	Cache   cache.RuleSetCache
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    pricingruledomain.Repository
	cache   cache.RuleSetCache
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) pricingruledomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pricingrule.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		cache:   p.Cache,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func (s *Service) ListActiveRules(ctx context.Context, scope *pricingruledomain.Scope, scopeValue *string) ([]pricingruledomain.PricingRule, error) {
	filter := pricingruledomain.ListFilter{ActiveOnly: true}
	if scope != nil {
		if !scope.Valid() {
			return nil, pricingruledomain.ErrInvalidScope
		}
		filter.Scope = scope
		if scopeValue != nil {
			normalized := pricingruledomain.NormalizeScopeValue(*scope, *scopeValue)
			filter.ScopeValue = &normalized
		}
	} else if scopeValue != nil {
		return nil, pricingruledomain.ErrInvalidScope
	}

	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) GetRule(ctx context.Context, id string) (*pricingruledomain.PricingRule, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pricingruledomain.ErrInvalidID
	}

	rule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, pricingruledomain.ErrNotFound
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, req pricingruledomain.ListRequest) (*pricingruledomain.ListResponse, error) {
	filter := pricingruledomain.ListFilter{ActiveOnly: req.ActiveOnly}

	if raw := strings.TrimSpace(req.Scope); raw != "" {
		scope := pricingruledomain.Scope(strings.ToLower(raw))
		if !scope.Valid() {
			return nil, pricingruledomain.ErrInvalidScope
		}
		filter.Scope = &scope
		if value := strings.TrimSpace(req.ScopeValue); value != "" {
			normalized := pricingruledomain.NormalizeScopeValue(scope, value)
			filter.ScopeValue = &normalized
		}
	}
	if raw := strings.TrimSpace(req.RuleType); raw != "" {
		ruleType := pricingruledomain.RuleType(strings.ToLower(raw))
		if !ruleType.Valid() {
			return nil, pricingruledomain.ErrInvalidRuleType
		}
		filter.RuleType = &ruleType
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil || cursor.Offset < 0 {
		return nil, pricingruledomain.ErrInvalidPageToken
	}

	limit := req.Limit()
	filter.Limit = limit + 1
	filter.Offset = cursor.Offset

	rules, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	page, info, err := pagination.Page(rules, cursor.Offset, limit)
	if err != nil {
		return nil, err
	}
	return &pricingruledomain.ListResponse{PageInfo: info, Rules: page}, nil
}

func (s *Service) CreateRule(ctx context.Context, req pricingruledomain.CreateRuleRequest) (*pricingruledomain.PricingRule, error) {
	now := s.clock.Now().UTC()
	rule := pricingruledomain.PricingRule{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Scope:         pricingruledomain.Scope(strings.ToLower(strings.TrimSpace(string(req.Scope)))),
		RuleType:      pricingruledomain.RuleType(strings.ToLower(strings.TrimSpace(string(req.RuleType)))),
		FeeType:       pricingruledomain.FeeType(strings.ToLower(strings.TrimSpace(string(req.FeeType)))),
		FeeValue:      req.FeeValue,
		MinOrderValue: req.MinOrderValue,
		MaxOrderValue: req.MaxOrderValue,
		EffectiveFrom: utcPointer(req.EffectiveFrom),
		EffectiveTo:   utcPointer(req.EffectiveTo),
		Priority:      req.Priority,
		IsActive:      true,
		Description:   normalizePointer(req.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	rule.ScopeValue = normalizeScopeValue(rule.Scope, req.ScopeValue)
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if actor, ok := obscontext.ActorFromContext(ctx); ok && actor.ID != "" {
		createdBy := actor.ID
		rule.CreatedBy = &createdBy
	}

	if err := pricingruledomain.ValidateRule(rule); err != nil {
		return nil, err
	}

	err := s.write(ctx, auditdomain.ActionPricingRuleCreate, rule.ID, func(tx *gorm.DB) (map[string]any, error) {
		if err := s.repo.Insert(ctx, tx, &rule); err != nil {
			return nil, err
		}
		return map[string]any{"after": ruleSnapshot(rule)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pricing rule created",
		zap.String("rule_id", rule.ID),
		zap.String("scope", string(rule.Scope)),
		zap.String("rule_type", string(rule.RuleType)),
	)
	return &rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id string, req pricingruledomain.UpdateRuleRequest) (*pricingruledomain.PricingRule, error) {
	return s.update(ctx, auditdomain.ActionPricingRuleUpdate, id, req)
}

func (s *Service) DeactivateRule(ctx context.Context, id string) (*pricingruledomain.PricingRule, error) {
	inactive := false
	return s.update(ctx, auditdomain.ActionPricingRuleDeactivate, id, pricingruledomain.UpdateRuleRequest{IsActive: &inactive})
}

func (s *Service) update(ctx context.Context, action, id string, req pricingruledomain.UpdateRuleRequest) (*pricingruledomain.PricingRule, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pricingruledomain.ErrInvalidID
	}

	var updated pricingruledomain.PricingRule
	err := s.write(ctx, action, id, func(tx *gorm.DB) (map[string]any, error) {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, pricingruledomain.ErrNotFound
		}

		updated = applyUpdate(*existing, req)
		updated.UpdatedAt = s.clock.Now().UTC()
		if err := pricingruledomain.ValidateRule(updated); err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return nil, err
		}
		return map[string]any{
			"before": ruleSnapshot(*existing),
			"after":  ruleSnapshot(updated),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) DeleteRule(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return pricingruledomain.ErrInvalidID
	}

	return s.write(ctx, auditdomain.ActionPricingRuleDelete, id, func(tx *gorm.DB) (map[string]any, error) {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, pricingruledomain.ErrNotFound
		}
		if _, err := s.repo.Delete(ctx, tx, id); err != nil {
			return nil, err
		}
		return map[string]any{"before": ruleSnapshot(*existing)}, nil
	})
}

// write runs mutate, bumps the rule-set version and audits in one
// transaction, then drops cached rule sets.
func (s *Service) write(ctx context.Context, action, ruleID string, mutate func(tx *gorm.DB) (map[string]any, error)) error {
	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		metadata, err := mutate(tx)
		if err != nil {
			return err
		}

		version, err = s.repo.BumpVersion(ctx, tx, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		metadata["rule_set_version"] = version

		target := ruleID
		return s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			Action:     action,
			TargetType: auditTargetType,
			TargetID:   &target,
			Metadata:   metadata,
		})
	})
	if err != nil {
		if !errors.Is(err, pricingruledomain.ErrNotFound) && !pricingruledomain.IsValidationError(err) {
			s.log.Error("pricing rule write failed", zap.String("action", action), zap.String("rule_id", ruleID), zap.Error(err))
		}
		return err
	}

	s.cache.Invalidate(ctx)
	s.metrics.RecordRuleWrite(ctx, action)
	s.log.Debug("rule set version bumped", zap.String("action", action), zap.Int64("version", version))
	return nil
}

func applyUpdate(rule pricingruledomain.PricingRule, req pricingruledomain.UpdateRuleRequest) pricingruledomain.PricingRule {
	if req.Scope != nil {
		rule.Scope = pricingruledomain.Scope(strings.ToLower(strings.TrimSpace(string(*req.Scope))))
		if req.ScopeValue == nil {
			rule.ScopeValue = normalizeScopeValue(rule.Scope, rule.ScopeValue)
		}
	}
	if req.ScopeValue != nil {
		rule.ScopeValue = normalizeScopeValue(rule.Scope, req.ScopeValue)
	}
	if req.RuleType != nil {
		rule.RuleType = pricingruledomain.RuleType(strings.ToLower(strings.TrimSpace(string(*req.RuleType))))
	}
	if req.FeeType != nil {
		rule.FeeType = pricingruledomain.FeeType(strings.ToLower(strings.TrimSpace(string(*req.FeeType))))
	}
	if req.FeeValue != nil {
		rule.FeeValue = *req.FeeValue
	}
	if req.ClearMinOrderValue {
		rule.MinOrderValue = nil
	} else if req.MinOrderValue != nil {
		rule.MinOrderValue = req.MinOrderValue
	}
	if req.ClearMaxOrderValue {
		rule.MaxOrderValue = nil
	} else if req.MaxOrderValue != nil {
		rule.MaxOrderValue = req.MaxOrderValue
	}
	if req.EffectiveFrom != nil {
		rule.EffectiveFrom = utcPointer(req.EffectiveFrom)
	}
	if req.EffectiveTo != nil {
		rule.EffectiveTo = utcPointer(req.EffectiveTo)
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.Description != nil {
		rule.Description = normalizePointer(req.Description)
	}
	return rule
}

// normalizeScopeValue returns nil for global rules and blank values.
func normalizeScopeValue(scope pricingruledomain.Scope, value *string) *string {
	if scope == pricingruledomain.ScopeGlobal || value == nil {
		return nil
	}
	normalized := pricingruledomain.NormalizeScopeValue(scope, *value)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func ruleSnapshot(rule pricingruledomain.PricingRule) map[string]any {
	raw, err := json.Marshal(rule)
	if err != nil {
		return map[string]any{"id": rule.ID}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"id": rule.ID}
	}
	return out
}
