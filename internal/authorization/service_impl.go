package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin    = "admin"
	RoleFinance  = "finance"
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"
	RoleSystem   = "system"
)

const (
	ObjectPricingRule   = "pricing_rule"
	ObjectTaxDefinition = "tax_definition"
	ObjectPricing       = "pricing"
	ObjectSettlement    = "settlement"
	ObjectOrder         = "order"
	ObjectQuote         = "quote"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionPricingRuleView   = "pricing_rule.view"
	ActionPricingRuleManage = "pricing_rule.manage"

	ActionTaxView   = "tax.view"
	ActionTaxManage = "tax.manage"

	ActionPricingCompute = "pricing.compute"

	ActionSettlementView   = "settlement.view"
	ActionSettlementCommit = "settlement.commit"

	ActionOrderPlace  = "order.place"
	ActionQuoteCreate = "quote.create"
	ActionQuoteAccept = "quote.accept"

	ActionAuditLogView = "audit_log.view"
)

var knownRoles = map[string]bool{
	RoleAdmin:    true,
	RoleFinance:  true,
	RoleBuyer:    true,
	RoleSupplier: true,
	RoleSystem:   true,
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer persists policies through the gorm adapter and seeds the
// built-in role permissions.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewInMemoryEnforcer seeds the role permissions without a storage adapter.
func NewInMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actor, ok := obscontext.ActorFromContext(ctx)
	if !ok {
		return ErrInvalidActor
	}
	if !knownRoles[actor.Role] {
		s.auditDenied(ctx, actor, object, action)
		return ErrUnknownRole
	}

	subject, roleName := actorSubject(actor), fmt.Sprintf("role:%s", actor.Role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject; the role comes
// from the gateway on every request and may change between requests.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor obscontext.Actor, object string, action string) {
	s.log.Warn("authorization denied",
		zap.String("role", actor.Role),
		zap.String("actor_id", actor.ID),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if actor.ID != "" {
		actorID = &actor.ID
	}
	targetID := "capability"
	if err := s.auditSvc.AuditLog(ctx, actor.Role, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actor),
	}); err != nil {
		s.log.Warn("audit authorization denial failed", zap.Error(err))
	}
}

func actorSubject(actor obscontext.Actor) string {
	if actor.ID == "" {
		return fmt.Sprintf("%s:anonymous", actor.Role)
	}
	return fmt.Sprintf("%s:%s", actor.Role, actor.ID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin permissions
		{"role:admin", ObjectPricingRule, ActionPricingRuleView},
		{"role:admin", ObjectPricingRule, ActionPricingRuleManage},
		{"role:admin", ObjectTaxDefinition, ActionTaxView},
		{"role:admin", ObjectTaxDefinition, ActionTaxManage},
		{"role:admin", ObjectPricing, ActionPricingCompute},
		{"role:admin", ObjectSettlement, ActionSettlementView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Finance permissions
		{"role:finance", ObjectPricingRule, ActionPricingRuleView},
		{"role:finance", ObjectTaxDefinition, ActionTaxView},
		{"role:finance", ObjectTaxDefinition, ActionTaxManage},
		{"role:finance", ObjectSettlement, ActionSettlementView},
		{"role:finance", ObjectAuditLog, ActionAuditLogView},

		// Marketplace parties
		{"role:buyer", ObjectPricing, ActionPricingCompute},
		{"role:buyer", ObjectOrder, ActionOrderPlace},
		{"role:buyer", ObjectQuote, ActionQuoteAccept},
		{"role:buyer", ObjectSettlement, ActionSettlementView},
		{"role:supplier", ObjectPricing, ActionPricingCompute},
		{"role:supplier", ObjectQuote, ActionQuoteCreate},
		{"role:supplier", ObjectSettlement, ActionSettlementView},

		// System permissions (checkout and settlement workers)
		{"role:system", ObjectPricing, ActionPricingCompute},
		{"role:system", ObjectSettlement, ActionSettlementView},
		{"role:system", ObjectSettlement, ActionSettlementCommit},
		{"role:system", ObjectOrder, ActionOrderPlace},
		{"role:system", ObjectQuote, ActionQuoteCreate},
		{"role:system", ObjectQuote, ActionQuoteAccept},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
