package authorization

import (
	"context"
	"testing"

	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *mockAuditSvc) AuditLogTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	return m.Called(ctx, tx, entry).Error(0)
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func newTestService(t *testing.T, audit auditdomain.Service) *ServiceImpl {
	t.Helper()
	enforcer, err := NewInMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}).(*ServiceImpl)
}

func actorContext(role, id string) context.Context {
	return obscontext.WithActor(context.Background(), obscontext.Actor{Role: role, ID: id})
}

func TestAuthorize_RolePermissions(t *testing.T) {
	svc := newTestService(t, nil)

	tests := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{RoleAdmin, ObjectPricingRule, ActionPricingRuleManage, true},
		{RoleFinance, ObjectPricingRule, ActionPricingRuleManage, false},
		{RoleFinance, ObjectTaxDefinition, ActionTaxManage, true},
		{RoleBuyer, ObjectPricing, ActionPricingCompute, true},
		{RoleBuyer, ObjectTaxDefinition, ActionTaxManage, false},
		{RoleSupplier, ObjectQuote, ActionQuoteCreate, true},
		{RoleSupplier, ObjectOrder, ActionOrderPlace, false},
		{RoleSystem, ObjectSettlement, ActionSettlementCommit, true},
		{RoleAdmin, ObjectSettlement, ActionSettlementCommit, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action, func(t *testing.T) {
			err := svc.Authorize(actorContext(tt.role, "actor_1"), tt.object, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorize_RoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t, nil)

	require.NoError(t, svc.Authorize(actorContext(RoleAdmin, "user_7"), ObjectPricingRule, ActionPricingRuleManage))
	err := svc.Authorize(actorContext(RoleBuyer, "user_7"), ObjectPricingRule, ActionPricingRuleManage)
	assert.ErrorIs(t, err, ErrForbidden)

	links, err := svc.enforcer.GetFilteredGroupingPolicy(0, "buyer:user_7")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestAuthorize_RejectsMissingOrUnknownActor(t *testing.T) {
	svc := newTestService(t, nil)

	assert.ErrorIs(t, svc.Authorize(context.Background(), ObjectPricing, ActionPricingCompute), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(actorContext("guest", ""), ObjectPricing, ActionPricingCompute), ErrUnknownRole)
	assert.ErrorIs(t, svc.Authorize(actorContext(RoleAdmin, ""), "", ActionPricingCompute), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(actorContext(RoleAdmin, ""), ObjectPricing, " "), ErrInvalidAction)
}

func TestAuthorize_AuditsDenials(t *testing.T) {
	audit := &mockAuditSvc{}
	audit.On("AuditLog", mock.Anything, RoleBuyer, mock.Anything, "authorization.denied", "authorization", mock.Anything,
		mock.MatchedBy(func(metadata map[string]any) bool {
			return metadata["action"] == ActionTaxManage && metadata["subject"] == "buyer:buyer_1"
		})).Return(nil).Once()
	svc := newTestService(t, audit)

	err := svc.Authorize(actorContext(RoleBuyer, "buyer_1"), ObjectTaxDefinition, ActionTaxManage)
	assert.ErrorIs(t, err, ErrForbidden)
	audit.AssertExpectations(t)
}
