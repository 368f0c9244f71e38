package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/audit/repository"
	"github.com/banadama/pricing/internal/clock"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"github.com/banadama/pricing/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db, clk
}

func TestAuditLog_ResolvesActorAndMasksKeys(t *testing.T) {
	svc, db, _ := setupAuditService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, obscontext.Actor{Role: "admin", ID: "u_1"})
	target := "order_1"

	err := svc.AuditLog(ctx, "", nil, auditdomain.ActionSettlementCommit, "order", &target, map[string]any{
		"idempotency_key": "checkout_1234567890",
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "admin", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "u_1", *stored.ActorID)
	assert.Equal(t, "req-9", stored.Metadata["request_id"])
	assert.Equal(t, "checkout_****7890", stored.Metadata["idempotency_key"])
}

func TestAuditLog_DefaultsToSystemActor(t *testing.T) {
	svc, db, _ := setupAuditService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "pricing_rule.create", "", nil, nil))

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), stored.ActorType)
	assert.Equal(t, "unknown", stored.TargetType)
}

func TestAuditLog_RejectsEmptyAction(t *testing.T) {
	svc, _, _ := setupAuditService(t)

	err := svc.AuditLog(context.Background(), "", nil, " ", "order", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestList_PaginatesNewestFirst(t *testing.T) {
	svc, _, clk := setupAuditService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		target := fmt.Sprintf("rule_%d", i)
		require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionPricingRuleCreate, "pricing_rule", &target, nil))
		clk.Advance(time.Second)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "rule_2", *first.AuditLogs[0].TargetID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "rule_0", *second.AuditLogs[0].TargetID)
}

func TestList_RejectsInvertedRange(t *testing.T) {
	svc, _, _ := setupAuditService(t)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
