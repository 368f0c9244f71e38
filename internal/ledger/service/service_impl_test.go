package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/clock"
	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
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
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func setupLedger(t *testing.T) (*Service, *mockAuditSvc, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	audit := &mockAuditSvc{}
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		AuditSvc: audit,
	}).(*Service)
	return svc, audit, db
}

func settlementPostings() []ledgerdomain.Posting {
	return []ledgerdomain.Posting{
		{Account: ledgerdomain.AccountCodeEscrowCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 825000},
		{Account: ledgerdomain.AccountCodeSupplierPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 750000},
		{Account: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 39000},
		{Account: ledgerdomain.AccountCodeTaxPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 0},
		{Account: ledgerdomain.AccountCodeShippingPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 36000},
	}
}

func TestCreateEntryTx_PostsOnce(t *testing.T) {
	svc, audit, db := setupLedger(t)
	ctx := context.Background()
	audit.On("AuditLogTx", mock.Anything, mock.Anything, mock.MatchedBy(func(e auditdomain.Entry) bool {
		return e.Action == auditdomain.ActionLedgerEntryCreate && e.Metadata["source_id"] == "order-1"
	})).Return(nil).Once()

	occurredAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var created bool
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = svc.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeOrderSettlement, "order-1", "ngn", occurredAt, settlementPostings())
		return err
	}))
	assert.True(t, created)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = svc.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeOrderSettlement, "order-1", "NGN", occurredAt, settlementPostings())
		return err
	}))
	assert.False(t, created)

	lines, err := svc.EntryLines(ctx, ledgerdomain.SourceTypeOrderSettlement, "order-1")
	require.NoError(t, err)
	require.Len(t, lines, 5)

	var debit, credit int64
	for _, line := range lines {
		assert.Equal(t, "NGN", line.Currency)
		if line.Direction == ledgerdomain.LedgerEntryDirectionDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	assert.Equal(t, int64(825000), debit)
	assert.Equal(t, debit, credit)

	var accounts int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerAccount{}).Count(&accounts).Error)
	assert.Equal(t, int64(5), accounts)
	audit.AssertExpectations(t)
}

func TestCreateEntryTx_RejectsUnbalanced(t *testing.T) {
	svc, audit, db := setupLedger(t)
	postings := settlementPostings()
	postings[1].Amount--

	_, err := svc.CreateEntryTx(context.Background(), db, ledgerdomain.SourceTypeOrderSettlement, "order-2", "NGN", time.Now(), postings)
	assert.ErrorIs(t, err, ledgerdomain.ErrUnbalancedEntry)
	audit.AssertNotCalled(t, "AuditLogTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateEntryTx_Validation(t *testing.T) {
	svc, _, db := setupLedger(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.CreateEntryTx(ctx, db, "", "order-3", "NGN", now, settlementPostings())
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceType)

	_, err = svc.CreateEntryTx(ctx, db, ledgerdomain.SourceTypeOrderSettlement, " ", "NGN", now, settlementPostings())
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidSourceID)

	_, err = svc.CreateEntryTx(ctx, db, ledgerdomain.SourceTypeOrderSettlement, "order-3", "NGN", now, settlementPostings()[:1])
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryLines)

	bad := settlementPostings()
	bad[0].Account = "petty_cash"
	_, err = svc.CreateEntryTx(ctx, db, ledgerdomain.SourceTypeOrderSettlement, "order-3", "NGN", now, bad)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAccount)

	bad = settlementPostings()
	bad[2].Direction = "sideways"
	_, err = svc.CreateEntryTx(ctx, db, ledgerdomain.SourceTypeOrderSettlement, "order-3", "NGN", now, bad)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidLineDirection)
}
