package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	auditrepository "github.com/banadama/pricing/internal/audit/repository"
	auditservice "github.com/banadama/pricing/internal/audit/service"
	"github.com/banadama/pricing/internal/cache"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/checkout/repository"
	"github.com/banadama/pricing/internal/clock"
	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
	ledgerservice "github.com/banadama/pricing/internal/ledger/service"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"github.com/banadama/pricing/internal/observability/metrics"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingservice "github.com/banadama/pricing/internal/pricing/service"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	pricingrulerepository "github.com/banadama/pricing/internal/pricingrule/repository"
	pricingruleservice "github.com/banadama/pricing/internal/pricingrule/service"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	settlementrepository "github.com/banadama/pricing/internal/settlement/repository"
	settlementservice "github.com/banadama/pricing/internal/settlement/service"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockTaxResolver struct {
	mock.Mock
}

func (m *mockTaxResolver) ResolveRate(ctx context.Context, country string, kind taxdomain.Kind) (taxdomain.Rate, error) {
	args := m.Called(ctx, country, kind)
	return args.Get(0).(taxdomain.Rate), args.Error(1)
}

func (m *mockTaxResolver) ResolveDutyRate(ctx context.Context, category string) (taxdomain.Rate, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(taxdomain.Rate), args.Error(1)
}

type checkoutFixture struct {
	svc   *Service
	rules pricingruledomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func setupCheckout(t *testing.T) checkoutFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pricingruledomain.PricingRule{},
		&pricingruledomain.RuleSetVersion{},
		&checkoutdomain.Order{},
		&checkoutdomain.Quote{},
		&settlementdomain.Snapshot{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	ruleRepo := pricingrulerepository.Provide()
	ruleCache := cache.NewMemoryRuleSetCache(time.Minute)
	rules := pricingruleservice.New(pricingruleservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  ruleRepo,
		Cache: ruleCache,
		Audit: audit,
	})
	snapshotter := pricingruleservice.NewSnapshotter(pricingruleservice.SnapshotterParams{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  ruleRepo,
		Cache: ruleCache,
	})

	tax := &mockTaxResolver{}
	tax.On("ResolveRate", mock.Anything, mock.Anything, mock.Anything).
		Return(taxdomain.Rate{Rate: decimal.Zero, Source: taxdomain.RateSourceNone}, nil)
	tax.On("ResolveDutyRate", mock.Anything, mock.Anything).
		Return(taxdomain.Rate{Kind: taxdomain.KindDuty, Rate: decimal.Zero, Source: taxdomain.RateSourceNone}, nil)

	engine := pricingservice.New(pricingservice.Params{
		Log:     zap.NewNop(),
		Clock:   clk,
		Rules:   snapshotter,
		Tax:     tax,
		Metrics: metrics.NewNoop(),
	})

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		AuditSvc: audit,
	})
	settlement := settlementservice.New(settlementservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   settlementrepository.Provide(),
		Ledger: ledger,
		Audit:  audit,
	})

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       repository.Provide(),
		Engine:     engine,
		Settlement: settlement,
		Audit:      audit,
	}).(*Service)

	return checkoutFixture{svc: svc, rules: rules, db: db, clock: clk}
}

func adminContext() context.Context {
	return obscontext.WithActor(context.Background(), obscontext.Actor{Role: "admin", ID: "admin_1"})
}

func (f checkoutFixture) createRule(t *testing.T, ruleType pricingruledomain.RuleType, value string) *pricingruledomain.PricingRule {
	t.Helper()
	rule, err := f.rules.CreateRule(adminContext(), pricingruledomain.CreateRuleRequest{
		Scope:    pricingruledomain.ScopeGlobal,
		RuleType: ruleType,
		FeeType:  pricingruledomain.FeeTypePercentage,
		FeeValue: decimal.RequireFromString(value),
	})
	require.NoError(t, err)
	return rule
}

func buyerParty() checkoutdomain.Party {
	return checkoutdomain.Party{
		BuyerAccountID:    "buyer_1",
		SupplierAccountID: "supplier_1",
		Country:           "NG",
		CategorySlug:      "Industrial Chemicals",
	}
}

func seedLineItems() []pricingdomain.LineItem {
	return []pricingdomain.LineItem{{SKU: "SKU-1", UnitPrice: 250000, Quantity: 3}}
}

func shipping(amount int64) *int64 {
	return &amount
}

func auditActions(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var logs []auditdomain.AuditLog
	require.NoError(t, db.Order("created_at asc, id asc").Find(&logs).Error)
	out := make([]string, 0, len(logs))
	for _, log := range logs {
		out = append(out, log.Action)
	}
	return out
}

func TestPlaceOrder_CommitsOrderSnapshotAndLedger(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	result, err := f.svc.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{
		Party:     buyerParty(),
		Currency:  "ngn",
		LineItems: seedLineItems(),
		Shipping:  shipping(36000),
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, int64(750000), result.Order.Subtotal)
	assert.Equal(t, int64(825000), result.Order.Total)
	assert.Equal(t, "NGN", result.Order.Currency)
	assert.Equal(t, int64(39000), result.Breakdown.PlatformFee)
	assert.Equal(t, int64(825000), result.Settlement.CollectFromBuyer)
	assert.Equal(t, int64(750000), result.Settlement.SupplierNetPayout)

	view, err := f.svc.settlement.GetSnapshot(ctx, settlementdomain.SubjectTypeOrder, result.Order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(825000), view.Snapshot.Total)
	assert.Len(t, view.Ledger, 5)

	stored, err := f.svc.repo.FindOrderByID(ctx, f.db, result.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, seedLineItems(), stored.LineItems.Data())

	assert.Contains(t, auditActions(t, f.db), auditdomain.ActionOrderPlace)
}

func TestPlaceOrder_ReplaysIdempotencyKey(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	req := checkoutdomain.PlaceOrderRequest{
		Party:          buyerParty(),
		Currency:       "NGN",
		LineItems:      seedLineItems(),
		Shipping:       shipping(36000),
		IdempotencyKey: "checkout-42",
	}
	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	// a fee change after the first call must not alter the replayed order
	f.createRule(t, pricingruledomain.RuleTypeBuyerFee, "1")

	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Breakdown.Total, second.Breakdown.Total)
	assert.Equal(t, first.Settlement, second.Settlement)

	var orders int64
	require.NoError(t, f.db.Model(&checkoutdomain.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}

func TestPlaceOrder_RejectsInvalidRequests(t *testing.T) {
	f := setupCheckout(t)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{
		Party:     checkoutdomain.Party{BuyerAccountID: "buyer_1", Country: "NG"},
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	assert.ErrorIs(t, err, checkoutdomain.ErrMissingSupplier)
	assert.True(t, checkoutdomain.IsValidationError(err))

	_, err = f.svc.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{
		Party:    buyerParty(),
		Currency: "NGN",
	})
	assert.ErrorIs(t, err, checkoutdomain.ErrMissingLineItems)

	_, err = f.svc.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{
		Party:     buyerParty(),
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	assert.ErrorIs(t, err, checkoutdomain.ErrShippingRequired)
	assert.True(t, checkoutdomain.IsValidationError(err))

	_, err = f.svc.PlaceOrder(ctx, checkoutdomain.PlaceOrderRequest{
		Party:     buyerParty(),
		Currency:  "NGN",
		LineItems: []pricingdomain.LineItem{{SKU: "SKU-1", UnitPrice: 100, Quantity: 1, Currency: "USD"}},
		Shipping:  shipping(0),
	})
	assert.ErrorIs(t, err, pricingdomain.ErrValidation)

	var orders int64
	require.NoError(t, f.db.Model(&checkoutdomain.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestQuoteRFQ_RecordsProvisionalSnapshot(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	result, err := f.svc.QuoteRFQ(ctx, checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		RFQID:     "rfq-9",
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	require.NoError(t, err)
	assert.True(t, result.Breakdown.ShippingPending)
	assert.Equal(t, int64(789000), result.Breakdown.Total)
	assert.Equal(t, checkoutdomain.QuoteStatusOpen, result.Quote.Status)
	assert.Equal(t, int64(1), result.Quote.RuleSetVersion)
	assert.Equal(t, "industrial-chemicals", result.Quote.Context.Data().CategorySlug)

	view, err := f.svc.settlement.GetSnapshot(ctx, settlementdomain.SubjectTypeQuote, result.Quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(789000), view.Snapshot.Total)
	assert.Empty(t, view.Ledger)

	assert.Contains(t, auditActions(t, f.db), auditdomain.ActionQuoteCreate)
}

func TestQuoteRFQ_RequiresRFQID(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.QuoteRFQ(context.Background(), checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	assert.ErrorIs(t, err, checkoutdomain.ErrInvalidRFQID)
}

func TestAcceptQuote_KeepsQuotedRules(t *testing.T) {
	f := setupCheckout(t)
	platform := f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	quote, err := f.svc.QuoteRFQ(ctx, checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		RFQID:     "rfq-9",
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	result, err := f.svc.AcceptQuote(ctx, checkoutdomain.AcceptQuoteRequest{
		RFQID:    "rfq-9",
		QuoteID:  quote.Quote.ID.String(),
		Shipping: shipping(36000),
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, int64(825000), result.Order.Total)
	require.NotNil(t, result.Order.QuoteID)
	assert.Equal(t, quote.Quote.ID, *result.Order.QuoteID)
	assert.True(t, pricingdomain.SameSelection(quote.Breakdown, result.Breakdown))
	assert.Equal(t, platform.ID, result.Breakdown.AppliedRules[0].RuleID)
	assert.Equal(t, quote.Breakdown.EvaluatedAt, result.Breakdown.EvaluatedAt)

	stored, err := f.svc.repo.FindQuote(ctx, f.db, "rfq-9", quote.Quote.ID)
	require.NoError(t, err)
	assert.Equal(t, checkoutdomain.QuoteStatusAccepted, stored.Status)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, result.Order.ID, *stored.OrderID)

	actions := auditActions(t, f.db)
	assert.Contains(t, actions, auditdomain.ActionQuoteAccept)
	assert.Contains(t, actions, auditdomain.ActionSettlementCommit)
}

func TestAcceptQuote_ReplaysAcceptedQuote(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	quote, err := f.svc.QuoteRFQ(ctx, checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		RFQID:     "rfq-9",
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	require.NoError(t, err)

	req := checkoutdomain.AcceptQuoteRequest{RFQID: "rfq-9", QuoteID: quote.Quote.ID.String(), Shipping: shipping(36000)}
	first, err := f.svc.AcceptQuote(ctx, req)
	require.NoError(t, err)

	// shipping is ignored once the quote is accepted
	req.Shipping = nil
	second, err := f.svc.AcceptQuote(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Settlement, second.Settlement)

	var orders int64
	require.NoError(t, f.db.Model(&checkoutdomain.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
}

func TestAcceptQuote_RecomputesWhenRuleSetChanged(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	quote, err := f.svc.QuoteRFQ(ctx, checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		RFQID:     "rfq-9",
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.createRule(t, pricingruledomain.RuleTypeBuyerFee, "1")

	result, err := f.svc.AcceptQuote(ctx, checkoutdomain.AcceptQuoteRequest{
		RFQID:    "rfq-9",
		QuoteID:  quote.Quote.ID.String(),
		Shipping: shipping(36000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Breakdown.RuleSetVersion)
	assert.Equal(t, int64(7500), result.Breakdown.BuyerFee)
	assert.Equal(t, int64(832500), result.Order.Total)
	assert.Equal(t, f.clock.Now().UTC(), result.Breakdown.EvaluatedAt)

	var log auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionQuoteAccept).First(&log).Error)
	assert.Equal(t, true, log.Metadata["rule_set_changed"])
}

func TestAcceptQuote_Validation(t *testing.T) {
	f := setupCheckout(t)
	f.createRule(t, pricingruledomain.RuleTypePlatformFee, "5.2")
	ctx := context.Background()

	quote, err := f.svc.QuoteRFQ(ctx, checkoutdomain.QuoteRequest{
		Party:     buyerParty(),
		RFQID:     "rfq-9",
		Currency:  "NGN",
		LineItems: seedLineItems(),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  checkoutdomain.AcceptQuoteRequest
		want error
	}{
		{"missing rfq", checkoutdomain.AcceptQuoteRequest{QuoteID: quote.Quote.ID.String()}, checkoutdomain.ErrInvalidRFQID},
		{"bad quote id", checkoutdomain.AcceptQuoteRequest{RFQID: "rfq-9", QuoteID: "nope"}, checkoutdomain.ErrInvalidQuoteID},
		{"wrong rfq", checkoutdomain.AcceptQuoteRequest{RFQID: "rfq-1", QuoteID: quote.Quote.ID.String()}, checkoutdomain.ErrQuoteNotFound},
		{"no shipping", checkoutdomain.AcceptQuoteRequest{RFQID: "rfq-9", QuoteID: quote.Quote.ID.String()}, checkoutdomain.ErrShippingRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AcceptQuote(ctx, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
