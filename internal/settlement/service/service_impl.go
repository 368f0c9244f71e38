package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/clock"
	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
	"github.com/banadama/pricing/internal/observability/logger"
	"github.com/banadama/pricing/internal/observability/metrics"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	pkgdb "github.com/banadama/pricing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeCommitted = "committed"
	outcomeReplayed  = "replayed"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    settlementdomain.Repository
	Ledger  ledgerdomain.Service
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    settlementdomain.Repository
	ledger  ledgerdomain.Service
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) settlementdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("settlement.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		ledger:  p.Ledger,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

func (s *Service) Calculate(breakdown pricingdomain.PriceBreakdown) (settlementdomain.EscrowSettlement, error) {
	return Calculate(breakdown)
}

func (s *Service) CommitSettlement(ctx context.Context, orderID string, breakdown pricingdomain.PriceBreakdown) (*settlementdomain.CommitResult, error) {
	var result *settlementdomain.CommitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.CommitSettlementTx(ctx, tx, settlementdomain.CommitInput{
			SubjectID: orderID,
			Breakdown: breakdown,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) CommitSettlementTx(ctx context.Context, tx *gorm.DB, in settlementdomain.CommitInput) (*settlementdomain.CommitResult, error) {
	result, err := s.write(ctx, tx, settlementdomain.SubjectTypeOrder, in)
	if err != nil || result.Replayed {
		return result, err
	}

	settlement := result.Settlement
	lines := []ledgerdomain.Posting{
		{Account: ledgerdomain.AccountCodeEscrowCash, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: settlement.CollectFromBuyer},
		{Account: ledgerdomain.AccountCodeSupplierPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: settlement.SupplierNetPayout},
		{Account: ledgerdomain.AccountCodePlatformRevenue, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: settlement.PlatformRevenue},
		{Account: ledgerdomain.AccountCodeTaxPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: settlement.TaxPayable},
		{Account: ledgerdomain.AccountCodeShippingPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: settlement.ShippingPayable},
	}
	if _, err := s.ledger.CreateEntryTx(ctx, tx, ledgerdomain.SourceTypeOrderSettlement, result.Snapshot.SubjectID,
		settlement.Currency, result.Snapshot.EvaluatedAt, lines); err != nil {
		return nil, err
	}

	orderID := result.Snapshot.SubjectID
	if err := s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
		Action:     auditdomain.ActionSettlementCommit,
		TargetType: string(settlementdomain.SubjectTypeOrder),
		TargetID:   &orderID,
		Metadata: map[string]any{
			"snapshot_id":         result.Snapshot.ID.String(),
			"rule_set_version":    result.Snapshot.RuleSetVersion,
			"collect_from_buyer":  settlement.CollectFromBuyer,
			"supplier_net_payout": settlement.SupplierNetPayout,
			"platform_revenue":    settlement.PlatformRevenue,
			"currency":            settlement.Currency,
		},
	}); err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("settlement committed",
		zap.String("order_id", orderID),
		zap.Int64("collect_from_buyer", settlement.CollectFromBuyer),
		zap.Int64("supplier_net_payout", settlement.SupplierNetPayout),
		zap.String("currency", settlement.Currency),
	)
	return result, nil
}

func (s *Service) RecordQuoteSnapshotTx(ctx context.Context, tx *gorm.DB, in settlementdomain.CommitInput) (*settlementdomain.CommitResult, error) {
	return s.write(ctx, tx, settlementdomain.SubjectTypeQuote, in)
}

func (s *Service) GetSnapshot(ctx context.Context, subjectType settlementdomain.SubjectType, subjectID string) (*settlementdomain.SnapshotView, error) {
	if !subjectType.Valid() {
		return nil, settlementdomain.ErrInvalidSubjectType
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, settlementdomain.ErrInvalidSubjectID
	}

	snapshot, err := s.repo.FindBySubject(ctx, s.db, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, settlementdomain.ErrNotFound
	}

	view := &settlementdomain.SnapshotView{Snapshot: *snapshot, Settlement: snapshot.Settlement()}
	if subjectType == settlementdomain.SubjectTypeOrder {
		view.Ledger, err = s.ledger.EntryLines(ctx, ledgerdomain.SourceTypeOrderSettlement, subjectID)
		if err != nil {
			return nil, err
		}
	}
	return view, nil
}

// write inserts the snapshot once per subject. A collision returns the
// stored snapshot as a replay instead of failing.
func (s *Service) write(ctx context.Context, tx *gorm.DB, subjectType settlementdomain.SubjectType, in settlementdomain.CommitInput) (*settlementdomain.CommitResult, error) {
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return nil, settlementdomain.ErrInvalidSubjectID
	}
	if subjectType == settlementdomain.SubjectTypeOrder && in.Breakdown.ShippingPending {
		return nil, settlementdomain.ErrShippingPending
	}

	settlement, err := Calculate(in.Breakdown)
	if err != nil {
		if perr, ok := pricingdomain.AsError(err); ok {
			s.metrics.RecordConfigurationError(ctx, perr.Code)
			logger.WithContext(ctx, s.log).Error("settlement rejected",
				zap.String("subject_type", string(subjectType)),
				zap.String("subject_id", subjectID),
				zap.String("error_code", perr.Code),
				zap.String("rule_id", perr.RuleID),
				zap.Any("context", perr.Context),
				zap.Error(err),
			)
		}
		return nil, err
	}
	if subjectType == settlementdomain.SubjectTypeOrder {
		settlement.OrderID = subjectID
	}

	snapshot := newSnapshot(s.genID.Generate(), subjectType, subjectID, in, settlement, s.clock.Now().UTC())
	inserted, err := s.repo.Insert(ctx, tx, &snapshot)
	if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
		return nil, err
	}
	if inserted {
		s.metrics.RecordSettlement(ctx, string(subjectType), outcomeCommitted)
		return &settlementdomain.CommitResult{Snapshot: snapshot, Settlement: settlement}, nil
	}

	existing, err := s.repo.FindBySubject(ctx, tx, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, settlementdomain.ErrNotFound
	}

	conflict := &pricingdomain.Error{
		Kind:    pricingdomain.KindConcurrency,
		Code:    "already_settled",
		Message: "snapshot already written for subject",
		Context: map[string]any{"subject_type": string(subjectType), "subject_id": subjectID},
	}
	logger.WithContext(ctx, s.log).Info("settlement replayed",
		zap.String("snapshot_id", existing.ID.String()),
		zap.Bool("total_matches", existing.Total == in.Breakdown.Total),
		zap.NamedError("conflict", conflict),
	)
	s.metrics.RecordSettlement(ctx, string(subjectType), outcomeReplayed)
	return &settlementdomain.CommitResult{Snapshot: *existing, Settlement: existing.Settlement(), Replayed: true}, nil
}

func newSnapshot(id snowflake.ID, subjectType settlementdomain.SubjectType, subjectID string, in settlementdomain.CommitInput, settlement settlementdomain.EscrowSettlement, now time.Time) settlementdomain.Snapshot {
	b := in.Breakdown
	appliedRules := b.AppliedRules
	if appliedRules == nil {
		appliedRules = []pricingdomain.AppliedRule{}
	}

	doc := settlementdomain.PricingSnapshot{
		LineItems:       in.LineItems,
		Subtotal:        b.Subtotal,
		FulfillmentFee:  b.PlatformFee + b.BuyerFee,
		PlatformFee:     b.PlatformFee,
		BuyerFee:        b.BuyerFee,
		SupplierFee:     b.SupplierFee,
		Commission:      b.Commission,
		Shipping:        b.Shipping,
		ShippingPending: b.ShippingPending,
		Tax:             b.Tax,
		TaxWithheld:     b.TaxWithheld,
		Total:           b.Total,
		Currency:        b.Currency,
		AppliedRules:    appliedRules,
		AppliedTaxes:    b.AppliedTaxes,
		RuleSetVersion:  b.RuleSetVersion,
		EvaluatedAt:     b.EvaluatedAt,
		Settlement:      settlement,
	}
	if len(in.LineItems) == 1 {
		unitPrice, quantity := in.LineItems[0].UnitPrice, in.LineItems[0].Quantity
		doc.UnitPrice, doc.Quantity = &unitPrice, &quantity
	}

	evaluatedAt := b.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = now
	}

	return settlementdomain.Snapshot{
		ID:                id,
		SubjectType:       subjectType,
		SubjectID:         subjectID,
		Currency:          b.Currency,
		Subtotal:          b.Subtotal,
		PlatformFee:       b.PlatformFee,
		BuyerFee:          b.BuyerFee,
		SupplierFee:       b.SupplierFee,
		Commission:        b.Commission,
		Shipping:          b.Shipping,
		ShippingPending:   b.ShippingPending,
		Tax:               b.Tax,
		TaxWithheld:       b.TaxWithheld,
		Total:             b.Total,
		CollectFromBuyer:  settlement.CollectFromBuyer,
		SupplierNetPayout: settlement.SupplierNetPayout,
		PlatformRevenue:   settlement.PlatformRevenue,
		TaxPayable:        settlement.TaxPayable,
		ShippingPayable:   settlement.ShippingPayable,
		RuleSetVersion:    b.RuleSetVersion,
		AppliedRules:      datatypes.NewJSONType(appliedRules),
		PricingSnapshot:   datatypes.NewJSONType(doc),
		EvaluatedAt:       evaluatedAt.UTC(),
		CreatedAt:         now,
	}
}
