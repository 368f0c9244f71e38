package repository

import (
	"context"

	"github.com/banadama/pricing/internal/settlement/domain"
	"gorm.io/gorm"
)

const snapshotColumns = `id, subject_type, subject_id, currency,
	subtotal, platform_fee, buyer_fee, supplier_fee, commission,
	shipping, shipping_pending, tax, tax_withheld, total,
	collect_from_buyer, supplier_net_payout, platform_revenue, tax_payable, shipping_payable,
	rule_set_version, applied_rules, pricing_snapshot, evaluated_at, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Snapshot) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO price_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_type, subject_id) DO NOTHING`,
		s.ID,
		s.SubjectType,
		s.SubjectID,
		s.Currency,
		s.Subtotal,
		s.PlatformFee,
		s.BuyerFee,
		s.SupplierFee,
		s.Commission,
		s.Shipping,
		s.ShippingPending,
		s.Tax,
		s.TaxWithheld,
		s.Total,
		s.CollectFromBuyer,
		s.SupplierNetPayout,
		s.PlatformRevenue,
		s.TaxPayable,
		s.ShippingPayable,
		s.RuleSetVersion,
		s.AppliedRules,
		s.PricingSnapshot,
		s.EvaluatedAt,
		s.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindBySubject(ctx context.Context, db *gorm.DB, subjectType domain.SubjectType, subjectID string) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM price_snapshots
		 WHERE subject_type = ? AND subject_id = ?`,
		subjectType,
		subjectID,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}
