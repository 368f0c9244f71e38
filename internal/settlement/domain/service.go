package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	"gorm.io/gorm"
)

type Service interface {
	// Calculate is pure; it never touches storage.
	Calculate(breakdown pricingdomain.PriceBreakdown) (EscrowSettlement, error)
	CommitSettlement(ctx context.Context, orderID string, breakdown pricingdomain.PriceBreakdown) (*CommitResult, error)
	// CommitSettlementTx writes the order snapshot, ledger entry and audit
	// log on tx so they commit with the caller's order row.
	CommitSettlementTx(ctx context.Context, tx *gorm.DB, in CommitInput) (*CommitResult, error)
	// RecordQuoteSnapshotTx stores a quote snapshot without posting it.
	RecordQuoteSnapshotTx(ctx context.Context, tx *gorm.DB, in CommitInput) (*CommitResult, error)
	GetSnapshot(ctx context.Context, subjectType SubjectType, subjectID string) (*SnapshotView, error)
}

type Repository interface {
	// Insert reports false when a snapshot for the subject already exists.
	Insert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) (bool, error)
	FindBySubject(ctx context.Context, db *gorm.DB, subjectType SubjectType, subjectID string) (*Snapshot, error)
}

type CommitInput struct {
	SubjectID string
	Breakdown pricingdomain.PriceBreakdown
	LineItems []pricingdomain.LineItem
}

type CommitResult struct {
	Snapshot   Snapshot         `json:"snapshot"`
	Settlement EscrowSettlement `json:"settlement"`
	// Replayed is set when the subject was already settled and the stored
	// snapshot was returned unchanged.
	Replayed bool `json:"replayed"`
}

type SnapshotView struct {
	Snapshot   Snapshot                  `json:"snapshot"`
	Settlement EscrowSettlement          `json:"settlement"`
	Ledger     []ledgerdomain.PostedLine `json:"ledger,omitempty"`
}

type CommitSettlementRequest struct {
	Breakdown pricingdomain.PriceBreakdown `json:"breakdown"`
}

var (
	ErrInvalidSubjectID   = errors.New("invalid_subject_id")
	ErrInvalidSubjectType = errors.New("invalid_subject_type")
	ErrNotFound           = errors.New("not_found")
	// ErrShippingPending rejects order settlements priced before shipping
	// was known.
	ErrShippingPending = errors.New("shipping_pending")
)
