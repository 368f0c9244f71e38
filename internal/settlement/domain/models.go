package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	"gorm.io/datatypes"
)

type SubjectType string

const (
	SubjectTypeOrder SubjectType = "order"
	SubjectTypeQuote SubjectType = "quote"
)

func (t SubjectType) Valid() bool {
	return t == SubjectTypeOrder || t == SubjectTypeQuote
}

// EscrowSettlement splits what the buyer pays between supplier, platform
// and remittance accounts.
type EscrowSettlement struct {
	OrderID           string `json:"order_id,omitempty"`
	CollectFromBuyer  int64  `json:"collect_from_buyer"`
	SupplierNetPayout int64  `json:"supplier_net_payout"`
	PlatformRevenue   int64  `json:"platform_revenue"`
	TaxWithheld       int64  `json:"tax_withheld"`
	TaxPayable        int64  `json:"tax_payable"`
	ShippingPayable   int64  `json:"shipping_payable"`
	Currency          string `json:"currency"`
}

// PricingSnapshot is the persisted JSON document kept next to the typed
// columns. Keys are camelCase to match stored order documents.
type PricingSnapshot struct {
	UnitPrice       *int64                      `json:"unitPrice,omitempty"`
	Quantity        *int64                      `json:"quantity,omitempty"`
	LineItems       []pricingdomain.LineItem    `json:"lineItems,omitempty"`
	Subtotal        int64                       `json:"subtotal"`
	FulfillmentFee  int64                       `json:"fulfillmentFee"`
	PlatformFee     int64                       `json:"platformFee"`
	BuyerFee        int64                       `json:"buyerFee"`
	SupplierFee     int64                       `json:"supplierFee"`
	Commission      int64                       `json:"commission"`
	Shipping        int64                       `json:"shipping"`
	ShippingPending bool                        `json:"shippingPending"`
	Tax             int64                       `json:"tax"`
	TaxWithheld     int64                       `json:"taxWithheld"`
	Total           int64                       `json:"total"`
	Currency        string                      `json:"currency"`
	AppliedRules    []pricingdomain.AppliedRule `json:"appliedRules"`
	AppliedTaxes    []pricingdomain.AppliedTax  `json:"appliedTaxes,omitempty"`
	RuleSetVersion  int64                       `json:"ruleSetVersion"`
	EvaluatedAt     time.Time                   `json:"evaluatedAt"`
	Settlement      EscrowSettlement            `json:"settlement"`
}

// Snapshot is the immutable priced record of an order or quote. There is at
// most one per subject.
type Snapshot struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	SubjectType     SubjectType  `json:"subject_type" gorm:"type:text;not null;uniqueIndex:ux_price_snapshots_subject,priority:1"`
	SubjectID       string       `json:"subject_id" gorm:"type:text;not null;uniqueIndex:ux_price_snapshots_subject,priority:2"`
	Currency        string       `json:"currency" gorm:"type:varchar(3);not null"`
	Subtotal        int64        `json:"subtotal" gorm:"not null"`
	PlatformFee     int64        `json:"platform_fee" gorm:"not null"`
	BuyerFee        int64        `json:"buyer_fee" gorm:"not null"`
	SupplierFee     int64        `json:"supplier_fee" gorm:"not null"`
	Commission      int64        `json:"commission" gorm:"not null"`
	Shipping        int64        `json:"shipping" gorm:"not null"`
	ShippingPending bool         `json:"shipping_pending" gorm:"not null"`
	Tax             int64        `json:"tax" gorm:"not null"`
	TaxWithheld     int64        `json:"tax_withheld" gorm:"not null"`
	Total           int64        `json:"total" gorm:"not null"`

	CollectFromBuyer  int64 `json:"collect_from_buyer" gorm:"not null"`
	SupplierNetPayout int64 `json:"supplier_net_payout" gorm:"not null"`
	PlatformRevenue   int64 `json:"platform_revenue" gorm:"not null"`
	TaxPayable        int64 `json:"tax_payable" gorm:"not null"`
	ShippingPayable   int64 `json:"shipping_payable" gorm:"not null"`

	RuleSetVersion  int64                                           `json:"rule_set_version" gorm:"not null"`
	AppliedRules    datatypes.JSONType[[]pricingdomain.AppliedRule] `json:"applied_rules" gorm:"type:jsonb;not null"`
	PricingSnapshot datatypes.JSONType[PricingSnapshot]             `json:"pricing_snapshot" gorm:"type:jsonb;not null"`
	EvaluatedAt     time.Time                                       `json:"evaluated_at" gorm:"not null"`
	CreatedAt       time.Time                                       `json:"created_at" gorm:"not null"`
}

func (Snapshot) TableName() string { return "price_snapshots" }

// Settlement returns the stored settlement amounts.
func (s Snapshot) Settlement() EscrowSettlement {
	settlement := EscrowSettlement{
		CollectFromBuyer:  s.CollectFromBuyer,
		SupplierNetPayout: s.SupplierNetPayout,
		PlatformRevenue:   s.PlatformRevenue,
		TaxWithheld:       s.TaxWithheld,
		TaxPayable:        s.TaxPayable,
		ShippingPayable:   s.ShippingPayable,
		Currency:          s.Currency,
	}
	if s.SubjectType == SubjectTypeOrder {
		settlement.OrderID = s.SubjectID
	}
	return settlement
}

// Breakdown rebuilds the breakdown the snapshot was written from.
func (s Snapshot) Breakdown() pricingdomain.PriceBreakdown {
	doc := s.PricingSnapshot.Data()
	return pricingdomain.PriceBreakdown{
		Subtotal:        s.Subtotal,
		PlatformFee:     s.PlatformFee,
		BuyerFee:        s.BuyerFee,
		SupplierFee:     s.SupplierFee,
		Commission:      s.Commission,
		Shipping:        s.Shipping,
		ShippingPending: s.ShippingPending,
		Tax:             s.Tax,
		TaxWithheld:     s.TaxWithheld,
		Total:           s.Total,
		Currency:        s.Currency,
		AppliedRules:    s.AppliedRules.Data(),
		AppliedTaxes:    doc.AppliedTaxes,
		RuleSetVersion:  s.RuleSetVersion,
		EvaluatedAt:     s.EvaluatedAt,
	}
}
