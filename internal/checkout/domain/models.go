package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "placed"
)

type QuoteStatus string

const (
	QuoteStatusOpen     QuoteStatus = "open"
	QuoteStatusAccepted QuoteStatus = "accepted"
)

type Order struct {
	ID                snowflake.ID                                 `json:"id" gorm:"primaryKey"`
	BuyerAccountID    string                                       `json:"buyer_account_id" gorm:"type:text;not null;index"`
	SupplierAccountID string                                       `json:"supplier_account_id" gorm:"type:text;not null;index"`
	QuoteID           *snowflake.ID                                `json:"quote_id,omitempty" gorm:"uniqueIndex:ux_orders_quote"`
	IdempotencyKey    *string                                      `json:"-" gorm:"type:text;uniqueIndex:ux_orders_idempotency_key"`
	Status            OrderStatus                                  `json:"status" gorm:"type:text;not null"`
	Currency          string                                       `json:"currency" gorm:"type:varchar(3);not null"`
	Subtotal          int64                                        `json:"subtotal" gorm:"not null"`
	Total             int64                                        `json:"total" gorm:"not null"`
	LineItems         datatypes.JSONType[[]pricingdomain.LineItem] `json:"line_items" gorm:"type:jsonb;not null"`
	CreatedAt         time.Time                                    `json:"created_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// Quote is a provisional price for an RFQ. Its stored context is replayed
// with final shipping when the buyer accepts.
type Quote struct {
	ID               snowflake.ID                                        `json:"id" gorm:"primaryKey"`
	RFQID            string                                              `json:"rfq_id" gorm:"column:rfq_id;type:text;not null;index"`
	Status           QuoteStatus                                         `json:"status" gorm:"type:text;not null"`
	Context          datatypes.JSONType[pricingdomain.EvaluationContext] `json:"context" gorm:"type:jsonb;not null"`
	RuleSetVersion   int64                                               `json:"rule_set_version" gorm:"not null"`
	ProvisionalTotal int64                                               `json:"provisional_total" gorm:"not null"`
	OrderID          *snowflake.ID                                       `json:"order_id,omitempty"`
	CreatedAt        time.Time                                           `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time                                           `json:"updated_at" gorm:"not null"`
}

func (Quote) TableName() string { return "quotes" }
