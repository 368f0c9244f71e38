package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	"gorm.io/gorm"
)

type Service interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error)
	QuoteRFQ(ctx context.Context, req QuoteRequest) (*QuoteResult, error)
	AcceptQuote(ctx context.Context, req AcceptQuoteRequest) (*OrderResult, error)
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Order, error)
	InsertQuote(ctx context.Context, db *gorm.DB, quote *Quote) error
	FindQuote(ctx context.Context, db *gorm.DB, rfqID string, id snowflake.ID) (*Quote, error)
	// MarkQuoteAccepted reports false when the quote was no longer open.
	MarkQuoteAccepted(ctx context.Context, db *gorm.DB, quote *Quote) (bool, error)
}

// Party carries the scope dimensions of a buyer and supplier pair.
type Party struct {
	BuyerAccountID    string `json:"buyer_account_id"`
	SupplierAccountID string `json:"supplier_account_id"`
	Country           string `json:"country"`
	SupplierCountry   string `json:"supplier_country"`
	CategorySlug      string `json:"category_slug"`
}

type PlaceOrderRequest struct {
	Party
	Currency       string                   `json:"currency"`
	LineItems      []pricingdomain.LineItem `json:"line_items"`
	Shipping       *int64                   `json:"shipping"`
	IdempotencyKey string                   `json:"-"`
}

type QuoteRequest struct {
	Party
	RFQID     string                   `json:"-"`
	Currency  string                   `json:"currency"`
	LineItems []pricingdomain.LineItem `json:"line_items"`
}

type AcceptQuoteRequest struct {
	RFQID    string `json:"-"`
	QuoteID  string `json:"quote_id"`
	Shipping *int64 `json:"shipping"`
}

type OrderResult struct {
	Order      Order                             `json:"order"`
	Breakdown  pricingdomain.PriceBreakdown      `json:"breakdown"`
	Settlement settlementdomain.EscrowSettlement `json:"settlement"`
	Replayed   bool                              `json:"replayed"`
}

type QuoteResult struct {
	Quote     Quote                        `json:"quote"`
	Breakdown pricingdomain.PriceBreakdown `json:"breakdown"`
}

var (
	ErrInvalidRFQID          = errors.New("invalid_rfq_id")
	ErrInvalidQuoteID        = errors.New("invalid_quote_id")
	ErrMissingSupplier       = errors.New("missing_supplier_account_id")
	ErrMissingLineItems      = errors.New("missing_line_items")
	ErrShippingRequired      = errors.New("shipping_required")
	ErrQuoteNotFound         = errors.New("quote_not_found")
	ErrQuoteSelectionChanged = errors.New("quote_selection_changed")
)

// IsValidationError reports request errors owned by this package.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRFQID, ErrInvalidQuoteID, ErrMissingSupplier, ErrMissingLineItems, ErrShippingRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
