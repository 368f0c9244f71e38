package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeOrderSettlement LedgerSourceType = "order_settlement" // funds collected into escrow for an order
	SourceTypeEscrowRelease   LedgerSourceType = "escrow_release"   // payout to supplier after delivery
	SourceTypeRefund          LedgerSourceType = "refund"           // money returned to buyer
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeEscrowCash LedgerAccountCode = "escrow_cash"

	// Liabilities
	AccountCodeSupplierPayable LedgerAccountCode = "supplier_payable"
	AccountCodeTaxPayable      LedgerAccountCode = "tax_payable"
	AccountCodeShippingPayable LedgerAccountCode = "shipping_payable"

	// Revenue
	AccountCodePlatformRevenue LedgerAccountCode = "platform_revenue"
)

var accountNames = map[LedgerAccountCode]string{
	AccountCodeEscrowCash:      "Escrow cash",
	AccountCodeSupplierPayable: "Supplier payable",
	AccountCodeTaxPayable:      "Tax payable",
	AccountCodeShippingPayable: "Shipping payable",
	AccountCodePlatformRevenue: "Platform revenue",
}

// AccountName returns the display name of a known account code.
func AccountName(code LedgerAccountCode) (string, bool) {
	name, ok := accountNames[code]
	return name, ok
}

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Code      LedgerAccountCode `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string            `gorm:"type:text;not null"`
	CreatedAt time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	SourceType LedgerSourceType `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source,priority:1"`
	SourceID   string           `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source,priority:2"`
	Currency   string           `gorm:"type:text;not null"`
	OccurredAt time.Time        `gorm:"not null"`
	CreatedAt  time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Currency      string               `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// Posting is one requested line, addressed by account code.
type Posting struct {
	Account   LedgerAccountCode    `json:"account"`
	Direction LedgerEntryDirection `json:"direction"`
	Amount    int64                `json:"amount"`
}

// ValidateBalanced checks that debits equal credits. Zero lines are allowed
// so every account of a settlement is always posted.
func ValidateBalanced(lines []Posting) error {
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
