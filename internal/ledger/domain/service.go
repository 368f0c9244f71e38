package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	// CreateEntryTx posts a balanced entry on tx. It reports false when an
	// entry for the same source already exists.
	CreateEntryTx(ctx context.Context, tx *gorm.DB, sourceType LedgerSourceType, sourceID string, currency string, occurredAt time.Time, lines []Posting) (bool, error)
	// EntryLines returns the postings recorded for a source.
	EntryLines(ctx context.Context, sourceType LedgerSourceType, sourceID string) ([]PostedLine, error)
}

type PostedLine struct {
	LedgerEntryID string               `json:"ledger_entry_id"`
	Account       LedgerAccountCode    `json:"account"`
	Direction     LedgerEntryDirection `json:"direction"`
	Currency      string               `json:"currency"`
	Amount        int64                `json:"amount"`
	OccurredAt    time.Time            `json:"occurred_at"`
}
