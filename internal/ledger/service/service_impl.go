package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	"github.com/banadama/pricing/internal/clock"
	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
	obsmetrics "github.com/banadama/pricing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntryTx(
	ctx context.Context,
	tx *gorm.DB,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID string,
	currency string,
	occurredAt time.Time,
	lines []ledgerdomain.Posting,
) (bool, error) {
	sourceType = ledgerdomain.LedgerSourceType(strings.TrimSpace(string(sourceType)))
	if sourceType == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return false, ledgerdomain.ErrInvalidSourceID
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if occurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}

	if len(lines) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.Posting, 0, len(lines))
	for _, line := range lines {
		if _, ok := ledgerdomain.AccountName(line.Account); !ok {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return false, err
		}
		if line.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.Posting{
			Account:   line.Account,
			Direction: direction,
			Amount:    line.Amount,
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	entryID := s.genID.Generate()
	now := s.clock.Now().UTC()
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, source_type, source_id, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO NOTHING`,
		entryID,
		sourceType,
		sourceID,
		currency,
		occurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Debug("ledger entry already posted",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID),
		)
		return false, nil
	}

	for _, line := range normalized {
		accountID, err := s.ensureAccount(ctx, tx, line.Account, now)
		if err != nil {
			return false, err
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_id, direction, currency, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			accountID,
			string(line.Direction),
			currency,
			line.Amount,
			now,
		).Error; err != nil {
			return false, err
		}
	}

	if s.auditSvc != nil {
		entryIDStr := entryID.String()
		if err := s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionLedgerEntryCreate,
			TargetType: "ledger_entry",
			TargetID:   &entryIDStr,
			Metadata: map[string]any{
				"source_type": string(sourceType),
				"source_id":   sourceID,
				"currency":    currency,
			},
		}); err != nil {
			return false, err
		}
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	return true, nil
}

func (s *Service) EntryLines(ctx context.Context, sourceType ledgerdomain.LedgerSourceType, sourceID string) ([]ledgerdomain.PostedLine, error) {
	var rows []struct {
		LedgerEntryID snowflake.ID
		Code          ledgerdomain.LedgerAccountCode
		Direction     ledgerdomain.LedgerEntryDirection
		Currency      string
		Amount        int64
		OccurredAt    time.Time
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT l.ledger_entry_id, a.code, l.direction, l.currency, l.amount, e.occurred_at
		 FROM ledger_entry_lines l
		 JOIN ledger_entries e ON e.id = l.ledger_entry_id
		 JOIN ledger_accounts a ON a.id = l.account_id
		 WHERE e.source_type = ? AND e.source_id = ?
		 ORDER BY l.id ASC`,
		sourceType,
		strings.TrimSpace(sourceID),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ledgerdomain.PostedLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledgerdomain.PostedLine{
			LedgerEntryID: row.LedgerEntryID.String(),
			Account:       row.Code,
			Direction:     row.Direction,
			Currency:      row.Currency,
			Amount:        row.Amount,
			OccurredAt:    row.OccurredAt,
		})
	}
	return out, nil
}

// ensureAccount returns the id of the account with code, creating it on
// first use.
func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, code ledgerdomain.LedgerAccountCode, now time.Time) (snowflake.ID, error) {
	name, _ := ledgerdomain.AccountName(code)
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_accounts (id, code, name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (code) DO NOTHING`,
		s.genID.Generate(),
		code,
		name,
		now,
	).Error; err != nil {
		return 0, err
	}

	var account ledgerdomain.LedgerAccount
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at FROM ledger_accounts WHERE code = ?`,
		code,
	).Scan(&account).Error; err != nil {
		return 0, err
	}
	if account.ID == 0 {
		return 0, ledgerdomain.ErrInvalidAccount
	}
	return account.ID, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
