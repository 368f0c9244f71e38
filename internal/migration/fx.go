package migration

import (
	auditdomain "github.com/banadama/pricing/internal/audit/domain"
	checkoutdomain "github.com/banadama/pricing/internal/checkout/domain"
	"github.com/banadama/pricing/internal/config"
	ledgerdomain "github.com/banadama/pricing/internal/ledger/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	settlementdomain "github.com/banadama/pricing/internal/settlement/domain"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"github.com/banadama/pricing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.RunMigrations {
			log.Info("schema migrations disabled")
			return nil
		}
		return Migrate(conn)
	}),
)

// Migrate applies the versioned SQL migrations on PostgreSQL. SQLite is a
// local development target and gets the schema from the gorm models.
func Migrate(conn *gorm.DB) error {
	if !db.IsPostgres(conn) {
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&pricingruledomain.PricingRule{},
		&pricingruledomain.RuleSetVersion{},
		&taxdomain.TaxDefinition{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&settlementdomain.Snapshot{},
		&auditdomain.AuditLog{},
		&checkoutdomain.Quote{},
		&checkoutdomain.Order{},
	)
}
