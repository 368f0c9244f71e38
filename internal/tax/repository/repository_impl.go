package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"github.com/banadama/pricing/pkg/db/option"
	"gorm.io/gorm"
)

const definitionColumns = `id, country, kind, name, code, rate, description, is_enabled, created_at, updated_at`

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func (r *repository) GetActiveTaxDefinition(ctx context.Context, country string, kind taxdomain.Kind) (*taxdomain.TaxDefinition, error) {
	var def taxdomain.TaxDefinition
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+definitionColumns+`
		 FROM tax_definitions
		 WHERE country = ? AND kind = ? AND is_enabled = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		country,
		kind,
		true,
	).Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repository) Create(ctx context.Context, def *taxdomain.TaxDefinition) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_definitions (`+definitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.Country,
		def.Kind,
		def.Name,
		def.Code,
		def.Rate,
		def.Description,
		def.IsEnabled,
		def.CreatedAt,
		def.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*taxdomain.TaxDefinition, error) {
	var def taxdomain.TaxDefinition
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+definitionColumns+`
		 FROM tax_definitions
		 WHERE id = ?`,
		id,
	).Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repository) List(ctx context.Context, filter taxdomain.ListRequest) ([]taxdomain.TaxDefinition, error) {
	var items []taxdomain.TaxDefinition
	stmt := r.db.WithContext(ctx).Model(&taxdomain.TaxDefinition{})

	if filter.Country != "" {
		stmt = stmt.Where("country = ?", filter.Country)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.Code != "" {
		stmt = stmt.Where("code = ?", filter.Code)
	}
	if filter.IsEnabled != nil {
		stmt = stmt.Where("is_enabled = ?", *filter.IsEnabled)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"created_at": true,
		"updated_at": true,
		"country":    true,
		"rate":       true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, def *taxdomain.TaxDefinition) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_definitions
		 SET name = ?, rate = ?, description = ?, is_enabled = ?, updated_at = ?
		 WHERE id = ?`,
		def.Name,
		def.Rate,
		def.Description,
		def.IsEnabled,
		def.UpdatedAt,
		def.ID,
	).Error
}
