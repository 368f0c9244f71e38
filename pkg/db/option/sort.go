package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type SortBy struct {
	Column    string
	Direction string
}

// WithQuerySortBy validates a user supplied sort against an allow-list.
// Unknown columns fall back to created_at, unknown directions to desc.
func WithQuerySortBy(column, direction string, allowed map[string]bool) SortBy {
	column = strings.ToLower(strings.TrimSpace(column))
	if !allowed[column] {
		column = "created_at"
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" {
		direction = "desc"
	}
	return SortBy{Column: column, Direction: direction}
}

type sortOption struct {
	sort SortBy
}

func WithSortBy(sort SortBy) QueryOption {
	return sortOption{sort: sort}
}

func (o sortOption) Apply(stmt *gorm.DB) *gorm.DB {
	if o.sort.Column == "" {
		return stmt
	}
	return stmt.Order(fmt.Sprintf("%s %s", o.sort.Column, o.sort.Direction)).Order("id asc")
}
