package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TaxResolver returns the rate to apply for a country, and the import duty
// rate for a category.
type TaxResolver interface {
	ResolveRate(ctx context.Context, country string, kind Kind) (Rate, error)
	ResolveDutyRate(ctx context.Context, category string) (Rate, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Disable(ctx context.Context, id string) (*Response, error)
}

type ListRequest struct {
	Country   string `form:"country"`
	Kind      string `form:"kind"`
	Code      string `form:"code"`
	IsEnabled *bool  `form:"is_enabled"`
	SortBy    string `form:"sort_by"`
	OrderBy   string `form:"order_by"`
}

type CreateRequest struct {
	Country     string          `json:"country"`
	Kind        Kind            `json:"kind"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description *string         `json:"description"`
	IsEnabled   *bool           `json:"is_enabled"`
}

type UpdateRequest struct {
	ID          string           `json:"id"`
	Name        *string          `json:"name,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Description *string          `json:"description,omitempty"`
}

type Response struct {
	ID          string          `json:"id"`
	Country     string          `json:"country"`
	Kind        Kind            `json:"kind"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description *string         `json:"description,omitempty"`
	IsEnabled   bool            `json:"is_enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
