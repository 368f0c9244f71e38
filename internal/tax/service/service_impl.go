package service

import (
	"context"
	"strings"

	"github.com/banadama/pricing/internal/config"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

type resolverParam struct {
	fx.In

	Repository taxdomain.Repository
	Defaults   *config.PricingConfigHolder `optional:"true"`
}

type resolver struct {
	repo     taxdomain.Repository
	defaults *config.PricingConfigHolder
}

func NewResolver(p resolverParam) taxdomain.TaxResolver {
	return &resolver{repo: p.Repository, defaults: p.Defaults}
}

// ResolveRate prefers an enabled definition, then the configured default
// rate, and resolves to zero when neither exists.
func (r *resolver) ResolveRate(ctx context.Context, country string, kind taxdomain.Kind) (taxdomain.Rate, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	out := taxdomain.Rate{Country: country, Kind: kind, Rate: decimal.Zero, Source: taxdomain.RateSourceNone}
	if country == "" {
		return out, nil
	}
	if !kind.Valid() {
		return out, taxdomain.ErrInvalidKind
	}

	def, err := r.repo.GetActiveTaxDefinition(ctx, country, kind)
	if err != nil {
		return out, err
	}
	if def != nil {
		out.Rate = def.Rate
		out.Code = def.Code
		out.Source = taxdomain.RateSourceDefinition
		return out, nil
	}

	if r.defaults == nil {
		return out, nil
	}
	settings := r.defaults.Get()
	var (
		rate decimal.Decimal
		ok   bool
	)
	switch kind {
	case taxdomain.KindSales:
		rate, ok = settings.SalesTaxRate(country)
	case taxdomain.KindWithholding:
		rate, ok = settings.WithholdingTaxRate(country)
	}
	if ok {
		out.Rate = rate
		out.Source = taxdomain.RateSourceDefault
	}
	return out, nil
}

// ResolveDutyRate looks the category up in the configured duty rates, then
// falls back to the default duty rate. No config means no duty.
func (r *resolver) ResolveDutyRate(_ context.Context, category string) (taxdomain.Rate, error) {
	category = slug.Make(strings.TrimSpace(category))
	out := taxdomain.Rate{Category: category, Kind: taxdomain.KindDuty, Rate: decimal.Zero, Source: taxdomain.RateSourceNone}
	if r.defaults == nil {
		return out, nil
	}
	if rate, ok := r.defaults.Get().DutyRate(category); ok {
		out.Rate = rate
		out.Source = taxdomain.RateSourceDefault
	}
	return out, nil
}

// ComputeTax applies a fractional rate to base in minor units.
// Rounding happens only here, half away from zero.
func ComputeTax(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(base).Mul(rate).Round(0).IntPart()
}
