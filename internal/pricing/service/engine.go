package service

import (
	"context"
	"errors"
	"time"

	"github.com/banadama/pricing/internal/clock"
	"github.com/banadama/pricing/internal/observability/logger"
	"github.com/banadama/pricing/internal/observability/metrics"
	"github.com/banadama/pricing/internal/observability/tracing"
	"github.com/banadama/pricing/internal/pricing/evaluator"
	"github.com/banadama/pricing/internal/pricing/scope"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	taxdomain "github.com/banadama/pricing/internal/tax/domain"
	taxservice "github.com/banadama/pricing/internal/tax/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeOK            = "ok"
	outcomeValidation    = "validation_error"
	outcomeConfiguration = "configuration_error"
	outcomeError         = "error"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Rules         pricingruledomain.Snapshotter
	Tax           taxdomain.TaxResolver
	Metrics       *metrics.Metrics       `optional:"true"`
	EngineMetrics *metrics.EngineMetrics `optional:"true"`
}

type Engine struct {
	log           *zap.Logger
	clock         clock.Clock
	rules         pricingruledomain.Snapshotter
	tax           taxdomain.TaxResolver
	metrics       *metrics.Metrics
	engineMetrics *metrics.EngineMetrics
	tracer        trace.Tracer
}

func New(p Params) pricingdomain.Engine {
	return &Engine{
		log:           p.Log.Named("pricing.engine"),
		clock:         p.Clock,
		rules:         p.Rules,
		tax:           p.Tax,
		metrics:       p.Metrics,
		engineMetrics: p.EngineMetrics,
		tracer:        otel.Tracer("pricing/engine"),
	}
}

// ComputePriceBreakdown evaluates in against one rule-set snapshot. The
// engine does not retry store failures; the only retry is a single fresh
// read when a cached snapshot references rules that no longer exist.
func (e *Engine) ComputePriceBreakdown(ctx context.Context, in pricingdomain.EvaluationContext) (*pricingdomain.PriceBreakdown, error) {
	started := e.clock.Now()
	ctx, span := e.tracer.Start(ctx, "pricing.compute_breakdown")
	defer span.End()

	if in.EvaluatedAt.IsZero() {
		in.EvaluatedAt = started
	}
	evalCtx, err := in.Normalize()
	if err != nil {
		return nil, e.fail(ctx, span, in, started, err)
	}

	breakdown, err := e.computeFromSnapshot(ctx, evalCtx)
	if err != nil {
		return nil, e.fail(ctx, span, evalCtx, started, err)
	}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("pricing.currency", breakdown.Currency),
		attribute.Int64("pricing.rule_set_version", breakdown.RuleSetVersion),
		attribute.Int("pricing.applied_rules", len(breakdown.AppliedRules)),
	)...)
	e.metrics.RecordBreakdown(ctx, breakdown.Currency, breakdown.ShippingPending)
	e.engineMetrics.ObserveEvaluation(outcomeOK, e.clock.Now().Sub(started))

	logger.WithContext(ctx, e.log).Debug("price breakdown computed",
		zap.Any("context", evalCtx.Summary()),
		zap.Int64("rule_set_version", breakdown.RuleSetVersion),
		zap.Strings("applied_rules", breakdown.SelectionKey()),
		zap.Int64("total", breakdown.Total),
	)
	return breakdown, nil
}

func (e *Engine) computeFromSnapshot(ctx context.Context, evalCtx pricingdomain.EvaluationContext) (*pricingdomain.PriceBreakdown, error) {
	set, err := e.rules.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		breakdown, err := e.evaluate(ctx, evalCtx, set)
		if err != nil {
			return nil, err
		}
		if (!set.FromCache && attempt == 0) || len(breakdown.AppliedRules) == 0 {
			return breakdown, nil
		}

		missing, err := e.rules.MissingRules(ctx, ruleIDs(breakdown))
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			return breakdown, nil
		}

		notFound := pricingdomain.NewNotFoundError("selected rule no longer exists", missing[0])
		if attempt > 0 {
			return nil, pricingdomain.NewConfigurationError("stale_rule_set",
				"rule store still missing selected rule after refresh", missing[0], notFound)
		}

		e.engineMetrics.RecordRuleCacheLookup(metrics.RuleCacheStale)
		logger.WithContext(ctx, e.log).Warn("cached rule set is stale, refreshing",
			zap.Int64("rule_set_version", set.Version),
			zap.Strings("missing_rules", missing),
		)
		set, err = e.rules.Refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
}

// evaluate is pure apart from the tax lookup. Only rules in tiers this
// context reaches are checked, so a malformed rule fails the evaluations it
// could affect and nothing else.
func (e *Engine) evaluate(ctx context.Context, evalCtx pricingdomain.EvaluationContext, set pricingruledomain.RuleSet) (*pricingdomain.PriceBreakdown, error) {
	for _, rule := range set.Rules {
		if !rule.IsActive || !scope.Reaches(evalCtx, rule) {
			continue
		}
		if err := evaluator.CheckRule(rule); err != nil {
			return nil, err
		}
	}

	resolver := scope.NewResolver(set.Rules, evalCtx.EvaluatedAt)
	amounts := make(map[pricingruledomain.RuleType]int64, len(pricingruledomain.RuleTypes))
	applied := make([]pricingdomain.AppliedRule, 0, len(pricingruledomain.RuleTypes))

	for _, ruleType := range pricingruledomain.RuleTypes {
		base := evaluator.BaseAmount(ruleType, evalCtx)
		rule, _, ok := resolver.Select(evalCtx, ruleType, base)
		if !ok {
			continue
		}
		amount, err := evaluator.Amount(rule, base)
		if err != nil {
			return nil, err
		}
		amounts[ruleType] = amount
		applied = append(applied, pricingdomain.AppliedRule{
			RuleID:         rule.ID,
			RuleType:       rule.RuleType,
			Scope:          rule.Scope,
			ScopeValue:     rule.ScopeValue,
			FeeType:        rule.FeeType,
			FeeValue:       rule.FeeValue,
			Priority:       rule.Priority,
			BaseAmount:     base,
			ComputedAmount: amount,
		})
	}

	breakdown := &pricingdomain.PriceBreakdown{
		Subtotal:       evalCtx.Subtotal,
		PlatformFee:    amounts[pricingruledomain.RuleTypePlatformFee],
		BuyerFee:       amounts[pricingruledomain.RuleTypeBuyerFee],
		SupplierFee:    amounts[pricingruledomain.RuleTypeSupplierFee],
		Commission:     amounts[pricingruledomain.RuleTypeCommission],
		Currency:       evalCtx.Currency,
		AppliedRules:   applied,
		RuleSetVersion: set.Version,
		EvaluatedAt:    evalCtx.EvaluatedAt,
	}
	if evalCtx.ShippingEstimate != nil {
		breakdown.Shipping = *evalCtx.ShippingEstimate
	} else {
		breakdown.ShippingPending = true
	}

	sales, err := e.applyTax(ctx, taxdomain.KindSales, evalCtx.Country, evalCtx.Subtotal)
	if err != nil {
		return nil, err
	}
	duty, err := e.applyDuty(ctx, evalCtx.CategorySlug, evalCtx.Subtotal)
	if err != nil {
		return nil, err
	}
	withholding, err := e.applyTax(ctx, taxdomain.KindWithholding, evalCtx.SupplierCountry, evalCtx.Subtotal)
	if err != nil {
		return nil, err
	}
	for _, tax := range []*pricingdomain.AppliedTax{sales, duty, withholding} {
		if tax != nil {
			breakdown.AppliedTaxes = append(breakdown.AppliedTaxes, *tax)
		}
	}
	// duty is buyer side and adds to sales tax
	for _, tax := range []*pricingdomain.AppliedTax{sales, duty} {
		if tax == nil {
			continue
		}
		if breakdown.Tax, err = pricingdomain.SumAmounts(breakdown.Tax, tax.ComputedAmount); err != nil {
			return nil, err
		}
	}
	if withholding != nil {
		breakdown.TaxWithheld = withholding.ComputedAmount
	}

	total, err := pricingdomain.SumAmounts(breakdown.Subtotal, breakdown.PlatformFee, breakdown.BuyerFee, breakdown.Shipping, breakdown.Tax)
	if err != nil {
		return nil, err
	}
	breakdown.Total = total
	if err := breakdown.CheckInvariant(); err != nil {
		return nil, err
	}
	return breakdown, nil
}

func (e *Engine) applyTax(ctx context.Context, kind taxdomain.Kind, country string, base int64) (*pricingdomain.AppliedTax, error) {
	if country == "" {
		return nil, nil
	}
	rate, err := e.tax.ResolveRate(ctx, country, kind)
	if err != nil {
		return nil, err
	}
	if rate.Source == taxdomain.RateSourceNone {
		return nil, nil
	}
	return &pricingdomain.AppliedTax{
		Kind:           string(kind),
		Country:        rate.Country,
		Code:           rate.Code,
		Rate:           rate.Rate,
		Source:         string(rate.Source),
		BaseAmount:     base,
		ComputedAmount: taxservice.ComputeTax(base, rate.Rate),
	}, nil
}

func (e *Engine) applyDuty(ctx context.Context, category string, base int64) (*pricingdomain.AppliedTax, error) {
	rate, err := e.tax.ResolveDutyRate(ctx, category)
	if err != nil {
		return nil, err
	}
	if rate.Source == taxdomain.RateSourceNone {
		return nil, nil
	}
	return &pricingdomain.AppliedTax{
		Kind:           string(taxdomain.KindDuty),
		Category:       rate.Category,
		Rate:           rate.Rate,
		Source:         string(rate.Source),
		BaseAmount:     base,
		ComputedAmount: taxservice.ComputeTax(base, rate.Rate),
	}, nil
}

// fail attaches the evaluation context to pricing errors, logs and counts
// the failure and marks the span.
func (e *Engine) fail(ctx context.Context, span trace.Span, evalCtx pricingdomain.EvaluationContext, started time.Time, err error) error {
	summary := evalCtx.Summary()
	log := logger.WithContext(ctx, e.log).With(zap.Any("context", summary))

	outcome := outcomeError
	if perr, ok := pricingdomain.AsError(err); ok {
		err = perr.WithContext(summary)
		log = log.With(
			zap.String("error_kind", string(perr.Kind)),
			zap.String("error_code", perr.Code),
			zap.String("rule_id", perr.RuleID),
		)
		switch {
		case errors.Is(err, pricingdomain.ErrValidation):
			outcome = outcomeValidation
			log.Debug("price breakdown rejected", zap.Error(err))
		case errors.Is(err, pricingdomain.ErrConfiguration):
			outcome = outcomeConfiguration
			e.metrics.RecordConfigurationError(ctx, perr.Code)
			log.Error("pricing configuration error", zap.Error(err))
		default:
			log.Error("price breakdown failed", zap.Error(err))
		}
	} else {
		log.Error("price breakdown failed", zap.Error(err))
	}

	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, outcome)
	e.engineMetrics.ObserveEvaluation(outcome, e.clock.Now().Sub(started))
	return err
}

func ruleIDs(b *pricingdomain.PriceBreakdown) []string {
	ids := make([]string, 0, len(b.AppliedRules))
	for _, rule := range b.AppliedRules {
		ids = append(ids, rule.RuleID)
	}
	return ids
}
