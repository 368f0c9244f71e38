// Package scope picks the single rule of each rule type that applies to an
// evaluation, searching scope tiers from most to least specific.
package scope

import (
	"time"

	"github.com/banadama/pricing/internal/pricing/evaluator"
	pricingdomain "github.com/banadama/pricing/internal/pricing/domain"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
)

// Tier is a specificity level. Lower values are more specific.
type Tier int

const (
	TierAccount Tier = iota
	TierCategory
	TierCountry
	TierGlobal
)

var tierScopes = [...]pricingruledomain.Scope{
	TierAccount:  pricingruledomain.ScopeAccount,
	TierCategory: pricingruledomain.ScopeCategory,
	TierCountry:  pricingruledomain.ScopeCountry,
	TierGlobal:   pricingruledomain.ScopeGlobal,
}

func (t Tier) Scope() pricingruledomain.Scope {
	return tierScopes[t]
}

func (t Tier) String() string {
	return string(t.Scope())
}

// Candidate is a tier to search and the context value a rule must carry.
type Candidate struct {
	Tier  Tier
	Value string
}

// Tiers returns the tiers to search for in, most specific first. Tiers whose
// dimension is blank are skipped.
func Tiers(in pricingdomain.EvaluationContext) []Candidate {
	values := [...]string{
		TierAccount:  in.AccountID,
		TierCategory: in.CategorySlug,
		TierCountry:  in.Country,
	}
	out := make([]Candidate, 0, len(tierScopes))
	for tier := TierAccount; tier < TierGlobal; tier++ {
		if values[tier] == "" {
			continue
		}
		out = append(out, Candidate{Tier: tier, Value: values[tier]})
	}
	return append(out, Candidate{Tier: TierGlobal})
}

// Reaches reports whether rule sits in a tier this context searches. A rule
// with a blank scope value reaches every context that has the dimension, so
// malformed rules still surface for the evaluations they could affect.
func Reaches(in pricingdomain.EvaluationContext, rule pricingruledomain.PricingRule) bool {
	if rule.Scope == pricingruledomain.ScopeGlobal {
		return true
	}
	for _, c := range Tiers(in) {
		if c.Tier.Scope() != rule.Scope {
			continue
		}
		value := pricingruledomain.NormalizeScopeValue(rule.Scope, rule.ScopeValueOrEmpty())
		return value == "" || value == c.Value
	}
	return false
}

// MostSpecificFirst walks tiers in order and returns the least element, by
// less, of the first tier with any candidates.
func MostSpecificFirst[T any](tiers []Candidate, candidates func(Candidate) []T, less func(a, b T) bool) (T, Tier, bool) {
	var zero T
	for _, tier := range tiers {
		items := candidates(tier)
		if len(items) == 0 {
			continue
		}
		best := items[0]
		for _, item := range items[1:] {
			if less(item, best) {
				best = item
			}
		}
		return best, tier.Tier, true
	}
	return zero, 0, false
}

// Resolver selects rules from a rule set snapshot.
type Resolver struct {
	// byTier indexes eligible rules by rule type, scope and scope value.
	byTier map[pricingruledomain.RuleType]map[pricingruledomain.Scope]map[string][]pricingruledomain.PricingRule
}

// NewResolver indexes the active rules that are effective at.
func NewResolver(rules []pricingruledomain.PricingRule, at time.Time) *Resolver {
	r := &Resolver{byTier: make(map[pricingruledomain.RuleType]map[pricingruledomain.Scope]map[string][]pricingruledomain.PricingRule)}
	for _, rule := range rules {
		if !rule.IsActive || !rule.EffectiveAt(at) {
			continue
		}
		scopes, ok := r.byTier[rule.RuleType]
		if !ok {
			scopes = make(map[pricingruledomain.Scope]map[string][]pricingruledomain.PricingRule)
			r.byTier[rule.RuleType] = scopes
		}
		values, ok := scopes[rule.Scope]
		if !ok {
			values = make(map[string][]pricingruledomain.PricingRule)
			scopes[rule.Scope] = values
		}
		value := pricingruledomain.NormalizeScopeValue(rule.Scope, rule.ScopeValueOrEmpty())
		values[value] = append(values[value], rule)
	}
	return r
}

// Select returns the winning rule of ruleType for base. Out-of-range rules
// are dropped before tiers are compared, so they never block a fallback.
func (r *Resolver) Select(in pricingdomain.EvaluationContext, ruleType pricingruledomain.RuleType, base int64) (pricingruledomain.PricingRule, Tier, bool) {
	scopes := r.byTier[ruleType]
	return MostSpecificFirst(Tiers(in),
		func(c Candidate) []pricingruledomain.PricingRule {
			var in []pricingruledomain.PricingRule
			for _, rule := range scopes[c.Tier.Scope()][c.Value] {
				if evaluator.InRange(rule, base) {
					in = append(in, rule)
				}
			}
			return in
		},
		Wins,
	)
}

// Wins orders rules within one tier: higher priority first, then lower id.
func Wins(a, b pricingruledomain.PricingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}
