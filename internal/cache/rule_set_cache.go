package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banadama/pricing/internal/config"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRuleSetTTL = 5 * time.Minute
	redisKeyPrefix    = "pricing:ruleset:v"
)

// RuleSetCache holds rule sets keyed by rule-set version. A rule write bumps
// the version, so a cached entry can never stand in for a newer set.
type RuleSetCache interface {
	Get(ctx context.Context, version int64) (pricingruledomain.RuleSet, bool)
	Set(ctx context.Context, set pricingruledomain.RuleSet)
	Invalidate(ctx context.Context)
}

type ruleSetCache struct {
	local  Cache[int64, pricingruledomain.RuleSet]
	remote redis.UniversalClient
	ttl    func() time.Duration
	log    *zap.Logger
}

// NewRuleSetCache layers an in-process cache over an optional redis client.
func NewRuleSetCache(remote redis.UniversalClient, holder *config.PricingConfigHolder, log *zap.Logger) RuleSetCache {
	ttl := func() time.Duration { return defaultRuleSetTTL }
	if holder != nil {
		ttl = func() time.Duration {
			if configured := holder.Get().RuleCacheTTL; configured > 0 {
				return configured
			}
			return defaultRuleSetTTL
		}
	}
	return &ruleSetCache{
		local:  NewTTLCache[int64, pricingruledomain.RuleSet](),
		remote: remote,
		ttl:    ttl,
		log:    log.Named("cache.ruleset"),
	}
}

// NewMemoryRuleSetCache is the in-process cache alone.
func NewMemoryRuleSetCache(ttl time.Duration) RuleSetCache {
	return &ruleSetCache{
		local: NewTTLCache[int64, pricingruledomain.RuleSet](),
		ttl:   func() time.Duration { return ttl },
		log:   zap.NewNop(),
	}
}

func (c *ruleSetCache) Get(ctx context.Context, version int64) (pricingruledomain.RuleSet, bool) {
	if set, ok := c.local.Get(version); ok {
		return set, true
	}
	if c.remote == nil {
		return pricingruledomain.RuleSet{}, false
	}

	raw, err := c.remote.Get(ctx, redisKey(version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("rule set cache read failed", zap.Int64("version", version), zap.Error(err))
		}
		return pricingruledomain.RuleSet{}, false
	}

	var set pricingruledomain.RuleSet
	if err := json.Unmarshal(raw, &set); err != nil || set.Version != version {
		c.log.Warn("discarding undecodable rule set", zap.Int64("version", version), zap.Error(err))
		return pricingruledomain.RuleSet{}, false
	}
	c.local.Set(version, set, c.ttl())
	return set, true
}

func (c *ruleSetCache) Set(ctx context.Context, set pricingruledomain.RuleSet) {
	set.FromCache = false
	ttl := c.ttl()
	c.local.Set(set.Version, set, ttl)
	if c.remote == nil {
		return
	}

	raw, err := json.Marshal(set)
	if err != nil {
		c.log.Warn("rule set encode failed", zap.Int64("version", set.Version), zap.Error(err))
		return
	}
	if err := c.remote.Set(ctx, redisKey(set.Version), raw, ttl).Err(); err != nil {
		c.log.Warn("rule set cache write failed", zap.Int64("version", set.Version), zap.Error(err))
	}
}

// Invalidate drops every local entry. Remote entries are version keyed and
// expire on their own; nothing reads a superseded version after a bump.
func (c *ruleSetCache) Invalidate(context.Context) {
	c.local.Purge()
}

func redisKey(version int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, version)
}
