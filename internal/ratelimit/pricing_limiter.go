package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banadama/pricing/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyBreakdownAccount = "pricing:breakdown:account:%s"
	keyQuoteAcceptLock  = "pricing:quote:accept:%s"
)

// PricingLimiter throttles breakdown requests per buyer account and
// serializes quote acceptance across instances. A nil or disabled limiter
// allows everything.
type PricingLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger

	breakdownRate  float64
	breakdownBurst int
	lockTTL        time.Duration
}

func NewPricingLimiter(cfg config.Config, client redis.UniversalClient, log *zap.Logger) (*PricingLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_URL")
	}
	if limitCfg.BreakdownRate <= 0 || limitCfg.BreakdownBurst <= 0 {
		return nil, errors.New("breakdown rate limit must be positive")
	}
	if limitCfg.QuoteLockTTLSeconds <= 0 {
		return nil, errors.New("quote lock ttl must be positive")
	}

	return &PricingLimiter{
		enabled:        true,
		bucket:         NewTokenBucket(client),
		locker:         NewLocker(client),
		log:            log.Named("ratelimit"),
		breakdownRate:  limitCfg.BreakdownRate,
		breakdownBurst: limitCfg.BreakdownBurst,
		lockTTL:        time.Duration(limitCfg.QuoteLockTTLSeconds) * time.Second,
	}, nil
}

func (l *PricingLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PricingLimiter) AllowBreakdown(ctx context.Context, accountID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyBreakdownAccount, strings.TrimSpace(accountID)), l.breakdownRate, l.breakdownBurst)
}

// TryLockQuote returns ok=false while another request holds the quote.
func (l *PricingLimiter) TryLockQuote(ctx context.Context, quoteID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyQuoteAcceptLock, strings.TrimSpace(quoteID)), l.lockTTL)
}

func (l *PricingLimiter) ReleaseQuote(ctx context.Context, quoteID, token string) {
	if !l.Enabled() {
		return
	}
	if err := l.locker.Release(ctx, fmt.Sprintf(keyQuoteAcceptLock, strings.TrimSpace(quoteID)), token); err != nil {
		l.log.Warn("release quote lock failed", zap.String("quote_id", quoteID), zap.Error(err))
	}
}
