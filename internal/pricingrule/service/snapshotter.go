package service

import (
	"context"
	"database/sql"
	"sort"

	"github.com/banadama/pricing/internal/cache"
	"github.com/banadama/pricing/internal/observability/metrics"
	pricingruledomain "github.com/banadama/pricing/internal/pricingrule/domain"
	pkgdb "github.com/banadama/pricing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SnapshotterParams struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Repo          pricingruledomain.Repository
	Cache         cache.RuleSetCache
	EngineMetrics *metrics.EngineMetrics `optional:"true"`
}

type Snapshotter struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          pricingruledomain.Repository
	cache         cache.RuleSetCache
	engineMetrics *metrics.EngineMetrics
}

func NewSnapshotter(p SnapshotterParams) pricingruledomain.Snapshotter {
	return &Snapshotter{
		db:            p.DB,
		log:           p.Log.Named("pricingrule.snapshotter"),
		repo:          p.Repo,
		cache:         p.Cache,
		engineMetrics: p.EngineMetrics,
	}
}

func (s *Snapshotter) Snapshot(ctx context.Context) (pricingruledomain.RuleSet, error) {
	return s.read(ctx, true)
}

func (s *Snapshotter) Refresh(ctx context.Context) (pricingruledomain.RuleSet, error) {
	s.cache.Invalidate(ctx)
	return s.read(ctx, false)
}

func (s *Snapshotter) MissingRules(ctx context.Context, ids []string) ([]string, error) {
	existing, err := s.repo.FindExistingIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		found[id] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// read loads the version and the active rules inside one read transaction so
// an admin write cannot land between the two.
func (s *Snapshotter) read(ctx context.Context, useCache bool) (pricingruledomain.RuleSet, error) {
	var set pricingruledomain.RuleSet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.repo.CurrentVersion(ctx, tx)
		if err != nil {
			return err
		}

		if useCache {
			if cached, ok := s.cache.Get(ctx, version); ok {
				set = cached
				set.FromCache = true
				return nil
			}
		}

		rules, err := s.repo.List(ctx, tx, pricingruledomain.ListFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
		set = pricingruledomain.RuleSet{Version: version, Rules: rules}
		return nil
	}, snapshotTxOptions(s.db)...)
	if err != nil {
		return pricingruledomain.RuleSet{}, err
	}

	switch {
	case set.FromCache:
		s.engineMetrics.RecordRuleCacheLookup(metrics.RuleCacheHit)
	default:
		s.engineMetrics.RecordRuleCacheLookup(metrics.RuleCacheMiss)
		s.cache.Set(ctx, set)
	}

	s.log.Debug("rule set snapshot",
		zap.Int64("version", set.Version),
		zap.Int("rules", len(set.Rules)),
		zap.Bool("from_cache", set.FromCache),
	)
	return set, nil
}

func snapshotTxOptions(db *gorm.DB) []*sql.TxOptions {
	if !pkgdb.IsPostgres(db) {
		return nil
	}
	return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
}
