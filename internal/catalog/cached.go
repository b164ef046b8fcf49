package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/trialscout/trial-matcher/internal/domain"
)

const allCancerTypes = "all"

// CachedStoreConfig tunes the two cache tiers
type CachedStoreConfig struct {
	MemoryItems int
	MemoryTTL   time.Duration
}

// CacheStats counts cache traffic per tier
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RemoteHits   int64 `json:"remote_hits"`
	RemoteMisses int64 `json:"remote_misses"`
	SourceLoads  int64 `json:"source_loads"`
}

// CachedStore decorates a TrialStore with a two-tier snapshot cache for
// GetTrials, the call made on every match request. Tier 1 is an in-process
// LRU, tier 2 an optional SnapshotCache such as Redis. Writes go straight to
// the inner store and invalidate both tiers.
type CachedStore struct {
	inner  domain.TrialStore
	memory *expirable.LRU[string, []domain.Trial]
	remote SnapshotCache
	logger *logrus.Logger

	memoryHits, memoryMisses atomic.Int64
	remoteHits, remoteMisses atomic.Int64
	sourceLoads              atomic.Int64
}

// NewCachedStore wraps inner. remote may be nil.
func NewCachedStore(inner domain.TrialStore, remote SnapshotCache, config CachedStoreConfig, logger *logrus.Logger) *CachedStore {
	if config.MemoryItems <= 0 {
		config.MemoryItems = 16
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &CachedStore{
		inner:  inner,
		memory: expirable.NewLRU[string, []domain.Trial](config.MemoryItems, nil, config.MemoryTTL),
		remote: remote,
		logger: logger,
	}
}

func snapshotKey(cancerType *domain.CancerType) string {
	if cancerType == nil {
		return allCancerTypes
	}
	return string(*cancerType)
}

// GetTrials serves from the memory tier, then the remote tier, then the inner store
func (c *CachedStore) GetTrials(ctx context.Context, cancerType *domain.CancerType) ([]domain.Trial, error) {
	key := snapshotKey(cancerType)

	if trials, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		return cloneTrials(trials), nil
	}
	c.memoryMisses.Add(1)

	if c.remote != nil {
		trials, ok, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.WithError(err).WithField("cache_key", key).Warn("Remote catalog cache unavailable")
		}
		if ok {
			c.remoteHits.Add(1)
			c.memory.Add(key, trials)
			return cloneTrials(trials), nil
		}
		c.remoteMisses.Add(1)
	}

	trials, err := c.inner.GetTrials(ctx, cancerType)
	if err != nil {
		return nil, err
	}
	c.sourceLoads.Add(1)

	c.memory.Add(key, cloneTrials(trials))
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, trials); err != nil {
			c.logger.WithError(err).WithField("cache_key", key).Warn("Failed to store catalog snapshot")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key": key,
		"trials":    len(trials),
	}).Debug("Loaded catalog snapshot from source")
	return trials, nil
}

// GetTrial reads through to the inner store
func (c *CachedStore) GetTrial(ctx context.Context, nctNumber string) (*domain.Trial, error) {
	return c.inner.GetTrial(ctx, nctNumber)
}

// ListTrials reads through to the inner store
func (c *CachedStore) ListTrials(ctx context.Context, filter domain.TrialFilter) ([]domain.Trial, error) {
	return c.inner.ListTrials(ctx, filter)
}

// CountTrials reads through to the inner store
func (c *CachedStore) CountTrials(ctx context.Context) (int, error) {
	return c.inner.CountTrials(ctx)
}

// CreateTrial writes to the inner store and invalidates cached snapshots
func (c *CachedStore) CreateTrial(ctx context.Context, trial *domain.Trial) error {
	if err := c.inner.CreateTrial(ctx, trial); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// UpdateTrial writes to the inner store and invalidates cached snapshots
func (c *CachedStore) UpdateTrial(ctx context.Context, nctNumber string, patch *domain.TrialPatch) (*domain.Trial, error) {
	t, err := c.inner.UpdateTrial(ctx, nctNumber, patch)
	if err != nil {
		return nil, err
	}
	c.Invalidate(ctx)
	return t, nil
}

// DeleteTrial writes to the inner store and invalidates cached snapshots
func (c *CachedStore) DeleteTrial(ctx context.Context, nctNumber string) error {
	if err := c.inner.DeleteTrial(ctx, nctNumber); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops every cached snapshot in both tiers
func (c *CachedStore) Invalidate(ctx context.Context) {
	c.memory.Purge()
	if c.remote == nil {
		return
	}
	keys := []string{allCancerTypes, string(domain.BREAST), string(domain.LUNG)}
	if err := c.remote.Delete(ctx, keys...); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate remote catalog cache")
	}
}

// Stats returns a snapshot of the cache counters
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{
		MemoryHits:   c.memoryHits.Load(),
		MemoryMisses: c.memoryMisses.Load(),
		RemoteHits:   c.remoteHits.Load(),
		RemoteMisses: c.remoteMisses.Load(),
		SourceLoads:  c.sourceLoads.Load(),
	}
}
