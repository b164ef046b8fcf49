package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscout/trial-matcher/internal/domain"
)

type countingStore struct {
	*MemoryStore
	getTrialsCalls int
}

func (c *countingStore) GetTrials(ctx context.Context, cancerType *domain.CancerType) ([]domain.Trial, error) {
	c.getTrialsCalls++
	return c.MemoryStore.GetTrials(ctx, cancerType)
}

type fakeSnapshotCache struct {
	mu      sync.Mutex
	data    map[string][]domain.Trial
	getErr  error
	deleted []string
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{data: map[string][]domain.Trial{}}
}

func (f *fakeSnapshotCache) Get(ctx context.Context, key string) ([]domain.Trial, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	trials, ok := f.data[key]
	return trials, ok, nil
}

func (f *fakeSnapshotCache) Set(ctx context.Context, key string, trials []domain.Trial) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = cloneTrials(trials)
	return nil
}

func (f *fakeSnapshotCache) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	f.deleted = append(f.deleted, keys...)
	return nil
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	mem, err := NewSeededMemoryStore()
	require.NoError(t, err)
	return &countingStore{MemoryStore: mem}
}

func TestCachedStoreMemoryTier(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStore(t)
	cached := NewCachedStore(inner, nil, CachedStoreConfig{}, nil)

	breast := domain.BREAST
	for i := 0; i < 3; i++ {
		trials, err := cached.GetTrials(ctx, &breast)
		require.NoError(t, err)
		assert.Len(t, trials, 10)
	}
	all, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 20)

	assert.Equal(t, 2, inner.getTrialsCalls)
	stats := cached.Stats()
	assert.Equal(t, int64(2), stats.MemoryHits)
	assert.Equal(t, int64(2), stats.MemoryMisses)
	assert.Equal(t, int64(2), stats.SourceLoads)
}

func TestCachedStoreRemoteTier(t *testing.T) {
	ctx := context.Background()
	remote := newFakeSnapshotCache()

	first := NewCachedStore(newCountingStore(t), remote, CachedStoreConfig{}, nil)
	_, err := first.GetTrials(ctx, nil)
	require.NoError(t, err)
	require.Contains(t, remote.data, allCancerTypes)

	// a second replica finds the snapshot in the shared tier
	inner := newCountingStore(t)
	second := NewCachedStore(inner, remote, CachedStoreConfig{}, nil)
	trials, err := second.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, trials, 20)
	assert.Equal(t, 0, inner.getTrialsCalls)
	assert.Equal(t, int64(1), second.Stats().RemoteHits)
}

func TestCachedStoreRemoteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	remote := newFakeSnapshotCache()
	remote.getErr = errors.New("connection refused")
	logger, hook := test.NewNullLogger()

	inner := newCountingStore(t)
	cached := NewCachedStore(inner, remote, CachedStoreConfig{}, logger)

	trials, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, trials, 20)
	assert.Equal(t, 1, inner.getTrialsCalls)
	assert.Equal(t, "Remote catalog cache unavailable", hook.Entries[0].Message)
}

func TestCachedStoreWritesInvalidate(t *testing.T) {
	ctx := context.Background()
	remote := newFakeSnapshotCache()
	inner := newCountingStore(t)
	cached := NewCachedStore(inner, remote, CachedStoreConfig{}, nil)

	_, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)

	tr := testTrial(t, "NCT09000001", domain.LUNG)
	require.NoError(t, cached.CreateTrial(ctx, &tr))
	assert.Contains(t, remote.deleted, allCancerTypes)

	trials, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, trials, 21)
	assert.Equal(t, 2, inner.getTrialsCalls)

	require.NoError(t, cached.DeleteTrial(ctx, "NCT09000001"))
	trials, err = cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, trials, 20)

	assert.ErrorIs(t, cached.DeleteTrial(ctx, "NCT09000001"), domain.ErrNotFound)
}

func TestCachedStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cached := NewCachedStore(newCountingStore(t), nil, CachedStoreConfig{}, nil)

	trials, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	trials[0].Title = "changed"

	again, err := cached.GetTrials(ctx, nil)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again[0].Title)
}
