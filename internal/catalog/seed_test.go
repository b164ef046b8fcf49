package catalog

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// testTrial derives a valid trial from the first seed record
func testTrial(t *testing.T, nct string, cancerType domain.CancerType) domain.Trial {
	t.Helper()
	trials := MustSeedTrials()
	for _, tr := range trials {
		if tr.CancerType == cancerType {
			tr.NCTNumber = nct
			tr.ID = "test_" + nct
			return tr
		}
	}
	t.Fatalf("no seed trial for %s", cancerType)
	return domain.Trial{}
}

func TestSeedTrials(t *testing.T) {
	trials, err := SeedTrials()
	require.NoError(t, err)
	require.Len(t, trials, 20)

	byType := map[domain.CancerType]int{}
	for _, tr := range trials {
		byType[tr.CancerType]++
		assert.NoError(t, tr.Validate(), tr.NCTNumber)
	}
	assert.Equal(t, 10, byType[domain.BREAST])
	assert.Equal(t, 10, byType[domain.LUNG])
}

func TestSeedTrialsReturnsCopies(t *testing.T) {
	first := MustSeedTrials()
	first[0].Title = "changed"
	first[0].EligibilityCriteria[0].Criterion = "changed"

	second := MustSeedTrials()
	assert.NotEqual(t, "changed", second[0].Title)
	assert.NotEqual(t, "changed", second[0].EligibilityCriteria[0].Criterion)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	trials := MustSeedTrials()

	res, err := Seed(ctx, store, trials, logger)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Inserted: 20}, res)

	res, err = Seed(ctx, store, trials, logger)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Skipped: 20}, res)

	count, err := store.CountTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 20, hook.LastEntry().Data["skipped"])
}

func TestSeedStopsOnInvalidTrial(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(nil)
	require.NoError(t, err)

	bad := testTrial(t, "NCT1234", domain.BREAST)
	_, err = Seed(ctx, store, []domain.Trial{bad}, nil)
	require.Error(t, err)

	var verrs domain.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}
