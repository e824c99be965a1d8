package patternstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LostLegendarySoftware/patternstore/cell"
)

func TestOptimizeUsesDefaultThreshold(t *testing.T) {
	s := newTestStore(t)

	report, err := s.Optimize(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStabilityThreshold, report.StabilityThreshold)
	assert.True(t, report.Completed)
	assert.Equal(t, len(s.tiers), report.TiersProcessed)
	assert.NotEmpty(t, report.ID)
}

func TestOptimizeCompactsDegradedCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cellID, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	c := s.cellsByID[cellID]

	fieldsBefore := c.FieldsSnapshot()
	for i := 0; i < 10; i++ {
		c.Decay()
	}
	assert.InDelta(t, 0.5, c.Stability(), 1e-9)

	report, err := s.Optimize(ctx, 0.85)
	require.NoError(t, err)

	// The pass decays the cell once more to 0.45, under the compaction
	// floor; everything else stays above the threshold.
	assert.Equal(t, 1, report.CellsRebuilt)
	assert.Equal(t, 0, report.CellsReinforced)
	assert.Equal(t, cell.StateCompacted, c.State())
	assert.InDelta(t, 0.97, c.Stability(), 1e-9)
	assert.NotEqual(t, fieldsBefore, c.FieldsSnapshot())

	// Fresh projections survive compaction.
	res, err := s.Retrieve(ctx, "greet", "casual")
	require.NoError(t, err)
	assert.Equal(t, "hey there", res.Output)
}

func TestOptimizeReinforcesFragileCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cellID, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	c := s.cellsByID[cellID]
	weightBefore := c.ContextWeight("casual")

	for i := 0; i < 3; i++ {
		c.Decay()
	}

	report, err := s.Optimize(ctx, 0.85)
	require.NoError(t, err)

	// One more decay lands at 0.80: under the threshold, over the floor.
	assert.Equal(t, 0, report.CellsRebuilt)
	assert.Equal(t, 1, report.CellsReinforced)
	assert.Equal(t, cell.StateLinked, c.State())
	assert.Greater(t, c.ContextWeight("casual"), weightBefore)
}

func TestOptimizePrunesStaleProjections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cellID, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	tierID, _ := cell.TierOf(cellID)
	require.Greater(t, s.tiers[tierID].UtilizedBytes(), int64(0))

	// Ten idle half-lives collapse the cell's retention energy.
	future := time.Now().Add(10 * time.Hour)
	s.now = func() time.Time { return future }

	report, err := s.Optimize(ctx, 0.85)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ProjectionsPruned)
	assert.Greater(t, report.BytesReclaimed, int64(0))
	assert.Zero(t, s.tiers[tierID].UtilizedBytes())

	// Pruning drops the index bindings with the projection.
	_, err = s.Retrieve(ctx, "greet", "casual")
	assert.ErrorIs(t, err, ErrPatternNotFound)
	assert.Zero(t, s.idx.Patterns())
}

func TestOptimizeRejectsConcurrentPass(t *testing.T) {
	s := newTestStore(t)

	s.maint.Lock()
	defer s.maint.Unlock()

	_, err := s.Optimize(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaintenanceInProgress)
	assert.True(t, IsKind(err, KindBusy))
}

func TestOptimizeCancellationLeavesPartialReport(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Optimize(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.False(t, report.Completed)
	assert.Zero(t, report.TiersProcessed)

	// A fresh pass runs fine afterwards.
	report, err = s.Optimize(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.Completed)
}

func TestOptimizeRebalancesRoutingWeights(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cellID, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	homeTier, _ := cell.TierOf(cellID)

	_, err = s.Optimize(ctx, 0)
	require.NoError(t, err)

	sum := 0.0
	for i, tr := range s.tiers {
		w := tr.RoutingWeight()
		sum += w
		if i != homeTier {
			assert.Greater(t, w, s.tiers[homeTier].RoutingWeight(),
				"tier %d should outweigh the partially filled home tier", i)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestOptimizeDecaysResonanceGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, greetManifest())
	require.NoError(t, err)
	require.InDelta(t, 0.15, s.idx.Strength("greet", "salutation"), 1e-12)

	_, err = s.Optimize(ctx, 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.15*0.95, s.idx.Strength("greet", "salutation"), 1e-12)
}
