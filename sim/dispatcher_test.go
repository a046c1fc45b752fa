package sim

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiers(jobsByTier map[Tier][]*Job) [numTiers]*TierQueue {
	var tiers [numTiers]*TierQueue
	for _, t := range tierOrder {
		tiers[t] = NewTierQueue(t)
		for _, j := range jobsByTier[t] {
			tiers[t].Enqueue(j)
		}
	}
	return tiers
}

func newTestDispatcher(w TierWeights, q1, q2 float64) *Dispatcher {
	return NewDispatcher(w, q1, q2, rand.NewPCG(11, 13))
}

func TestResolveTier_Cascade(t *testing.T) {
	tests := []struct {
		name     string
		selected Tier
		occ      TierOccupancy
		want     Tier
		wantOK   bool
	}{
		{"selected non-empty", TierRRT2, TierOccupancy{1, 1, 1}, TierRRT2, true},
		{"rr-t1 empty falls to rr-t2", TierRRT1, TierOccupancy{0, 2, 0}, TierRRT2, true},
		{"rr-t1 and rr-t2 empty fall to fcfs", TierRRT1, TierOccupancy{0, 0, 3}, TierFCFS, true},
		{"rr-t2 empty falls to fcfs", TierRRT2, TierOccupancy{4, 0, 1}, TierFCFS, true},
		{"cascade never wraps to rr-t1", TierRRT2, TierOccupancy{4, 0, 0}, TierNone, false},
		{"empty fcfs selection dispatches nothing", TierFCFS, TierOccupancy{4, 4, 0}, TierNone, false},
		{"all empty", TierRRT1, TierOccupancy{}, TierNone, false},
		{"invalid selection", TierNone, TierOccupancy{1, 1, 1}, TierNone, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveTier(tc.selected, tc.occ)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestDispatcher_SelectTier_FollowsWeights(t *testing.T) {
	// GIVEN the reference weights 0.8 / 0.1 / 0.1
	d := newTestDispatcher(DefaultConfig().TierWeights, 5, 5)

	// WHEN 20000 tiers are drawn
	const draws = 20000
	var counts [numTiers]int
	for range draws {
		tier := d.SelectTier()
		require.True(t, tier.Valid(), "drew invalid tier %d", tier)
		counts[tier]++
	}

	// THEN the empirical frequencies are close to the weights
	assert.InDelta(t, 0.8, float64(counts[TierRRT1])/draws, 0.02)
	assert.InDelta(t, 0.1, float64(counts[TierRRT2])/draws, 0.02)
	assert.InDelta(t, 0.1, float64(counts[TierFCFS])/draws, 0.02)
}

func TestDispatcher_SelectTier_ZeroWeightNeverDrawn(t *testing.T) {
	d := newTestDispatcher(onlyTier(TierRRT2), 5, 5)
	for range 1000 {
		assert.Equal(t, TierRRT2, d.SelectTier())
	}
}

func TestDispatcher_SelectTier_SameSourceSameDraws(t *testing.T) {
	a := newTestDispatcher(DefaultConfig().TierWeights, 5, 5)
	b := newTestDispatcher(DefaultConfig().TierWeights, 5, 5)
	for i := range 500 {
		require.Equal(t, a.SelectTier(), b.SelectTier(), "draw %d", i)
	}
}

func TestDispatcher_Dispatch_RRT1_QuantumExceeded_Demotes(t *testing.T) {
	// GIVEN RR-T1 = [J] with 7 units of service and quantum 5
	j := NewJob(1, 0, 7, 100, PriorityLow)
	tiers := newTestTiers(map[Tier][]*Job{TierRRT1: {j}})
	d := newTestDispatcher(onlyTier(TierRRT1), 5, 5)

	// WHEN the dispatcher runs
	dp, ok := d.Dispatch(tiers)

	// THEN J gets a grant of 5, keeps 2 units and will be demoted to RR-T2
	require.True(t, ok)
	assert.Same(t, j, dp.Job)
	assert.Equal(t, 5.0, dp.Grant)
	assert.Equal(t, 2.0, j.RemainingService)
	assert.Equal(t, TierRRT2, dp.Demote)
	assert.Equal(t, StateRunning, j.State)
	assert.Equal(t, 0, tiers[TierRRT1].Len(), "dispatched job must leave its queue")
	assert.False(t, dp.Fallback())
}

func TestDispatcher_Dispatch_RRT2_QuantumExceeded_DemotesToFCFS(t *testing.T) {
	j := NewJob(1, 0, 9, 100, PriorityLow)
	tiers := newTestTiers(map[Tier][]*Job{TierRRT2: {j}})
	d := newTestDispatcher(onlyTier(TierRRT2), 5, 3)

	dp, ok := d.Dispatch(tiers)

	require.True(t, ok)
	assert.Equal(t, 3.0, dp.Grant)
	assert.Equal(t, 6.0, j.RemainingService)
	assert.Equal(t, TierFCFS, dp.Demote)
}

func TestDispatcher_Dispatch_WithinQuantum_Finishes(t *testing.T) {
	j := NewJob(1, 0, 2.5, 100, PriorityLow)
	tiers := newTestTiers(map[Tier][]*Job{TierRRT1: {j}})
	d := newTestDispatcher(onlyTier(TierRRT1), 5, 5)

	dp, ok := d.Dispatch(tiers)

	require.True(t, ok)
	assert.Equal(t, 2.5, dp.Grant)
	assert.Equal(t, 0.0, j.RemainingService)
	assert.Equal(t, TierNone, dp.Demote)
}

func TestDispatcher_Dispatch_FCFS_GrantsFullService(t *testing.T) {
	// GIVEN FCFS = [J] with 12 units of service, larger than any quantum
	j := NewJob(1, 0, 12, 100, PriorityLow)
	tiers := newTestTiers(map[Tier][]*Job{TierFCFS: {j}})
	d := newTestDispatcher(onlyTier(TierFCFS), 5, 5)

	// WHEN the dispatcher runs
	dp, ok := d.Dispatch(tiers)

	// THEN J runs to completion without demotion
	require.True(t, ok)
	assert.Equal(t, 12.0, dp.Grant)
	assert.Equal(t, 0.0, j.RemainingService)
	assert.Equal(t, TierNone, dp.Demote)
}

func TestDispatcher_Dispatch_EmptySelection_FallsBack(t *testing.T) {
	// GIVEN RR-T1 is always selected but only RR-T2 holds a job
	j := NewJob(1, 0, 1, 100, PriorityLow)
	tiers := newTestTiers(map[Tier][]*Job{TierRRT2: {j}})
	d := newTestDispatcher(onlyTier(TierRRT1), 5, 5)

	// WHEN the dispatcher runs
	dp, ok := d.Dispatch(tiers)

	// THEN the cascade reaches RR-T2
	require.True(t, ok)
	assert.Equal(t, TierRRT1, dp.Selected)
	assert.Equal(t, TierRRT2, dp.Resolved)
	assert.True(t, dp.Fallback())
}

func TestDispatcher_Dispatch_AllEmpty_NoDispatch(t *testing.T) {
	d := newTestDispatcher(DefaultConfig().TierWeights, 5, 5)

	dp, ok := d.Dispatch(newTestTiers(nil))

	assert.False(t, ok)
	assert.Nil(t, dp.Job)
	assert.Equal(t, TierNone, dp.Resolved)
}

func TestDispatcher_Dispatch_TakesHeadOfQueue(t *testing.T) {
	first := NewJob(1, 0, 1, 100, PriorityLow)
	second := NewJob(2, 0, 1, 100, PriorityHigh)
	tiers := newTestTiers(map[Tier][]*Job{TierRRT1: {first, second}})
	d := newTestDispatcher(onlyTier(TierRRT1), 5, 5)

	dp, ok := d.Dispatch(tiers)

	require.True(t, ok)
	assert.Same(t, first, dp.Job)
	assert.Equal(t, []JobID{2}, jobIDs(tiers[TierRRT1].Items()))
}

func TestNewDispatcher_NilSource_Panics(t *testing.T) {
	assert.Panics(t, func() { NewDispatcher(DefaultConfig().TierWeights, 5, 5, nil) })
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "RR-T1", TierRRT1.String())
	assert.Equal(t, "RR-T2", TierRRT2.String())
	assert.Equal(t, "FCFS", TierFCFS.String())
	assert.Equal(t, "none", TierNone.String())
	assert.Equal(t, "tier(7)", Tier(7).String())
}
