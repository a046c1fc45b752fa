package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbsim/fbsim/sim/trace"
)

// scenarioConfig is the three-job walkthrough: RR-T1 always selected,
// quanta of 2 and a transfer every tick.
func scenarioConfig() Config {
	cfg := testConfig()
	cfg.Horizon = 100
	cfg.QuantumT1 = 2
	cfg.QuantumT2 = 2
	return cfg
}

func scenarioJobs() (a, b, c *Job) {
	a = NewJob(1, 0, 3, 100, PriorityHigh)
	b = NewJob(2, 0, 1, 100, PriorityLow)
	c = NewJob(3, 1, 1, 0, PriorityLow)
	return a, b, c
}

func TestSimulator_Scenario_DemotionFallbackAndStarvation(t *testing.T) {
	// GIVEN A (service 3, high), B (service 1, low) at tick 0 and
	// C (timeout 0) arriving at tick 1
	a, b, c := scenarioJobs()
	s := newTestSimulator(t, scenarioConfig(), a, b, c)
	s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})

	// WHEN the simulation runs to completion
	out, err := s.Run()
	require.NoError(t, err)

	// THEN every job is resolved at tick 4
	assert.Equal(t, Outcome{Status: OutcomeCompleted, Tick: 4, Finished: 2, Removed: 1}, out)
	assert.Equal(t, SimTerminated, s.State())

	// AND B finishes before A, which was demoted to RR-T2 after its first quantum
	assert.Equal(t, []JobID{2, 1}, jobIDs(s.Finished))
	assert.Equal(t, int64(3), b.FinishedTick)
	assert.Equal(t, int64(4), a.FinishedTick)
	assert.Equal(t, 0.0, a.RemainingService)

	// AND C is reaped the first time its waiting exceeds zero
	assert.Equal(t, []JobID{3}, jobIDs(s.Removed))
	assert.Equal(t, int64(2), c.RemovedTick)
	assert.Equal(t, int64(-1), c.FinishedTick)

	// AND the decision trace shows the quantum demotion and the RR-T2 fallback
	require.Len(t, s.Trace.Dispatches, 3)
	assert.Equal(t, trace.DispatchRecord{JobID: 1, Clock: 0, Selected: "RR-T1", Resolved: "RR-T1", Grant: 2, Demoted: "RR-T2"}, s.Trace.Dispatches[0])
	assert.Equal(t, trace.DispatchRecord{JobID: 2, Clock: 2, Selected: "RR-T1", Resolved: "RR-T1", Grant: 1}, s.Trace.Dispatches[1])
	assert.Equal(t, trace.DispatchRecord{JobID: 1, Clock: 3, Selected: "RR-T1", Resolved: "RR-T2", Grant: 1}, s.Trace.Dispatches[2])
	require.Len(t, s.Trace.Transfers, 2)
	assert.Equal(t, []int64{1, 2}, s.Trace.Transfers[0].JobIDs)
	assert.Equal(t, []int64{3}, s.Trace.Transfers[1].JobIDs)
	require.Len(t, s.Trace.Evictions, 1)
	assert.Equal(t, "RR-T1", s.Trace.Evictions[0].Container)
}

func TestSimulator_Scenario_Metrics(t *testing.T) {
	a, b, c := scenarioJobs()
	s := newTestSimulator(t, scenarioConfig(), a, b, c)
	_, err := s.Run()
	require.NoError(t, err)

	// waiting: A=2 (two ticks in RR-T2), B=2, C=1
	assert.Equal(t, 2.0, a.AccruedWaiting)
	assert.Equal(t, 2.0, b.AccruedWaiting)
	assert.Equal(t, 1.0, c.AccruedWaiting)

	m := s.Metrics.(*Metrics)
	assert.Equal(t, []int{1, 1, 0, 0}, m.RRT1Lengths)
	assert.Equal(t, []int{0, 1, 1, 0}, m.RRT2Lengths)
	assert.Equal(t, []int{0, 0, 0, 0}, m.FCFSLengths)
	assert.Equal(t, []int{0, 0, 0, 0}, m.PriorityLengths)
	assert.Equal(t, []float64{1, 1, 1, 1}, m.CPUUtilization)

	sum := s.Summarize()
	assert.Equal(t, 4, sum.Ticks)
	assert.InDelta(t, 0.5, sum.AvgRRT1Length.Value, 1e-12)
	assert.InDelta(t, 0.5, sum.AvgRRT2Length.Value, 1e-12)
	assert.InDelta(t, 1.0, sum.AvgCPUUtilization.Value, 1e-12)
	assert.InDelta(t, 5.0/3, sum.AvgWaitingTime.Value, 1e-12)
	assert.InDelta(t, 1.0/3, sum.RemovedPerEnded.Value, 1e-12)
	assert.InDelta(t, 1.0/3, sum.RemovedPerTotal.Value, 1e-12)
}

func TestSimulator_EmptyFCFSSelection_DispatchesNothing(t *testing.T) {
	// GIVEN FCFS is always selected and the only job sits in RR-T1 with timeout 0
	cfg := testConfig()
	cfg.TierWeights = onlyTier(TierFCFS)
	s := newTestSimulator(t, cfg, NewJob(1, 0, 1, 0, PriorityLow))

	// WHEN the simulation runs
	out, err := s.Run()
	require.NoError(t, err)

	// THEN the job is never dispatched and starves on the first tick
	assert.Equal(t, Outcome{Status: OutcomeCompleted, Tick: 1, Removed: 1}, out)
	assert.Equal(t, []float64{0}, s.Metrics.(*Metrics).CPUUtilization)
}

func TestSimulator_ZeroServiceJob_FinishesOnFirstTick(t *testing.T) {
	s := newTestSimulator(t, testConfig(), NewJob(1, 0, 0, 10, PriorityLow))

	out, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, Outcome{Status: OutcomeCompleted, Tick: 1, Finished: 1}, out)
	assert.Equal(t, int64(1), s.Finished[0].FinishedTick)
	assert.Equal(t, []float64{0}, s.Metrics.(*Metrics).CPUUtilization)
}

func TestSimulator_FractionalGrant_PartialUtilization(t *testing.T) {
	s := newTestSimulator(t, testConfig(), NewJob(1, 0, 1.5, 10, PriorityLow))

	out, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.Tick)
	assert.Equal(t, []float64{1, 0.5}, s.Metrics.(*Metrics).CPUUtilization)
}

func TestSimulator_HorizonReached_ReportsBacklog(t *testing.T) {
	// GIVEN a job that needs more service than the horizon allows
	cfg := testConfig()
	cfg.Horizon = 10
	cfg.TierWeights = onlyTier(TierFCFS)
	long := NewJob(1, 0, 50, 1000, PriorityLow)
	waiting := NewJob(2, 0, 1, 1000, PriorityLow)
	s := newTestSimulator(t, cfg, long, waiting)

	// WHEN the simulation runs
	out, err := s.Run()
	require.NoError(t, err)

	// THEN it stops at the horizon with both jobs unresolved
	assert.Equal(t, OutcomeHorizonReached, out.Status)
	assert.Equal(t, int64(10), out.Tick)
	assert.Equal(t, 2, out.Unresolved)
	assert.Equal(t, SimRunning, s.State())
	assert.Equal(t, 10, s.Metrics.(*Metrics).Ticks())
	assert.Equal(t, 2, s.Summarize().Unresolved())
}

func TestSimulator_Transfer_RespectsThresholdAndBatch(t *testing.T) {
	// GIVEN K=2, five jobs at tick 0 and a dispatcher that never touches RR-T1
	cfg := testConfig()
	cfg.TransferBatch = 2
	cfg.TierWeights = onlyTier(TierFCFS)
	jobs := []*Job{
		NewJob(1, 0, 1, 100, PriorityLow),
		NewJob(2, 0, 1, 100, PriorityHigh),
		NewJob(3, 0, 1, 100, PriorityNormal),
		NewJob(4, 0, 1, 100, PriorityLow),
		NewJob(5, 0, 1, 100, PriorityHigh),
	}
	s := newTestSimulator(t, cfg, jobs...)

	// WHEN one tick elapses
	require.NoError(t, s.Step())

	// THEN the two highest-priority jobs move to RR-T1 in admission order
	assert.Equal(t, []JobID{2, 5}, jobIDs(s.Tiers[TierRRT1].Items()))
	assert.Equal(t, 3, s.Admission.Len())

	// WHEN further ticks elapse
	for range 3 {
		require.NoError(t, s.Step())
	}

	// THEN nothing more moves because the tiers already hold K jobs
	assert.Equal(t, 2, s.Tiers[TierRRT1].Len())
	assert.Equal(t, 3, s.Admission.Len())
}

func TestSimulator_Transfer_OnlyOnPeriodBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.TransferPeriod = 4
	cfg.TierWeights = onlyTier(TierFCFS)
	s := newTestSimulator(t, cfg, NewJob(1, 1, 1, 100, PriorityLow))

	for range 4 {
		require.NoError(t, s.Step())
	}
	assert.Equal(t, 1, s.Admission.Len(), "admitted at tick 1, no transfer before tick 4")
	assert.Equal(t, 0, s.Tiers[TierRRT1].Len())

	require.NoError(t, s.Step())
	assert.Equal(t, 0, s.Admission.Len())
	assert.Equal(t, 1, s.Tiers[TierRRT1].Len())
}

func TestSimulator_RunningJob_DoesNotAccrueWaiting(t *testing.T) {
	// GIVEN a job whose whole service fits in one RR-T1 quantum
	cfg := testConfig()
	cfg.QuantumT1 = 4
	j := NewJob(1, 0, 4, 100, PriorityLow)
	s := newTestSimulator(t, cfg, j)

	// WHEN it runs for four ticks
	out, err := s.Run()
	require.NoError(t, err)

	// THEN it finishes without having waited
	assert.Equal(t, int64(4), out.Tick)
	assert.Equal(t, 0.0, j.AccruedWaiting)
}

func TestSimulator_Step_AfterTermination_IsNoOp(t *testing.T) {
	s := newTestSimulator(t, testConfig(), NewJob(1, 0, 0, 10, PriorityLow))
	_, err := s.Run()
	require.NoError(t, err)
	clock := s.Clock

	require.NoError(t, s.Step())
	assert.Equal(t, clock, s.Clock)
}

func TestSimulator_SameSeed_IsDeterministic(t *testing.T) {
	run := func() ([]JobID, []JobID, Summary) {
		cfg := DefaultConfig()
		s, err := NewSimulator(cfg, staticSource(randomJobs(3, 200)), NewPartitionedRNG(NewSimulationKey(99)))
		require.NoError(t, err)
		_, err = s.Run()
		require.NoError(t, err)
		return jobIDs(s.Finished), jobIDs(s.Removed), s.Summarize()
	}

	f1, r1, s1 := run()
	f2, r2, s2 := run()

	assert.Equal(t, f1, f2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, s1, s2)
}

// randomJobs builds n jobs shaped like the reference workload:
// exponential gaps, service and timeout, priorities 70/20/10.
func randomJobs(seed uint64, n int) []*Job {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	jobs := make([]*Job, 0, n)
	var arrival int64
	for i := range n {
		arrival += int64(math.Round(rng.ExpFloat64() * 10))
		prio := PriorityLow
		switch u := rng.Float64(); {
		case u >= 0.9:
			prio = PriorityHigh
		case u >= 0.7:
			prio = PriorityNormal
		}
		jobs = append(jobs, NewJob(JobID(i+1), arrival, rng.ExpFloat64()*5, rng.ExpFloat64()*10, prio))
	}
	return jobs
}

// queuedJobs lists every job sitting in a waiting container.
func queuedJobs(s *Simulator) []*Job {
	out := append([]*Job(nil), s.Admission.Items()...)
	for _, tq := range s.Tiers {
		out = append(out, tq.Items()...)
	}
	return out
}

func TestSimulator_Properties_AcrossSeeds(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TransferPeriod = int64(seed%4) + 1
			jobs := randomJobs(seed, 150)
			s, err := NewSimulator(cfg, staticSource(jobs), NewPartitionedRNG(NewSimulationKey(int64(seed))))
			require.NoError(t, err)

			prevWaiting := make(map[JobID]float64, len(jobs))
			for s.State() == SimRunning && s.Clock < s.Horizon {
				require.NoError(t, s.Step())

				// conservation
				require.Equal(t, s.NumJobs(), len(s.Finished)+len(s.Removed)+s.Active(), "tick %d", s.Clock)

				// no starved job survives the reaper
				for _, j := range queuedJobs(s) {
					require.False(t, j.Starved(), "tick %d: job %d starved but still queued", s.Clock, j.ID)
				}

				// waiting never decreases and terminal jobs stay terminal
				for _, j := range jobs {
					require.GreaterOrEqual(t, j.AccruedWaiting, prevWaiting[j.ID], "job %d", j.ID)
					prevWaiting[j.ID] = j.AccruedWaiting
					require.GreaterOrEqual(t, j.RemainingService, 0.0)
				}
			}

			for _, j := range s.Finished {
				assert.Equal(t, StateFinished, j.State)
				assert.Equal(t, 0.0, j.RemainingService)
			}
			for _, j := range s.Removed {
				assert.Equal(t, StateRemoved, j.State)
				assert.True(t, j.Starved())
			}
			for _, u := range s.Metrics.(*Metrics).CPUUtilization {
				assert.True(t, u >= 0 && u <= 1)
			}
		})
	}
}

func TestNewSimulator_InvalidConfig_ReturnsError(t *testing.T) {
	cfg := testConfig()
	cfg.Horizon = 0
	cfg.QuantumT1 = -1

	_, err := NewSimulator(cfg, staticSource{NewJob(1, 0, 1, 1, PriorityLow)}, NewPartitionedRNG(1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "horizon must be positive")
	assert.Contains(t, err.Error(), "quantum_t1 must be positive")
}

func TestNewSimulator_InvalidJobs_ReturnsError(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []*Job
		wantErr string
	}{
		{"empty", nil, "job count must be positive"},
		{"duplicate id", []*Job{NewJob(1, 0, 1, 1, PriorityLow), NewJob(1, 1, 1, 1, PriorityLow)}, "duplicate job id 1"},
		{"unsorted", []*Job{NewJob(1, 5, 1, 1, PriorityLow), NewJob(2, 1, 1, 1, PriorityLow)}, "before its predecessor"},
		{"negative service", []*Job{NewJob(1, 0, -1, 1, PriorityLow)}, "must be non-negative"},
		{"bad priority", []*Job{NewJob(1, 0, 1, 1, PriorityClass(9))}, "unknown priority class"},
		{"nil job", []*Job{nil}, "job 0 is nil"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimulator(testConfig(), staticSource(tc.jobs), NewPartitionedRNG(1))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

type failingSource struct{}

func (failingSource) Jobs() ([]*Job, error) {
	return nil, errors.New("boom")
}

func TestNewSimulator_SourceError_IsWrapped(t *testing.T) {
	_, err := NewSimulator(testConfig(), failingSource{}, NewPartitionedRNG(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generating jobs: boom")
}
