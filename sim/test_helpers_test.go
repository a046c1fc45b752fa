package sim

import "testing"

// staticSource is a JobSource over a fixed slice.
type staticSource []*Job

func (s staticSource) Jobs() ([]*Job, error) {
	return s, nil
}

// testConfig returns a small valid Config with invariant checking on,
// a transfer every tick and RR-T1 always selected.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Horizon = 1000
	cfg.TransferPeriod = 1
	cfg.TierWeights = onlyTier(TierRRT1)
	return cfg
}

// onlyTier returns weights that always select t.
func onlyTier(t Tier) TierWeights {
	switch t {
	case TierRRT2:
		return TierWeights{RRT2: 1}
	case TierFCFS:
		return TierWeights{FCFS: 1}
	default:
		return TierWeights{RRT1: 1}
	}
}

// newTestSimulator builds a Simulator over jobs or fails the test.
func newTestSimulator(t testing.TB, cfg Config, jobs ...*Job) *Simulator {
	t.Helper()
	s, err := NewSimulator(cfg, staticSource(jobs), NewPartitionedRNG(NewSimulationKey(7)))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func jobIDs(jobs []*Job) []JobID {
	ids := make([]JobID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
