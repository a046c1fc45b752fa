package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDispatches      int
	FallbackCount        int            // dispatches where the selected tier was empty
	DemotionCount        int            // dispatches that ended with a demotion
	TierDistribution     map[string]int // resolved tier → dispatch count
	TotalTransfers       int
	TransferredJobs      int
	MeanTransferBatch    float64
	TotalEvictions       int
	EvictionsByContainer map[string]int // container → eviction count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TierDistribution:     make(map[string]int),
		EvictionsByContainer: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDispatches = len(st.Dispatches)
	for _, d := range st.Dispatches {
		summary.TierDistribution[d.Resolved]++
		if d.Fallback() {
			summary.FallbackCount++
		}
		if d.Demoted != "" {
			summary.DemotionCount++
		}
	}

	summary.TotalTransfers = len(st.Transfers)
	for _, t := range st.Transfers {
		summary.TransferredJobs += len(t.JobIDs)
	}
	if summary.TotalTransfers > 0 {
		summary.MeanTransferBatch = float64(summary.TransferredJobs) / float64(summary.TotalTransfers)
	}

	summary.TotalEvictions = len(st.Evictions)
	for _, e := range st.Evictions {
		summary.EvictionsByContainer[e.Container]++
	}

	return summary
}
