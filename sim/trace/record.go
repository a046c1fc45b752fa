// Package trace provides decision-trace recording for scheduler analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// DispatchRecord captures a single dispatcher decision.
type DispatchRecord struct {
	JobID    int64
	Clock    int64
	Selected string  // tier drawn from the categorical distribution
	Resolved string  // tier the job was taken from after the cascade
	Grant    float64 // CPU time granted
	Demoted  string  // destination tier when the grant ends; empty if the job finishes
}

// Fallback reports whether the cascade moved past the selected tier.
func (r DispatchRecord) Fallback() bool {
	return r.Selected != r.Resolved
}

// TransferRecord captures one admission transfer into RR-T1.
type TransferRecord struct {
	Clock   int64
	JobIDs  []int64 // in admission order
	Backlog int     // jobs left in the admission queue afterwards
}

// EvictionRecord captures one starvation eviction.
type EvictionRecord struct {
	JobID     int64
	Clock     int64
	Container string
	Waiting   float64
	Timeout   float64
}
