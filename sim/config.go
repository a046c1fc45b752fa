package sim

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
)

// TierWeights are the categorical weights of the dispatcher's tier draw.
// They need not sum to one; they are normalized by the distribution.
type TierWeights struct {
	RRT1 float64 `yaml:"rr_t1"`
	RRT2 float64 `yaml:"rr_t2"`
	FCFS float64 `yaml:"fcfs"`
}

// Slice returns the weights indexed by Tier.
func (w TierWeights) Slice() []float64 {
	return []float64{TierRRT1: w.RRT1, TierRRT2: w.RRT2, TierFCFS: w.FCFS}
}

// TierWeightsFromSlice builds TierWeights from a 3-element slice in tier order.
func TierWeightsFromSlice(v []float64) (TierWeights, error) {
	if len(v) != numTiers {
		return TierWeights{}, fmt.Errorf("tier weights need %d values (rr-t1, rr-t2, fcfs), got %d", numTiers, len(v))
	}
	return TierWeights{RRT1: v[0], RRT2: v[1], FCFS: v[2]}, nil
}

// Config groups the engine parameters. It is fixed for the duration of a run.
type Config struct {
	Horizon         int64       `yaml:"horizon"`          // max ticks before the run stops with backlog
	TransferPeriod  int64       `yaml:"transfer_period"`  // admission transfer runs when tick % period == 0
	TransferBatch   int         `yaml:"transfer_batch"`   // K: tier-occupancy threshold and max jobs moved per transfer
	QuantumT1       float64     `yaml:"quantum_t1"`       // RR-T1 time quantum
	QuantumT2       float64     `yaml:"quantum_t2"`       // RR-T2 time quantum
	TierWeights     TierWeights `yaml:"tier_weights"`     // dispatcher tier-draw weights
	CheckInvariants bool        `yaml:"check_invariants"` // verify conservation and single ownership every tick
}

// DefaultConfig returns the reference parameters of the four-level scheduler.
func DefaultConfig() Config {
	return Config{
		Horizon:         10000,
		TransferPeriod:  4,
		TransferBatch:   5,
		QuantumT1:       5,
		QuantumT2:       5,
		TierWeights:     TierWeights{RRT1: 0.8, RRT2: 0.1, FCFS: 0.1},
		CheckInvariants: true,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Horizon <= 0 {
		result = multierror.Append(result, fmt.Errorf("horizon must be positive, got %d", c.Horizon))
	}
	if c.TransferPeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("transfer_period must be positive, got %d", c.TransferPeriod))
	}
	if c.TransferBatch <= 0 {
		result = multierror.Append(result, fmt.Errorf("transfer_batch must be positive, got %d", c.TransferBatch))
	}
	if c.QuantumT1 <= 0 {
		result = multierror.Append(result, fmt.Errorf("quantum_t1 must be positive, got %g", c.QuantumT1))
	}
	if c.QuantumT2 <= 0 {
		result = multierror.Append(result, fmt.Errorf("quantum_t2 must be positive, got %g", c.QuantumT2))
	}
	if err := ValidateWeights("tier_weights", c.TierWeights.Slice()); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ValidateWeights checks a categorical weight vector: every entry
// non-negative and finite, and at least one entry positive.
func ValidateWeights(name string, weights []float64) error {
	sum := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%s[%d] must be a finite non-negative number, got %g", name, i, w)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%s must contain at least one positive weight", name)
	}
	return nil
}
