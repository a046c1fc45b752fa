package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tier identifies one of the three dispatchable service tiers.
type Tier int

const (
	TierNone Tier = -1
	TierRRT1 Tier = 0
	TierRRT2 Tier = 1
	TierFCFS Tier = 2

	numTiers = 3
)

// tierOrder is the cascade order used when the selected tier is empty.
var tierOrder = [numTiers]Tier{TierRRT1, TierRRT2, TierFCFS}

func (t Tier) String() string {
	switch t {
	case TierRRT1:
		return "RR-T1"
	case TierRRT2:
		return "RR-T2"
	case TierFCFS:
		return "FCFS"
	case TierNone:
		return "none"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t names a real tier.
func (t Tier) Valid() bool {
	return t >= TierRRT1 && t <= TierFCFS
}

// JobState returns the state a job carries while queued in t.
func (t Tier) JobState() JobState {
	switch t {
	case TierRRT1:
		return StateRRT1
	case TierRRT2:
		return StateRRT2
	case TierFCFS:
		return StateFCFS
	default:
		panic(fmt.Sprintf("JobState: invalid tier %d", t))
	}
}

// TierOccupancy is a snapshot of how many jobs each tier holds, indexed by Tier.
type TierOccupancy [numTiers]int

// ResolveTier walks the cascade starting at selected and returns the first
// tier with at least one job. The cascade only moves forward
// (RR-T1 → RR-T2 → FCFS); an empty FCFS selection resolves to nothing.
func ResolveTier(selected Tier, occ TierOccupancy) (Tier, bool) {
	if !selected.Valid() {
		return TierNone, false
	}
	for _, t := range tierOrder[selected:] {
		if occ[t] > 0 {
			return t, true
		}
	}
	return TierNone, false
}

// Dispatch describes one dispatcher decision.
type Dispatch struct {
	Job      *Job
	Grant    float64 // CPU time granted for this dispatch
	Selected Tier    // tier drawn from the categorical distribution
	Resolved Tier    // tier the job was actually taken from
	Demote   Tier    // tier the job moves to when the grant ends; TierNone if it finishes
}

// Fallback reports whether the cascade moved past the selected tier.
func (d Dispatch) Fallback() bool {
	return d.Resolved != TierNone && d.Resolved != d.Selected
}

// Dispatcher picks the next job to run when the CPU is idle.
//
// The tier draw is categorical over {RR-T1, RR-T2, FCFS}. Round-robin tiers
// grant at most their quantum and demote survivors one tier down; FCFS
// grants the full remaining service.
type Dispatcher struct {
	selector distuv.Categorical
	quanta   [numTiers]float64
}

// NewDispatcher builds a dispatcher. src drives the tier draws and must be
// dedicated to the dispatcher for runs to be reproducible.
func NewDispatcher(weights TierWeights, quantumT1, quantumT2 float64, src rand.Source) *Dispatcher {
	if src == nil {
		panic("NewDispatcher: src must not be nil")
	}
	return &Dispatcher{
		selector: distuv.NewCategorical(weights.Slice(), src),
		quanta:   [numTiers]float64{TierRRT1: quantumT1, TierRRT2: quantumT2},
	}
}

// SelectTier draws a tier from the configured weights.
func (d *Dispatcher) SelectTier() Tier {
	return Tier(d.selector.Rand())
}

// Dispatch draws a tier, resolves the cascade against tiers and pops the
// head job. The returned job is detached from every queue; the caller owns
// it until the grant ends. ok is false when nothing could be dispatched.
func (d *Dispatcher) Dispatch(tiers [numTiers]*TierQueue) (dp Dispatch, ok bool) {
	var occ TierOccupancy
	for _, t := range tierOrder {
		occ[t] = tiers[t].Len()
	}

	selected := d.SelectTier()
	resolved, ok := ResolveTier(selected, occ)
	if !ok {
		return Dispatch{Selected: selected, Resolved: TierNone, Demote: TierNone}, false
	}

	job := tiers[resolved].Dequeue()
	dp = Dispatch{Job: job, Selected: selected, Resolved: resolved, Demote: TierNone}
	switch resolved {
	case TierRRT1, TierRRT2:
		quantum := d.quanta[resolved]
		if job.RemainingService > quantum {
			dp.Grant = quantum
			job.RemainingService -= quantum
			dp.Demote = resolved + 1
		} else {
			dp.Grant = job.RemainingService
			job.RemainingService = 0
		}
	case TierFCFS:
		dp.Grant = job.RemainingService
		job.RemainingService = 0
	}
	job.State = StateRunning

	logrus.Debugf("Dispatch: job %d from %s (selected %s), grant=%.3f, demote=%s",
		job.ID, dp.Resolved, dp.Selected, dp.Grant, dp.Demote)
	return dp, true
}
