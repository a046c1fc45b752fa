package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// InvariantViolationError reports an internal defect: a job owned by two
// containers, a job in a container that disagrees with its state, or a
// broken conservation count. It is never a recoverable runtime condition.
type InvariantViolationError struct {
	Tick   int64
	Reason string
	Dump   string // YAML snapshot of every container at the failing tick
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated at tick %d: %s", e.Tick, e.Reason)
}

// CheckInvariants verifies single ownership and conservation of jobs:
// every job is in exactly one place and
// |Finished| + |Removed| + |active| == N.
func (sim *Simulator) CheckInvariants() error {
	owner := make(map[JobID]string, len(sim.jobs))
	var reason string

	claim := func(where string, want JobState, jobs ...*Job) {
		for _, j := range jobs {
			if reason != "" {
				return
			}
			if prev, dup := owner[j.ID]; dup {
				reason = fmt.Sprintf("job %d is in both %s and %s", j.ID, prev, where)
				return
			}
			owner[j.ID] = where
			if j.State != want {
				reason = fmt.Sprintf("job %d is in %s but has state %q", j.ID, where, j.State)
			}
		}
	}

	claim("pending", StatePending, sim.pending...)
	claim("priority", StateAdmission, sim.Admission.Items()...)
	for _, tq := range sim.Tiers {
		claim(tq.Tier().String(), tq.Tier().JobState(), tq.Items()...)
	}
	if sim.Running != nil {
		claim("running", StateRunning, sim.Running.Job)
	}
	claim("finished", StateFinished, sim.Finished...)
	claim("removed", StateRemoved, sim.Removed...)

	if reason == "" {
		active := sim.Active()
		if len(sim.Finished)+len(sim.Removed)+active != len(sim.jobs) || len(owner) != len(sim.jobs) {
			reason = fmt.Sprintf("conservation broken: finished=%d removed=%d active=%d accounted=%d, want N=%d",
				len(sim.Finished), len(sim.Removed), active, len(owner), len(sim.jobs))
		}
	}
	if reason == "" {
		return nil
	}

	dump, err := sim.DumpState()
	if err != nil {
		logrus.Errorf("Could not dump simulator state: %v", err)
	}
	return &InvariantViolationError{Tick: sim.Clock, Reason: reason, Dump: dump}
}

// JobSnapshot is the serializable view of a job used in state dumps.
type JobSnapshot struct {
	ID        int64   `yaml:"id"`
	Arrival   int64   `yaml:"arrival"`
	Remaining float64 `yaml:"remaining"`
	Timeout   float64 `yaml:"timeout"`
	Waiting   float64 `yaml:"waiting"`
	Priority  string  `yaml:"priority"`
	State     string  `yaml:"state"`
}

// StateSnapshot is the serializable view of every container.
type StateSnapshot struct {
	Tick     int64         `yaml:"tick"`
	State    string        `yaml:"state"`
	Running  *JobSnapshot  `yaml:"running,omitempty"`
	Grant    float64       `yaml:"grant,omitempty"`
	Pending  []JobSnapshot `yaml:"pending"`
	Priority []JobSnapshot `yaml:"priority"`
	RRT1     []JobSnapshot `yaml:"rr_t1"`
	RRT2     []JobSnapshot `yaml:"rr_t2"`
	FCFS     []JobSnapshot `yaml:"fcfs"`
	Finished []JobSnapshot `yaml:"finished"`
	Removed  []JobSnapshot `yaml:"removed"`
}

func snapshotJob(j *Job) JobSnapshot {
	return JobSnapshot{
		ID:        int64(j.ID),
		Arrival:   j.ArrivalTick,
		Remaining: j.RemainingService,
		Timeout:   j.Timeout,
		Waiting:   j.AccruedWaiting,
		Priority:  j.Priority.String(),
		State:     string(j.State),
	}
}

func snapshotJobs(jobs []*Job) []JobSnapshot {
	out := make([]JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, snapshotJob(j))
	}
	return out
}

// Snapshot captures the current contents of every container.
// The priority list is in heap order, not admission order.
func (sim *Simulator) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Tick:     sim.Clock,
		State:    string(sim.state),
		Pending:  snapshotJobs(sim.pending),
		Priority: snapshotJobs(sim.Admission.Items()),
		RRT1:     snapshotJobs(sim.Tiers[TierRRT1].Items()),
		RRT2:     snapshotJobs(sim.Tiers[TierRRT2].Items()),
		FCFS:     snapshotJobs(sim.Tiers[TierFCFS].Items()),
		Finished: snapshotJobs(sim.Finished),
		Removed:  snapshotJobs(sim.Removed),
	}
	if sim.Running != nil {
		running := snapshotJob(sim.Running.Job)
		snap.Running = &running
		snap.Grant = sim.Running.Grant
	}
	return snap
}

// DumpState renders Snapshot as YAML.
func (sim *Simulator) DumpState() (string, error) {
	out, err := yaml.Marshal(sim.Snapshot())
	if err != nil {
		return "", fmt.Errorf("marshalling state snapshot: %w", err)
	}
	return string(out), nil
}
