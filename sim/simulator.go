// sim/simulator.go
package sim

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/fbsim/fbsim/sim/trace"
)

// JobSource produces the full job sequence of a run. It is consumed once,
// when the Simulator is built. Jobs must be ordered by ArrivalTick
// ascending; ties keep generation order.
type JobSource interface {
	Jobs() ([]*Job, error)
}

// SimState is the state of the simulation clock.
type SimState string

const (
	SimRunning    SimState = "running"
	SimTerminated SimState = "terminated"
)

// OutcomeStatus says why a run stopped.
type OutcomeStatus string

const (
	// OutcomeCompleted: every job finished or was removed before the horizon.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeHorizonReached: the horizon elapsed with jobs still unresolved.
	OutcomeHorizonReached OutcomeStatus = "horizon-reached"
)

// Outcome is the result of Run.
type Outcome struct {
	Status     OutcomeStatus
	Tick       int64
	Finished   int
	Removed    int
	Unresolved int
}

// RunningJob is the CPU slot: the job being served, the grant it still has
// to consume, and where it goes once the grant is used up.
type RunningJob struct {
	Job    *Job
	Grant  float64
	Demote Tier // TierNone: the job finishes when the grant ends
}

// Simulator is the core object that holds simulation time, all job
// containers and the tick loop. It exclusively owns every container;
// nothing outside the Simulator may mutate them during a run.
type Simulator struct {
	Clock   int64
	Horizon int64
	Config  Config

	// Admission is the priority admission queue jobs enter on arrival.
	Admission *AdmissionQueue
	// Tiers holds RR-T1, RR-T2 and FCFS, indexed by Tier.
	Tiers [numTiers]*TierQueue
	// Running is the job occupying the CPU, nil when idle.
	Running  *RunningJob
	Finished []*Job
	Removed  []*Job

	Metrics MetricsLogger
	// Trace records decisions when non-nil.
	Trace *trace.SimulationTrace

	dispatcher *Dispatcher
	jobs       []*Job // every job of the run, in source order
	pending    []*Job // jobs whose arrival tick has not been reached, sorted
	state      SimState
}

// NewSimulator validates cfg, draws the job sequence from source and
// returns a Simulator at tick 0. rng provides the dispatcher's tier draws.
func NewSimulator(cfg Config, source JobSource, rng *PartitionedRNG) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("job source must not be nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("rng must not be nil")
	}
	jobs, err := source.Jobs()
	if err != nil {
		return nil, fmt.Errorf("generating jobs: %w", err)
	}
	if err := validateJobs(jobs); err != nil {
		return nil, fmt.Errorf("invalid job sequence: %w", err)
	}

	s := &Simulator{
		Clock:      0,
		Horizon:    cfg.Horizon,
		Config:     cfg,
		Admission:  NewAdmissionQueue(),
		Metrics:    NewMetrics(),
		dispatcher: NewDispatcher(cfg.TierWeights, cfg.QuantumT1, cfg.QuantumT2, rng.ForSubsystem(SubsystemDispatcher)),
		jobs:       jobs,
		pending:    append([]*Job(nil), jobs...),
		state:      SimRunning,
	}
	for _, t := range tierOrder {
		s.Tiers[t] = NewTierQueue(t)
	}
	return s, nil
}

func validateJobs(jobs []*Job) error {
	if len(jobs) == 0 {
		return fmt.Errorf("job count must be positive")
	}
	var result *multierror.Error
	seen := make(map[JobID]bool, len(jobs))
	for i, j := range jobs {
		if j == nil {
			result = multierror.Append(result, fmt.Errorf("job %d is nil", i))
			continue
		}
		if seen[j.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate job id %d", j.ID))
		}
		seen[j.ID] = true
		if j.State != StatePending {
			result = multierror.Append(result, fmt.Errorf("job %d: state %q, want %q", j.ID, j.State, StatePending))
		}
		if j.ArrivalTick < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: negative arrival tick %d", j.ID, j.ArrivalTick))
		}
		if j.RemainingService < 0 || j.Timeout < 0 || j.AccruedWaiting < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: service, timeout and waiting must be non-negative", j.ID))
		}
		if !j.Priority.Valid() {
			result = multierror.Append(result, fmt.Errorf("job %d: unknown priority class %d", j.ID, j.Priority))
		}
		if i > 0 && jobs[i-1] != nil && jobs[i-1].ArrivalTick > j.ArrivalTick {
			result = multierror.Append(result, fmt.Errorf("job %d arrives at %d, before its predecessor at %d", j.ID, j.ArrivalTick, jobs[i-1].ArrivalTick))
		}
	}
	return result.ErrorOrNil()
}

// State returns the clock state.
func (sim *Simulator) State() SimState {
	return sim.state
}

// Jobs returns every job of the run in source order. Callers MUST NOT mutate it.
func (sim *Simulator) Jobs() []*Job {
	return sim.jobs
}

// NumJobs returns N, the size of the job set.
func (sim *Simulator) NumJobs() int {
	return len(sim.jobs)
}

// Pending returns the number of jobs that have not arrived yet.
func (sim *Simulator) Pending() int {
	return len(sim.pending)
}

// Active returns the number of jobs neither finished nor removed,
// including jobs that have not arrived yet.
func (sim *Simulator) Active() int {
	n := len(sim.pending) + sim.Admission.Len()
	for _, tq := range sim.Tiers {
		n += tq.Len()
	}
	if sim.Running != nil {
		n++
	}
	return n
}

// Run steps the clock until every job is finished or removed, or until the
// horizon elapses. Reaching the horizon is a valid outcome, not an error;
// the only error is an invariant violation.
func (sim *Simulator) Run() (Outcome, error) {
	logrus.Infof("[tick %07d] Simulation started with %d jobs, horizon=%d", sim.Clock, len(sim.jobs), sim.Horizon)
	for sim.state == SimRunning && sim.Clock < sim.Horizon {
		if err := sim.Step(); err != nil {
			return sim.Outcome(), err
		}
	}
	out := sim.Outcome()
	switch out.Status {
	case OutcomeCompleted:
		logrus.Infof("[tick %07d] All jobs are either finished or removed", sim.Clock)
	case OutcomeHorizonReached:
		logrus.Warnf("[tick %07d] Horizon reached with %d unresolved jobs", sim.Clock, out.Unresolved)
	}
	logrus.Infof("[tick %07d] Simulation ended", sim.Clock)
	return out, nil
}

// Outcome reports the current accounting. Status is OutcomeCompleted only
// once the clock has terminated.
func (sim *Simulator) Outcome() Outcome {
	status := OutcomeHorizonReached
	if sim.state == SimTerminated {
		status = OutcomeCompleted
	}
	return Outcome{
		Status:     status,
		Tick:       sim.Clock,
		Finished:   len(sim.Finished),
		Removed:    len(sim.Removed),
		Unresolved: sim.Active(),
	}
}

// Step advances the simulation by exactly one tick. The sub-steps run in a
// fixed order; accrual must follow dispatch and reaping must follow accrual.
func (sim *Simulator) Step() error {
	if sim.state == SimTerminated {
		return nil
	}

	sim.admitArrivals()
	if sim.Clock%sim.Config.TransferPeriod == 0 {
		sim.transfer()
	}
	if sim.Running == nil {
		sim.dispatch()
	}

	sim.Clock++

	busy := sim.advanceRunning()
	sim.accrueWaiting()
	sim.reapStarved()

	sim.Metrics.RecordLengths(sim.Tiers[TierRRT1].Len(), sim.Tiers[TierRRT2].Len(),
		sim.Tiers[TierFCFS].Len(), sim.Admission.Len())
	sim.Metrics.RecordUtilization(busy)

	if sim.Config.CheckInvariants {
		if err := sim.CheckInvariants(); err != nil {
			return err
		}
	}

	if sim.Running == nil && len(sim.Finished)+len(sim.Removed) == len(sim.jobs) {
		sim.state = SimTerminated
	}
	return nil
}

// admitArrivals moves every job whose arrival tick has come into the
// admission queue.
func (sim *Simulator) admitArrivals() {
	for len(sim.pending) > 0 && sim.pending[0].ArrivalTick <= sim.Clock {
		j := sim.pending[0]
		sim.pending[0] = nil
		sim.pending = sim.pending[1:]
		sim.Admission.Push(j)
		logrus.Debugf("[tick %07d] << Arrival: job %d (%s)", sim.Clock, j.ID, j.Priority)
	}
}

// transfer refills RR-T1 from the admission queue when the three service
// tiers together hold fewer than TransferBatch jobs.
func (sim *Simulator) transfer() {
	k := sim.Config.TransferBatch
	inTiers := 0
	for _, tq := range sim.Tiers {
		inTiers += tq.Len()
	}
	if inTiers >= k || sim.Admission.Len() == 0 {
		return
	}

	moved := sim.Admission.PopTopK(k)
	ids := make([]int64, 0, len(moved))
	for _, j := range moved {
		sim.Tiers[TierRRT1].Enqueue(j)
		ids = append(ids, int64(j.ID))
	}
	logrus.Debugf("[tick %07d] Transfer: %d jobs into %s, %d left in admission", sim.Clock, len(moved), TierRRT1, sim.Admission.Len())
	if sim.Trace != nil {
		sim.Trace.RecordTransfer(trace.TransferRecord{Clock: sim.Clock, JobIDs: ids, Backlog: sim.Admission.Len()})
	}
}

// dispatch asks the dispatcher for a job and seats it on the CPU.
func (sim *Simulator) dispatch() {
	dp, ok := sim.dispatcher.Dispatch(sim.Tiers)
	if !ok {
		return
	}
	sim.Running = &RunningJob{Job: dp.Job, Grant: dp.Grant, Demote: dp.Demote}
	if sim.Trace != nil {
		demoted := ""
		if dp.Demote != TierNone {
			demoted = dp.Demote.String()
		}
		sim.Trace.RecordDispatch(trace.DispatchRecord{
			JobID:    int64(dp.Job.ID),
			Clock:    sim.Clock,
			Selected: dp.Selected.String(),
			Resolved: dp.Resolved.String(),
			Grant:    dp.Grant,
			Demoted:  demoted,
		})
	}
}

// advanceRunning consumes up to one tick of the running grant and returns
// the busy fraction of this tick. When the grant is used up the job either
// finishes or joins the tail of its demotion tier, and the CPU goes idle.
func (sim *Simulator) advanceRunning() float64 {
	r := sim.Running
	if r == nil {
		return 0
	}
	used := min(r.Grant, 1)
	r.Grant -= used
	if r.Grant > 0 {
		return used
	}

	j := r.Job
	if r.Demote == TierNone {
		j.State = StateFinished
		j.FinishedTick = sim.Clock
		sim.Finished = append(sim.Finished, j)
		logrus.Debugf("[tick %07d] Finished job %d", sim.Clock, j.ID)
	} else {
		sim.Tiers[r.Demote].Enqueue(j)
		logrus.Debugf("[tick %07d] Demoted job %d to %s, remaining=%.3f", sim.Clock, j.ID, r.Demote, j.RemainingService)
	}
	sim.Running = nil
	return used
}

// accrueWaiting adds one tick of waiting to every queued job. The running
// job sits in no container, so it is excluded by construction.
func (sim *Simulator) accrueWaiting() {
	sim.Admission.AccrueAll(1)
	for _, tq := range sim.Tiers {
		tq.AccrueAll(1)
	}
}

// reapStarved evicts every queued job whose waiting exceeds its timeout.
func (sim *Simulator) reapStarved() {
	for _, tq := range sim.Tiers {
		sim.remove(tq.Tier().String(), tq.RemoveWhere((*Job).Starved))
	}
	sim.remove("priority", sim.Admission.RemoveWhere((*Job).Starved))
}

func (sim *Simulator) remove(container string, jobs []*Job) {
	for _, j := range jobs {
		j.State = StateRemoved
		j.RemovedTick = sim.Clock
		sim.Removed = append(sim.Removed, j)
		logrus.Debugf("[tick %07d] Removed starved job %d from %s (waiting=%.0f > timeout=%.3f)",
			sim.Clock, j.ID, container, j.AccruedWaiting, j.Timeout)
		if sim.Trace != nil {
			sim.Trace.RecordEviction(trace.EvictionRecord{
				JobID:     int64(j.ID),
				Clock:     sim.Clock,
				Container: container,
				Waiting:   j.AccruedWaiting,
				Timeout:   j.Timeout,
			})
		}
	}
}

// JobOutcome collects the job accounting for the metrics summary.
func (sim *Simulator) JobOutcome() JobOutcome {
	out := JobOutcome{
		Total:    len(sim.jobs),
		Finished: len(sim.Finished),
		Removed:  len(sim.Removed),
	}
	for _, j := range sim.jobs {
		out.TotalWaiting += j.AccruedWaiting
	}
	return out
}

// Summarize hands the run's job accounting to the metrics logger.
func (sim *Simulator) Summarize() Summary {
	return sim.Metrics.Summarize(sim.JobOutcome())
}
