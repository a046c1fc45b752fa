// Defines the Job struct that models an individual unit of work in the simulation.
// Tracks arrival tick, remaining service, timeout and accrued waiting time.

package sim

import (
	"fmt"
	"strings"
)

// JobID is the stable identity of a job. Two jobs are the same job iff
// their IDs are equal; field values mutate every tick and must never be
// used for identity.
type JobID int64

// PriorityClass is the admission priority of a job, fixed at creation.
// Higher values are admitted first.
type PriorityClass int

const (
	PriorityLow    PriorityClass = 1
	PriorityNormal PriorityClass = 2
	PriorityHigh   PriorityClass = 3
)

func (p PriorityClass) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the three known classes.
func (p PriorityClass) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriorityClass maps "low", "normal" or "high" (case-insensitive) to a PriorityClass.
func ParsePriorityClass(s string) (PriorityClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority class %q", s)
	}
}

// JobState represents where a job currently lives. It mirrors container
// membership and is kept in sync by the containers themselves.
type JobState string

const (
	StatePending   JobState = "pending"   // generated, arrival tick not reached
	StateAdmission JobState = "admission" // in the priority admission queue
	StateRRT1      JobState = "rr-t1"
	StateRRT2      JobState = "rr-t2"
	StateFCFS      JobState = "fcfs"
	StateRunning   JobState = "running"
	StateFinished  JobState = "finished"
	StateRemoved   JobState = "removed" // evicted by the starvation reaper
)

// Terminal reports whether the job has left the system for good.
func (s JobState) Terminal() bool {
	return s == StateFinished || s == StateRemoved
}

// Job models a single job's lifecycle in the simulation.
type Job struct {
	ID JobID

	ArrivalTick      int64         // tick at which the job becomes eligible for admission
	OriginalService  float64       // service demand at creation
	RemainingService float64       // decremented by every dispatch grant; complete at zero
	Timeout          float64       // starved once AccruedWaiting exceeds this
	AccruedWaiting   float64       // ticks spent waiting in any container
	Priority         PriorityClass // admission priority

	State        JobState
	FinishedTick int64 // -1 until finished
	RemovedTick  int64 // -1 until removed
}

// NewJob creates a job in the pending state.
func NewJob(id JobID, arrivalTick int64, service, timeout float64, priority PriorityClass) *Job {
	return &Job{
		ID:               id,
		ArrivalTick:      arrivalTick,
		OriginalService:  service,
		RemainingService: service,
		Timeout:          timeout,
		Priority:         priority,
		State:            StatePending,
		FinishedTick:     -1,
		RemovedTick:      -1,
	}
}

// Starved reports whether the job has waited longer than its timeout.
func (j *Job) Starved() bool {
	return j.AccruedWaiting > j.Timeout
}

// This function is used for printing purposes.
func (j *Job) String() string {
	return fmt.Sprintf("Job: (ID: %d, Arrival: %d, Remaining: %.3f, Timeout: %.3f, Waiting: %.0f, Priority: %s, State: %s)",
		j.ID, j.ArrivalTick, j.RemainingService, j.Timeout, j.AccruedWaiting, j.Priority, j.State)
}
