// Tracks per-tick queue lengths and CPU utilization and aggregates them
// into the end-of-run summary.

package sim

import (
	"fmt"
	"io"
)

// MetricsLogger receives one sample per tick from the Simulator and
// aggregates them at the end of the run.
type MetricsLogger interface {
	RecordLengths(rrt1, rrt2, fcfs, priority int)
	RecordUtilization(busyFraction float64)
	Summarize(outcome JobOutcome) Summary
}

// JobOutcome is the job accounting the Simulator hands to Summarize.
type JobOutcome struct {
	Total        int
	Finished     int
	Removed      int
	TotalWaiting float64 // accrued waiting summed over all jobs
}

// Metrics aggregates per-tick samples for final reporting.
// Every slice has one entry per elapsed tick.
type Metrics struct {
	RRT1Lengths     []int
	RRT2Lengths     []int
	FCFSLengths     []int
	PriorityLengths []int
	CPUUtilization  []float64
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordLengths appends one queue-length sample.
func (m *Metrics) RecordLengths(rrt1, rrt2, fcfs, priority int) {
	m.RRT1Lengths = append(m.RRT1Lengths, rrt1)
	m.RRT2Lengths = append(m.RRT2Lengths, rrt2)
	m.FCFSLengths = append(m.FCFSLengths, fcfs)
	m.PriorityLengths = append(m.PriorityLengths, priority)
}

// RecordUtilization appends one CPU busy-fraction sample, clamped to [0, 1].
func (m *Metrics) RecordUtilization(busyFraction float64) {
	m.CPUUtilization = append(m.CPUUtilization, min(max(busyFraction, 0), 1))
}

// Ticks returns the number of recorded ticks.
func (m *Metrics) Ticks() int {
	return len(m.PriorityLengths)
}

// Summarize averages every series over the elapsed ticks and derives the
// job-level ratios from outcome.
func (m *Metrics) Summarize(outcome JobOutcome) Summary {
	return Summary{
		Ticks:             m.Ticks(),
		Total:             outcome.Total,
		Finished:          outcome.Finished,
		Removed:           outcome.Removed,
		AvgRRT1Length:     meanStat(m.RRT1Lengths),
		AvgRRT2Length:     meanStat(m.RRT2Lengths),
		AvgFCFSLength:     meanStat(m.FCFSLengths),
		AvgPriorityLength: meanStat(m.PriorityLengths),
		AvgCPUUtilization: meanStat(m.CPUUtilization),
		AvgWaitingTime:    Ratio(outcome.TotalWaiting, float64(outcome.Total)),
		RemovedPerEnded:   Ratio(float64(outcome.Removed), float64(outcome.Finished+outcome.Removed)),
		RemovedPerTotal:   Ratio(float64(outcome.Removed), float64(outcome.Total)),
	}
}

// Stat is a derived metric that may be undefined because its denominator was zero.
type Stat struct {
	Value   float64
	Defined bool
}

// DefinedStat wraps a computed value.
func DefinedStat(v float64) Stat {
	return Stat{Value: v, Defined: true}
}

// Ratio returns num/den, or an undefined Stat when den is zero.
func Ratio(num, den float64) Stat {
	if den == 0 {
		return Stat{}
	}
	return DefinedStat(num / den)
}

func (s Stat) String() string {
	if !s.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", s.Value)
}

// Summary is the aggregated end-of-run report.
type Summary struct {
	Ticks    int
	Total    int
	Finished int
	Removed  int

	AvgRRT1Length     Stat
	AvgRRT2Length     Stat
	AvgFCFSLength     Stat
	AvgPriorityLength Stat
	AvgCPUUtilization Stat
	AvgWaitingTime    Stat // over all jobs, including unresolved ones
	RemovedPerEnded   Stat // removed / (finished + removed)
	RemovedPerTotal   Stat // removed / total
}

// Unresolved returns the number of jobs neither finished nor removed.
func (s Summary) Unresolved() int {
	return s.Total - s.Finished - s.Removed
}

// Print displays the summary in human-readable form.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Elapsed Ticks            : %d\n", s.Ticks)
	fmt.Fprintf(w, "Jobs (finished/removed)  : %d/%d of %d\n", s.Finished, s.Removed, s.Total)
	fmt.Fprintf(w, "RR-T1 length             : %s\n", s.AvgRRT1Length)
	fmt.Fprintf(w, "RR-T2 length             : %s\n", s.AvgRRT2Length)
	fmt.Fprintf(w, "FCFS length              : %s\n", s.AvgFCFSLength)
	fmt.Fprintf(w, "Priority Queue length    : %s\n", s.AvgPriorityLength)
	fmt.Fprintf(w, "CPU utilization          : %s\n", s.AvgCPUUtilization)
	fmt.Fprintf(w, "Waiting times            : %s\n", s.AvgWaitingTime)
	fmt.Fprintf(w, "Removed jobs(/ended jobs): %s\n", s.RemovedPerEnded)
	fmt.Fprintf(w, "Removed jobs(/all jobs)  : %s\n", s.RemovedPerTotal)
}
