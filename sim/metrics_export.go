package sim

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsPrefix = "fbsim_"

const (
	runLabel         = "run"
	queueLabel       = "queue"
	outcomeLabel     = "outcome"
	denominatorLabel = "denominator"
)

// Registry builds a fresh Prometheus registry holding the summary as gauges.
// Undefined stats are left out rather than exported as NaN.
func (s Summary) Registry(runID string) *prometheus.Registry {
	queueLength := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "avg_queue_length",
			Help: "Average number of waiting jobs per tick",
		},
		[]string{runLabel, queueLabel},
	)
	cpuUtilization := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "avg_cpu_utilization",
			Help: "Average CPU busy fraction per tick",
		},
		[]string{runLabel},
	)
	waitingTime := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "avg_waiting_ticks",
			Help: "Average accrued waiting time per job",
		},
		[]string{runLabel},
	)
	removedRatio := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "removed_ratio",
			Help: "Fraction of jobs removed for starvation",
		},
		[]string{runLabel, denominatorLabel},
	)
	jobs := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "jobs",
			Help: "Number of jobs by final outcome",
		},
		[]string{runLabel, outcomeLabel},
	)
	elapsed := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricsPrefix + "elapsed_ticks",
			Help: "Number of simulated ticks",
		},
		[]string{runLabel},
	)

	// WithLabelValues materializes a zero-valued child, so undefined stats
	// must not touch their vector at all.
	queues := []struct {
		name string
		stat Stat
	}{
		{TierRRT1.String(), s.AvgRRT1Length},
		{TierRRT2.String(), s.AvgRRT2Length},
		{TierFCFS.String(), s.AvgFCFSLength},
		{"priority", s.AvgPriorityLength},
	}
	for _, q := range queues {
		if q.stat.Defined {
			queueLength.WithLabelValues(runID, q.name).Set(q.stat.Value)
		}
	}
	if s.AvgCPUUtilization.Defined {
		cpuUtilization.WithLabelValues(runID).Set(s.AvgCPUUtilization.Value)
	}
	if s.AvgWaitingTime.Defined {
		waitingTime.WithLabelValues(runID).Set(s.AvgWaitingTime.Value)
	}
	if s.RemovedPerEnded.Defined {
		removedRatio.WithLabelValues(runID, "ended").Set(s.RemovedPerEnded.Value)
	}
	if s.RemovedPerTotal.Defined {
		removedRatio.WithLabelValues(runID, "total").Set(s.RemovedPerTotal.Value)
	}
	jobs.WithLabelValues(runID, "finished").Set(float64(s.Finished))
	jobs.WithLabelValues(runID, "removed").Set(float64(s.Removed))
	jobs.WithLabelValues(runID, "unresolved").Set(float64(s.Unresolved()))
	elapsed.WithLabelValues(runID).Set(float64(s.Ticks))

	reg := prometheus.NewRegistry()
	reg.MustRegister(queueLength, cpuUtilization, waitingTime, removedRatio, jobs, elapsed)
	return reg
}

// WriteTextfile writes the summary in Prometheus text exposition format,
// suitable for the node_exporter textfile collector.
func (s Summary) WriteTextfile(path, runID string) error {
	return prometheus.WriteToTextfile(path, s.Registry(runID))
}
