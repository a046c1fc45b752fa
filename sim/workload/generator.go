package workload

import (
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/fbsim/fbsim/sim"
)

// Generator is the statistical JobSource. Inter-arrival gaps are
// exponential with mean ArrivalMean, rounded to whole ticks and
// accumulated; service demand and timeout are exponential; priority
// classes are categorical.
//
// Attribute streams are drawn column by column: all gaps, then all
// service times, then all timeouts, then all priorities.
type Generator struct {
	spec Spec
	rng  *rand.Rand
}

// NewGenerator creates a generator. rng should be the workload subsystem
// of the run's PartitionedRNG.
func NewGenerator(spec Spec, rng *rand.Rand) (*Generator, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	if rng == nil {
		return nil, fmt.Errorf("rng must not be nil")
	}
	return &Generator{spec: spec, rng: rng}, nil
}

// Jobs generates NumJobs jobs with IDs 1..N, sorted by arrival tick.
// Deterministic given the same spec and rng state.
func (g *Generator) Jobs() ([]*sim.Job, error) {
	n := g.spec.NumJobs

	gaps := drawN(&RoundedSampler{inner: NewExponentialSampler(g.spec.ArrivalMean, g.rng)}, n)
	services := drawN(NewExponentialSampler(g.spec.ServiceMean, g.rng), n)
	timeouts := drawN(NewExponentialSampler(g.spec.TimeoutMean, g.rng), n)
	priorities := NewPrioritySampler(g.spec.PriorityWeights, g.rng)

	jobs := make([]*sim.Job, 0, n)
	arrival := int64(0)
	for i := range n {
		arrival += int64(gaps[i])
		class := priorities.SampleClass()
		jobs = append(jobs, sim.NewJob(sim.JobID(i+1), arrival, services[i], timeouts[i], class))
	}

	logrus.Debugf("Generated %d jobs, last arrival at tick %d", len(jobs), arrival)
	return jobs, nil
}

func drawN(s Sampler, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Sample()
	}
	return out
}
