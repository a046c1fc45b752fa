package workload

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbsim/fbsim/sim"
)

// Sampler draws non-negative real values.
type Sampler interface {
	Sample() float64
}

// ExponentialSampler draws exponentially-distributed values with the given mean.
type ExponentialSampler struct {
	dist distuv.Exponential
}

// NewExponentialSampler creates a sampler with mean `mean` fed by src.
func NewExponentialSampler(mean float64, src rand.Source) *ExponentialSampler {
	return &ExponentialSampler{dist: distuv.Exponential{Rate: 1 / mean, Src: src}}
}

func (s *ExponentialSampler) Sample() float64 {
	return s.dist.Rand()
}

// Mean returns the distribution mean.
func (s *ExponentialSampler) Mean() float64 {
	return s.dist.Mean()
}

// RoundedSampler rounds another sampler's draws to the nearest whole tick,
// half away from zero.
type RoundedSampler struct {
	inner Sampler
}

func (s *RoundedSampler) Sample() float64 {
	return math.Round(s.inner.Sample())
}

// PrioritySampler draws priority classes from categorical weights.
type PrioritySampler struct {
	dist distuv.Categorical
}

// NewPrioritySampler creates a sampler over (low, normal, high).
func NewPrioritySampler(weights PriorityWeights, src rand.Source) *PrioritySampler {
	return &PrioritySampler{dist: distuv.NewCategorical(weights.Slice(), src)}
}

// SampleClass returns one priority class.
func (s *PrioritySampler) SampleClass() sim.PriorityClass {
	return sim.PriorityLow + sim.PriorityClass(s.dist.Rand())
}
