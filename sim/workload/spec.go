package workload

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/fbsim/fbsim/sim"
)

// PriorityWeights are the categorical weights of the priority-class draw.
type PriorityWeights struct {
	Low    float64 `yaml:"low"`
	Normal float64 `yaml:"normal"`
	High   float64 `yaml:"high"`
}

// Slice returns the weights in class order (low, normal, high).
func (w PriorityWeights) Slice() []float64 {
	return []float64{w.Low, w.Normal, w.High}
}

// PriorityWeightsFromSlice builds PriorityWeights from a 3-element slice.
func PriorityWeightsFromSlice(v []float64) (PriorityWeights, error) {
	if len(v) != 3 {
		return PriorityWeights{}, fmt.Errorf("priority weights need 3 values (low, normal, high), got %d", len(v))
	}
	return PriorityWeights{Low: v[0], Normal: v[1], High: v[2]}, nil
}

// Spec is the workload configuration. When JobsFile is set the job list is
// replayed from that file and the statistical fields are ignored.
type Spec struct {
	NumJobs         int             `yaml:"num_jobs"`         // N
	ArrivalMean     float64         `yaml:"arrival_mean"`     // mean inter-arrival gap, in ticks
	ServiceMean     float64         `yaml:"service_mean"`     // mean service demand, in ticks
	TimeoutMean     float64         `yaml:"timeout_mean"`     // mean timeout, in ticks
	PriorityWeights PriorityWeights `yaml:"priority_weights"` // low / normal / high
	JobsFile        string          `yaml:"jobs_file,omitempty"`
}

// DefaultSpec returns the reference workload: 1000 jobs, exponential gaps
// with mean 10, service mean 5, timeout mean 10, priorities 70/20/10.
func DefaultSpec() Spec {
	return Spec{
		NumJobs:         1000,
		ArrivalMean:     10,
		ServiceMean:     5,
		TimeoutMean:     10,
		PriorityWeights: PriorityWeights{Low: 0.7, Normal: 0.2, High: 0.1},
	}
}

// Validate reports every invalid field at once. A replayed workload only
// needs its file path.
func (s Spec) Validate() error {
	if s.JobsFile != "" {
		return nil
	}
	var result *multierror.Error
	if s.NumJobs <= 0 {
		result = multierror.Append(result, fmt.Errorf("num_jobs must be positive, got %d", s.NumJobs))
	}
	if s.ArrivalMean <= 0 {
		result = multierror.Append(result, fmt.Errorf("arrival_mean must be positive, got %g", s.ArrivalMean))
	}
	if s.ServiceMean <= 0 {
		result = multierror.Append(result, fmt.Errorf("service_mean must be positive, got %g", s.ServiceMean))
	}
	if s.TimeoutMean <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout_mean must be positive, got %g", s.TimeoutMean))
	}
	if err := sim.ValidateWeights("priority_weights", s.PriorityWeights.Slice()); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
