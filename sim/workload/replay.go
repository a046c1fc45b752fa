package workload

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/fbsim/fbsim/sim"
)

// JobRecord is one job in a replay file.
type JobRecord struct {
	ID       int64   `yaml:"id,omitempty"` // 0 = assign position+1
	Arrival  int64   `yaml:"arrival"`
	Service  float64 `yaml:"service"`
	Timeout  float64 `yaml:"timeout"`
	Priority string  `yaml:"priority"` // low, normal or high
}

// ReplayFile is the top-level structure of a replay file.
type ReplayFile struct {
	Jobs []JobRecord `yaml:"jobs"`
}

// Replay is a JobSource that yields an explicit job list, e.g. a
// hand-written scenario or a workload captured from another run.
type Replay struct {
	records []JobRecord
}

// LoadReplay reads and validates a replay file.
// Uses strict field checking: unknown keys are errors.
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}
	var file ReplayFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing jobs file %s: %w", path, err)
	}
	return NewReplay(file.Jobs)
}

// NewReplay validates records and wraps them as a JobSource.
func NewReplay(records []JobRecord) (*Replay, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("replay needs at least one job")
	}
	var result *multierror.Error
	seen := make(map[int64]int, len(records))
	for i, r := range records {
		id := recordID(r, i)
		if id < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: id must be positive, got %d", i, r.ID))
		}
		if prev, dup := seen[id]; dup {
			result = multierror.Append(result, fmt.Errorf("job %d: id %d already used by job %d", i, id, prev))
		}
		seen[id] = i
		if r.Arrival < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: arrival must be non-negative, got %d", i, r.Arrival))
		}
		if r.Service < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: service must be non-negative, got %g", i, r.Service))
		}
		if r.Timeout < 0 {
			result = multierror.Append(result, fmt.Errorf("job %d: timeout must be non-negative, got %g", i, r.Timeout))
		}
		if _, err := sim.ParsePriorityClass(r.Priority); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %d: %w", i, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid replay: %w", err)
	}
	return &Replay{records: append([]JobRecord(nil), records...)}, nil
}

func recordID(r JobRecord, pos int) int64 {
	if r.ID == 0 {
		return int64(pos + 1)
	}
	return r.ID
}

// Jobs builds fresh jobs sorted by arrival tick; equal arrivals keep file order.
func (r *Replay) Jobs() ([]*sim.Job, error) {
	jobs := make([]*sim.Job, 0, len(r.records))
	for i, rec := range r.records {
		class, err := sim.ParsePriorityClass(rec.Priority)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		jobs = append(jobs, sim.NewJob(sim.JobID(recordID(rec, i)), rec.Arrival, rec.Service, rec.Timeout, class))
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].ArrivalTick < jobs[b].ArrivalTick
	})
	return jobs, nil
}
