// Package testutil provides shared test infrastructure for the fbsim simulator.
// It holds the golden dataset types and assertion helpers used by the
// sim/ and cmd/ test packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one hand-verified scenario: an explicit job list, the
// scheduler parameters and the expected end-of-run metrics.
type GoldenTestCase struct {
	Name           string        `json:"name"`
	Seed           int64         `json:"seed"`
	Horizon        int64         `json:"horizon"`
	TransferPeriod int64         `json:"transfer-period"`
	TransferBatch  int           `json:"transfer-batch"`
	QuantumT1      float64       `json:"quantum-t1"`
	QuantumT2      float64       `json:"quantum-t2"`
	TierWeights    []float64     `json:"tier-weights"`
	Jobs           []GoldenJob   `json:"jobs"`
	Metrics        GoldenMetrics `json:"metrics"`
}

// GoldenJob mirrors one entry of a replay file.
type GoldenJob struct {
	ID       int64   `json:"id"`
	Arrival  int64   `json:"arrival"`
	Service  float64 `json:"service"`
	Timeout  float64 `json:"timeout"`
	Priority string  `json:"priority"`
}

// GoldenMetrics represents the expected metrics from a golden test case.
type GoldenMetrics struct {
	// Exact match metrics (integers)
	Ticks    int   `json:"ticks"`
	Finished int   `json:"finished"`
	Removed  int   `json:"removed"`
	Finish   []int `json:"finish_order"`

	// Averages over elapsed ticks
	AvgRRT1Length     float64 `json:"avg_rr_t1_length"`
	AvgRRT2Length     float64 `json:"avg_rr_t2_length"`
	AvgFCFSLength     float64 `json:"avg_fcfs_length"`
	AvgPriorityLength float64 `json:"avg_priority_length"`
	AvgCPUUtilization float64 `json:"avg_cpu_utilization"`

	// Job-level ratios
	AvgWaitingTime  float64 `json:"avg_waiting_time"`
	RemovedPerEnded float64 `json:"removed_per_ended"`
	RemovedPerTotal float64 `json:"removed_per_total"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
