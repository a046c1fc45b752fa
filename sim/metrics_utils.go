// sim/metrics_utils.go
package sim

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/sirupsen/logrus"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculatePercentile is a util function that calculates the p-th percentile
// of a data list by linear interpolation. Returns NaN for an empty list.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return float64(sorted[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(sorted[lowerIdx])
	}
	lowerVal := float64(sorted[lowerIdx])
	upperVal := float64(sorted[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// CalculateMean is a util function that calculates the mean of a data list
func CalculateMean[T IntOrFloat64](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}

	return sum / float64(len(numbers))
}

// meanStat is CalculateMean with the empty case reported as undefined.
func meanStat[T IntOrFloat64](numbers []T) Stat {
	if len(numbers) == 0 {
		return Stat{}
	}
	return DefinedStat(CalculateMean(numbers))
}

// SaveSamples writes the per-tick series as CSV: tick,rr_t1,rr_t2,fcfs,priority,cpu.
// Tick numbers start at 1, the clock value after the first step.
func (m *Metrics) SaveSamples(fileName string) (err error) {
	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating samples file %s: %w", fileName, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing samples file %s: %w", fileName, closeErr)
		}
	}()

	writer := bufio.NewWriter(file)
	if _, err := fmt.Fprintln(writer, "tick,rr_t1,rr_t2,fcfs,priority,cpu"); err != nil {
		return fmt.Errorf("writing samples header: %w", err)
	}
	for i := range m.Ticks() {
		var cpu float64
		if i < len(m.CPUUtilization) {
			cpu = m.CPUUtilization[i]
		}
		_, err := fmt.Fprintf(writer, "%d,%d,%d,%d,%d,%g\n", i+1,
			m.RRT1Lengths[i], m.RRT2Lengths[i], m.FCFSLengths[i], m.PriorityLengths[i], cpu)
		if err != nil {
			return fmt.Errorf("writing sample %d: %w", i+1, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flushing samples file %s: %w", fileName, err)
	}

	logrus.Debugf("Successfully wrote %d samples to '%s'", m.Ticks(), fileName)
	return nil
}
