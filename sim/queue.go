// Implements TierQueue, the FIFO container behind RR-T1, RR-T2 and FCFS.
// Jobs are appended at the tail and dispatched from the head.

package sim

import (
	"fmt"
	"strings"
)

// TierQueue represents a FIFO queue of jobs waiting in one service tier.
// Enqueue stamps the tier's JobState on the job, so membership and state
// never drift apart.
type TierQueue struct {
	tier  Tier
	queue []*Job // FIFO queue of jobs
}

// NewTierQueue creates an empty queue for the given tier.
func NewTierQueue(tier Tier) *TierQueue {
	if !tier.Valid() {
		panic(fmt.Sprintf("NewTierQueue: invalid tier %d", tier))
	}
	return &TierQueue{tier: tier}
}

// Tier returns the tier this queue serves.
func (tq *TierQueue) Tier() Tier {
	return tq.tier
}

// Enqueue adds a job to the back of the queue.
func (tq *TierQueue) Enqueue(j *Job) {
	if j == nil {
		panic("Enqueue: job must not be nil")
	}
	j.State = tq.tier.JobState()
	tq.queue = append(tq.queue, j)
}

func (tq *TierQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, j := range tq.queue {
		sb.WriteString(fmt.Sprint(j.ID))
		if i < len(tq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of jobs in the queue.
func (tq *TierQueue) Len() int {
	return len(tq.queue)
}

// Peek returns the job at the front of the queue without removing it.
// Returns nil if the queue is empty.
func (tq *TierQueue) Peek() *Job {
	if len(tq.queue) == 0 {
		return nil
	}
	return tq.queue[0]
}

// Dequeue removes and returns the job at the front of the queue.
// Returns nil if the queue is empty.
func (tq *TierQueue) Dequeue() *Job {
	if len(tq.queue) == 0 {
		return nil
	}
	head := tq.queue[0]
	tq.queue[0] = nil
	tq.queue = tq.queue[1:]
	return head
}

// Items returns the queue contents for iteration.
// The returned slice is the queue's internal storage -- callers within the
// sim package may iterate over it but MUST NOT append to or reslice it.
func (tq *TierQueue) Items() []*Job {
	return tq.queue
}

// AccrueAll adds delta ticks of waiting time to every queued job.
func (tq *TierQueue) AccrueAll(delta float64) {
	for _, j := range tq.queue {
		j.AccruedWaiting += delta
	}
}

// RemoveWhere removes every job for which pred returns true and returns
// them in queue order. Survivors keep their relative order.
func (tq *TierQueue) RemoveWhere(pred func(*Job) bool) []*Job {
	if pred == nil {
		panic("RemoveWhere: pred must not be nil")
	}
	var removed []*Job
	kept := tq.queue[:0]
	for _, j := range tq.queue {
		if pred(j) {
			removed = append(removed, j)
		} else {
			kept = append(kept, j)
		}
	}
	for i := len(kept); i < len(tq.queue); i++ {
		tq.queue[i] = nil
	}
	tq.queue = kept
	return removed
}
