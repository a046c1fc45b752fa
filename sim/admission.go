package sim

import (
	"container/heap"
	"fmt"
	"slices"
)

// admitsBefore is the admission order: higher priority class first, then
// longer accrued waiting. Arrival tick and ID break full ties so that pop
// order is deterministic.
func admitsBefore(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.AccruedWaiting != b.AccruedWaiting {
		return a.AccruedWaiting > b.AccruedWaiting
	}
	if a.ArrivalTick != b.ArrivalTick {
		return a.ArrivalTick < b.ArrivalTick
	}
	return a.ID < b.ID
}

// admissionHeap implements heap.Interface over jobs and tracks each job's
// slot so that arbitrary jobs can be removed in O(log n).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type admissionHeap struct {
	jobs  []*Job
	index map[JobID]int
}

func (h *admissionHeap) Len() int           { return len(h.jobs) }
func (h *admissionHeap) Less(i, j int) bool { return admitsBefore(h.jobs[i], h.jobs[j]) }
func (h *admissionHeap) Swap(i, j int) {
	h.jobs[i], h.jobs[j] = h.jobs[j], h.jobs[i]
	h.index[h.jobs[i].ID] = i
	h.index[h.jobs[j].ID] = j
}

func (h *admissionHeap) Push(x any) {
	j := x.(*Job)
	h.index[j.ID] = len(h.jobs)
	h.jobs = append(h.jobs, j)
}

func (h *admissionHeap) Pop() any {
	old := h.jobs
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.jobs = old[0 : n-1]
	delete(h.index, item.ID)
	return item
}

// AdmissionQueue holds arrived jobs that have not yet been transferred into
// RR-T1, ordered by (priority desc, accrued waiting desc).
//
// Waiting time accrues uniformly across all members, so accrual never
// invalidates the heap. Arbitrary removals go through heap.Remove, which
// swaps the victim to the end and re-sifts, keeping the heap valid for the
// next PopTopK without a full rebuild.
type AdmissionQueue struct {
	h admissionHeap
}

// NewAdmissionQueue creates an empty admission queue.
func NewAdmissionQueue() *AdmissionQueue {
	return &AdmissionQueue{h: admissionHeap{index: make(map[JobID]int)}}
}

// Push inserts a job. Panics if a job with the same ID is already queued.
func (aq *AdmissionQueue) Push(j *Job) {
	if j == nil {
		panic("Push: job must not be nil")
	}
	if _, dup := aq.h.index[j.ID]; dup {
		panic(fmt.Sprintf("Push: job %d already in admission queue", j.ID))
	}
	j.State = StateAdmission
	heap.Push(&aq.h, j)
}

// Len returns the number of queued jobs.
func (aq *AdmissionQueue) Len() int {
	return aq.h.Len()
}

// Peek returns the job that would be popped next, or nil if empty.
func (aq *AdmissionQueue) Peek() *Job {
	if aq.h.Len() == 0 {
		return nil
	}
	return aq.h.jobs[0]
}

// Contains reports whether a job with the given ID is queued.
func (aq *AdmissionQueue) Contains(id JobID) bool {
	_, ok := aq.h.index[id]
	return ok
}

// PopTopK removes and returns up to k jobs in admission order.
func (aq *AdmissionQueue) PopTopK(k int) []*Job {
	n := min(k, aq.h.Len())
	if n <= 0 {
		return nil
	}
	out := make([]*Job, 0, n)
	for range n {
		out = append(out, heap.Pop(&aq.h).(*Job))
	}
	return out
}

// RemoveByID removes the job with the given ID. Returns nil if absent.
func (aq *AdmissionQueue) RemoveByID(id JobID) *Job {
	i, ok := aq.h.index[id]
	if !ok {
		return nil
	}
	return heap.Remove(&aq.h, i).(*Job)
}

// RemoveWhere removes every job matching pred and returns them in
// admission order.
func (aq *AdmissionQueue) RemoveWhere(pred func(*Job) bool) []*Job {
	if pred == nil {
		panic("RemoveWhere: pred must not be nil")
	}
	var victims []JobID
	for _, j := range aq.h.jobs {
		if pred(j) {
			victims = append(victims, j.ID)
		}
	}
	removed := make([]*Job, 0, len(victims))
	for _, id := range victims {
		removed = append(removed, aq.RemoveByID(id))
	}
	slices.SortFunc(removed, func(a, b *Job) int {
		if admitsBefore(a, b) {
			return -1
		}
		return 1
	})
	return removed
}

// AccrueAll adds delta ticks of waiting time to every queued job.
func (aq *AdmissionQueue) AccrueAll(delta float64) {
	for _, j := range aq.h.jobs {
		j.AccruedWaiting += delta
	}
}

// Items returns the queued jobs in heap (not admission) order.
// Callers MUST NOT mutate the returned slice.
func (aq *AdmissionQueue) Items() []*Job {
	return aq.h.jobs
}
