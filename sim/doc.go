// Package sim provides the tick-driven simulation engine for a four-level
// feedback job scheduler.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - job.go: Job lifecycle (pending → admission → tiers ↔ running → finished/removed)
//   - dispatcher.go: tier draw, cascade fallback and quantum slicing
//   - simulator.go: the per-tick loop and its fixed sub-step order
//
// # Containers
//
// Arrived jobs wait in the AdmissionQueue, a binary heap ordered by
// (priority class, accrued waiting). Every TransferPeriod ticks, if the
// service tiers run low, the top TransferBatch jobs move into RR-T1. The
// Dispatcher serves RR-T1 and RR-T2 with bounded quanta, demoting survivors
// one tier down, and runs FCFS jobs to completion. Jobs that wait longer
// than their timeout are evicted by the starvation reaper.
//
// # Key Interfaces
//
//   - JobSource: supplies the job sequence once, at construction (sim/workload)
//   - MetricsLogger: receives per-tick queue lengths and CPU busy fractions
//
// Decision tracing lives in sim/trace and is enabled by setting Simulator.Trace.
package sim
