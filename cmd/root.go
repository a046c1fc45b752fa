package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/fbsim/fbsim/sim"
	"github.com/fbsim/fbsim/sim/trace"
	"github.com/fbsim/fbsim/sim/workload"
)

var (
	configPath string // Run configuration YAML file
	logLevel   string // Log verbosity level

	// CLI flags overriding the configuration file
	seed            int64     // Seed for job generation and tier selection
	horizon         int64     // Total simulation time (in ticks)
	transferPeriod  int64     // Admission transfer period (in ticks)
	transferBatch   int       // K: tier occupancy threshold and transfer size
	quantumT1       float64   // RR-T1 quantum
	quantumT2       float64   // RR-T2 quantum
	tierWeights     []float64 // Dispatcher weights for RR-T1, RR-T2, FCFS
	checkInvariants bool      // Verify conservation and single ownership every tick
	numJobs         int       // Number of generated jobs
	arrivalMean     float64   // Mean inter-arrival gap (in ticks)
	serviceMean     float64   // Mean service time (in ticks)
	timeoutMean     float64   // Mean timeout (in ticks)
	priorityWeights []float64 // Priority class weights for low, normal, high
	jobsFile        string    // Replay jobs from a YAML file instead of generating them

	// Output flags
	traceLevel      string // Decision trace level
	samplesFile     string // Per-tick CSV series output
	metricsTextfile string // Prometheus textfile output
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fbsim",
	Short: "Tick-driven simulator for a four-level feedback job scheduler",
}

// runOptions groups output settings that are not part of the run configuration.
type runOptions struct {
	TraceLevel      trace.TraceLevel
	SamplesFile     string
	MetricsTextfile string
	RunID           string
}

// runCmd executes the simulation using the configuration file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := defaultRunConfig()
		if configPath != "" {
			if cfg, err = loadRunConfig(configPath); err != nil {
				logrus.Fatalf("Could not load config: %v", err)
			}
		}
		if err := applyFlagOverrides(cmd, &cfg); err != nil {
			logrus.Fatalf("Invalid flags: %v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q", traceLevel)
		}

		opts := runOptions{
			TraceLevel:      trace.TraceLevel(traceLevel),
			SamplesFile:     samplesFile,
			MetricsTextfile: metricsTextfile,
			RunID:           uuid.NewString(),
		}
		startTime := time.Now()
		if _, err := runSimulation(cfg, opts, os.Stdout); err != nil {
			var violation *sim.InvariantViolationError
			if errors.As(err, &violation) {
				logrus.Errorf("State at tick %d:\n%s", violation.Tick, violation.Dump)
			}
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime))
	},
}

// applyFlagOverrides copies explicitly set flags over the loaded configuration.
// Only flags the user changed are applied, so file values survive flag defaults.
func applyFlagOverrides(cmd *cobra.Command, cfg *RunConfig) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("horizon") {
		cfg.Simulation.Horizon = horizon
	}
	if flags.Changed("transfer-period") {
		cfg.Simulation.TransferPeriod = transferPeriod
	}
	if flags.Changed("transfer-batch") {
		cfg.Simulation.TransferBatch = transferBatch
	}
	if flags.Changed("quantum-t1") {
		cfg.Simulation.QuantumT1 = quantumT1
	}
	if flags.Changed("quantum-t2") {
		cfg.Simulation.QuantumT2 = quantumT2
	}
	if flags.Changed("tier-weights") {
		w, err := sim.TierWeightsFromSlice(tierWeights)
		if err != nil {
			return err
		}
		cfg.Simulation.TierWeights = w
	}
	if flags.Changed("check-invariants") {
		cfg.Simulation.CheckInvariants = checkInvariants
	}
	if flags.Changed("jobs") {
		cfg.Workload.NumJobs = numJobs
	}
	if flags.Changed("arrival-mean") {
		cfg.Workload.ArrivalMean = arrivalMean
	}
	if flags.Changed("service-mean") {
		cfg.Workload.ServiceMean = serviceMean
	}
	if flags.Changed("timeout-mean") {
		cfg.Workload.TimeoutMean = timeoutMean
	}
	if flags.Changed("priority-weights") {
		w, err := workload.PriorityWeightsFromSlice(priorityWeights)
		if err != nil {
			return err
		}
		cfg.Workload.PriorityWeights = w
	}
	if flags.Changed("jobs-file") {
		cfg.Workload.JobsFile = jobsFile
	}
	return nil
}

// newJobSource picks the replay file when one is configured and the
// statistical generator otherwise.
func newJobSource(spec workload.Spec, rng *sim.PartitionedRNG) (sim.JobSource, error) {
	if spec.JobsFile != "" {
		return workload.LoadReplay(spec.JobsFile)
	}
	return workload.NewGenerator(spec, rng.ForSubsystem(sim.SubsystemWorkload))
}

// runSimulation builds and runs one simulation and writes the report to out.
func runSimulation(cfg RunConfig, opts runOptions, out io.Writer) (sim.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return sim.Outcome{}, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logrus.WithField("run", opts.RunID)

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	source, err := newJobSource(cfg.Workload, rng)
	if err != nil {
		return sim.Outcome{}, err
	}
	s, err := sim.NewSimulator(cfg.Simulation, source, rng)
	if err != nil {
		return sim.Outcome{}, err
	}
	metrics := sim.NewMetrics()
	s.Metrics = metrics
	if opts.TraceLevel == trace.TraceLevelDecisions {
		s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: opts.TraceLevel})
	}

	log.Infof("Starting simulation: seed=%d jobs=%d horizon=%d period=%d K=%d T1=%g T2=%g tiers=%v",
		cfg.Seed, s.NumJobs(), cfg.Simulation.Horizon, cfg.Simulation.TransferPeriod,
		cfg.Simulation.TransferBatch, cfg.Simulation.QuantumT1, cfg.Simulation.QuantumT2,
		cfg.Simulation.TierWeights.Slice())

	outcome, err := s.Run()
	if err != nil {
		return outcome, err
	}

	summary := s.Summarize()
	switch outcome.Status {
	case sim.OutcomeCompleted:
		fmt.Fprintf(out, "All jobs are either finished or removed! Finishing execution after %d ticks!\n", outcome.Tick)
	case sim.OutcomeHorizonReached:
		fmt.Fprintf(out, "Horizon of %d ticks reached with %d jobs unresolved.\n", outcome.Tick, outcome.Unresolved)
	}
	summary.Print(out)
	if s.Trace != nil {
		printTraceSummary(out, trace.Summarize(s.Trace))
	}

	if opts.SamplesFile != "" {
		if err := metrics.SaveSamples(opts.SamplesFile); err != nil {
			return outcome, err
		}
		log.Infof("Wrote per-tick samples to %s", opts.SamplesFile)
	}
	if opts.MetricsTextfile != "" {
		if err := summary.WriteTextfile(opts.MetricsTextfile, opts.RunID); err != nil {
			return outcome, fmt.Errorf("writing metrics textfile: %w", err)
		}
		log.Infof("Wrote metrics textfile to %s", opts.MetricsTextfile)
	}
	return outcome, nil
}

func printTraceSummary(out io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintln(out, "=== Decision Trace ===")
	fmt.Fprintf(out, "Dispatches               : %d (fallbacks %d, demotions %d)\n",
		ts.TotalDispatches, ts.FallbackCount, ts.DemotionCount)
	for _, tier := range []string{sim.TierRRT1.String(), sim.TierRRT2.String(), sim.TierFCFS.String()} {
		fmt.Fprintf(out, "  from %-20s: %d\n", tier, ts.TierDistribution[tier])
	}
	fmt.Fprintf(out, "Transfers                : %d (%d jobs, mean batch %.2f)\n",
		ts.TotalTransfers, ts.TransferredJobs, ts.MeanTransferBatch)
	fmt.Fprintf(out, "Evictions                : %d\n", ts.TotalEvictions)
	for _, container := range []string{sim.TierRRT1.String(), sim.TierRRT2.String(), sim.TierFCFS.String(), "priority"} {
		fmt.Fprintf(out, "  from %-20s: %d\n", container, ts.EvictionsByContainer[container])
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	defaults := defaultRunConfig()

	runCmd.Flags().StringVar(&configPath, "config", "", "Run configuration YAML file (flags override its values)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for job generation and tier selection")

	// Scheduler configs
	runCmd.Flags().Int64Var(&horizon, "horizon", defaults.Simulation.Horizon, "Total simulation horizon (in ticks)")
	runCmd.Flags().Int64Var(&transferPeriod, "transfer-period", defaults.Simulation.TransferPeriod, "Ticks between admission transfers")
	runCmd.Flags().IntVar(&transferBatch, "transfer-batch", defaults.Simulation.TransferBatch, "Tier occupancy threshold and max jobs per transfer (K)")
	runCmd.Flags().Float64Var(&quantumT1, "quantum-t1", defaults.Simulation.QuantumT1, "RR-T1 time quantum")
	runCmd.Flags().Float64Var(&quantumT2, "quantum-t2", defaults.Simulation.QuantumT2, "RR-T2 time quantum")
	runCmd.Flags().Float64SliceVar(&tierWeights, "tier-weights", defaults.Simulation.TierWeights.Slice(), "Comma-separated dispatcher weights for RR-T1,RR-T2,FCFS")
	runCmd.Flags().BoolVar(&checkInvariants, "check-invariants", defaults.Simulation.CheckInvariants, "Verify job conservation every tick")

	// Workload configs
	runCmd.Flags().IntVar(&numJobs, "jobs", defaults.Workload.NumJobs, "Number of jobs to generate")
	runCmd.Flags().Float64Var(&arrivalMean, "arrival-mean", defaults.Workload.ArrivalMean, "Mean inter-arrival gap (in ticks)")
	runCmd.Flags().Float64Var(&serviceMean, "service-mean", defaults.Workload.ServiceMean, "Mean service time (in ticks)")
	runCmd.Flags().Float64Var(&timeoutMean, "timeout-mean", defaults.Workload.TimeoutMean, "Mean timeout (in ticks)")
	runCmd.Flags().Float64SliceVar(&priorityWeights, "priority-weights", defaults.Workload.PriorityWeights.Slice(), "Comma-separated priority weights for low,normal,high")
	runCmd.Flags().StringVar(&jobsFile, "jobs-file", "", "Replay jobs from a YAML file instead of generating them")

	// Outputs
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelNone), "Decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&samplesFile, "samples-file", "", "Write per-tick queue lengths and CPU utilization as CSV")
	runCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write the summary in Prometheus text format")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
