package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/joeycumines/go-kthread/ktrace"
	"github.com/joeycumines/go-kthread/scenario"
	"github.com/spf13/cobra"
)

type runFlags struct {
	clock      string
	tick       time.Duration
	trace      string
	timeout    time.Duration
	stats      bool
	check      bool
	invariants bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios and print their output",
		Long: `Runs each scenario on a fresh scheduler, printing the lines it
produces. With --check, the output is compared against the scenario's
expect list, and any mismatch fails the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clock, err := scenario.ParseClock(f.clock)
			if err != nil {
				return err
			}

			var trace io.Writer
			if f.trace != `` {
				file, err := os.Create(f.trace)
				if err != nil {
					return fmt.Errorf("create trace file: %w", err)
				}
				defer file.Close()
				trace = file
			}

			var errs []error
			for _, path := range args {
				if err := a.runFile(cmd, path, clock, trace, &f); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVar(&f.clock, "clock", scenario.ClockVirtual.String(), "Timer interrupt source (virtual, realtime)")
	cmd.Flags().DurationVar(&f.tick, "tick", 10*time.Millisecond, "Real time per tick, for the realtime clock")
	cmd.Flags().StringVar(&f.trace, "trace", "", "Write scheduling events to this file, as JSON lines")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "Per-scenario timeout")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "Print thread statistics after each scenario")
	cmd.Flags().BoolVar(&f.check, "check", false, "Compare output against each scenario's expect list")
	cmd.Flags().BoolVar(&f.invariants, "invariants", false, "Check scheduler invariants on every context switch")

	return cmd
}

func (a *app) runFile(cmd *cobra.Command, path string, clock scenario.Clock, trace io.Writer, f *runFlags) error {
	out := cmd.OutOrStdout()

	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	opts := []scenario.Option{
		scenario.WithLogger(a.logger),
		scenario.WithRunID(runID),
		scenario.WithClock(clock),
		scenario.WithTickInterval(f.tick),
		scenario.WithMetrics(f.stats),
		scenario.WithInvariantChecks(f.invariants),
		scenario.WithLogStats(f.stats),
	}
	var rec *ktrace.Recorder
	if trace != nil {
		rec = ktrace.New(ktrace.WithWriter(trace), ktrace.WithRunID(runID))
		opts = append(opts, scenario.WithTracer(rec))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()

	start := time.Now()
	res, err := scenario.Run(ctx, sc, opts...)
	if err != nil {
		fmt.Fprintf(out, "FAIL %s: %v\n", sc.Name, err)
		return err
	}
	a.logger.Info().
		Str(`scenario`, sc.Name).
		Dur(`elapsed`, time.Since(start)).
		Int64(`ticks`, res.Ticks).
		Log(`scenario complete`)

	for _, line := range res.Output {
		fmt.Fprintln(out, line)
	}

	if rec != nil {
		if err := rec.Err(); err != nil {
			return fmt.Errorf("%s: trace: %w", sc.Name, err)
		}
		a.logger.Debug().
			Str(`scenario`, sc.Name).
			Int(`events`, rec.Count()).
			Log(`trace written`)
	}

	if f.stats {
		fmt.Fprintln(out, res.Stats.Summary())
		fmt.Fprintf(out, "Scheduler: %s context switches, %s preemptions, %s donations, %s threads created\n",
			humanize.Comma(int64(res.Stats.ContextSwitches)),
			humanize.Comma(int64(res.Stats.Preemptions)),
			humanize.Comma(int64(res.Stats.Donations)),
			humanize.Comma(int64(res.Stats.Created)),
		)
		if m := res.Metrics; m != nil && m.ReadyWait.Sample() != 0 {
			fmt.Fprintf(out, "Ready wait: p50 %d, p90 %d, p99 %d, max %d ticks\n",
				m.ReadyWait.P50, m.ReadyWait.P90, m.ReadyWait.P99, m.ReadyWait.Max)
		}
	}

	if f.check {
		if err := res.Check(sc.Expect); err != nil {
			fmt.Fprintf(out, "FAIL %s\n", sc.Name)
			return err
		}
		fmt.Fprintf(out, "PASS %s\n", sc.Name)
	}
	return nil
}
