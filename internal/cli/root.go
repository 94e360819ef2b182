// Package cli implements the kthreadsim command line.
package cli

import (
	"github.com/joeycumines/go-kthread/internal/logging"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

// app carries state shared by the subcommands of one root command.
type app struct {
	logLevel string
	logRate  string
	logger   *logiface.Logger[logiface.Event]
}

// NewRootCmd creates the root cobra command for the kthreadsim CLI.
func NewRootCmd() *cobra.Command {
	a := new(app)
	root := &cobra.Command{
		Use:   "kthreadsim",
		Short: "Run thread scheduling scenarios",
		Long: `kthreadsim runs scripted workloads of kernel threads, locks and
semaphores on a priority scheduler with donation and an alarm clock,
printing each scenario's output transcript.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			limits, err := logging.ParseRateLimit(a.logRate)
			if err != nil {
				return err
			}
			a.logger = logging.New(logging.Config{
				Writer:     cmd.ErrOrStderr(),
				Level:      level,
				RateLimits: limits,
			})
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warning", "Log level (trace, debug, info, notice, warning, err, crit, disabled)")
	root.PersistentFlags().StringVar(&a.logRate, "log-rate", "1/1s,10/1m", "Rate limits for repetitive log messages, per call site (count/window,...)")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
	)

	return root
}
