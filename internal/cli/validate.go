package cli

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-kthread/scenario"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Check scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", path)
					errs = append(errs, err)
					continue
				}
				a.logger.Debug().
					Str(`path`, path).
					Int(`threads`, len(sc.Threads)).
					Log(`scenario valid`)
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, sc.Name)
			}
			return errors.Join(errs...)
		},
	}
}
