// Command gatebench stress-tests gates: it queues many waiters on closed
// gates, cancels some, opens or releases the rest, and reports any waiter
// that was lost, resumed twice, or resumed out of order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/bobg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/A2Y-D5L/go-gate/internal/bench"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		level  = zapcore.WarnLevel
		logger = zap.NewNop()
	)

	root := &cobra.Command{
		Use:          "gatebench",
		Short:        "Stress-test gate wait/signal/cancel ordering",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logConfig := zap.NewProductionConfig()
			logConfig.DisableCaller = true
			logConfig.Level = zap.NewAtomicLevelAt(level)
			l, err := logConfig.Build()
			if err != nil {
				return errors.Wrap(err, "creating logger")
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().VarP((*logLevelFlag)(&level), "loglevel", "l", "log level")

	root.AddCommand(newRunCmd(func() *zap.Logger { return logger }))
	return root
}

func newRunCmd(log func() *zap.Logger) *cobra.Command {
	sc := bench.Default

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml...]",
		Short: "Run scenario files, or a single scenario built from flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := []bench.Scenario{sc}
			if len(args) > 0 {
				scenarios = scenarios[:0]
				for _, path := range args {
					loaded, err := bench.LoadScenario(path)
					if err != nil {
						return err
					}
					scenarios = append(scenarios, loaded)
				}
			}

			var failed error
			for _, s := range scenarios {
				rep, err := bench.Run(cmd.Context(), s, log())
				fmt.Fprintln(cmd.OutOrStdout(), rep)
				for _, v := range multierr.Errors(err) {
					fmt.Fprintf(cmd.OutOrStdout(), "  violation: %v\n", v)
				}
				if err != nil {
					failed = multierr.Append(failed, errors.Wrapf(err, "scenario %s", s.Name))
				}
			}
			return failed
		},
	}

	f := cmd.Flags()
	f.StringVar(&sc.Name, "name", sc.Name, "scenario name")
	f.IntVarP(&sc.Waiters, "waiters", "w", sc.Waiters, "waiters per round")
	f.IntVarP(&sc.Rounds, "rounds", "r", sc.Rounds, "number of rounds")
	f.IntVar(&sc.CancelEvery, "cancel-every", sc.CancelEvery, "cancel every n-th waiter (0 = none)")
	f.BoolVar(&sc.Release, "release", sc.Release, "release the gate instead of signaling it")
	f.DurationVar(&sc.Timeout, "timeout", sc.Timeout, "per-wait bound; a timeout counts as a lost wakeup")
	return cmd
}
