package main

import (
	"github.com/spf13/cobra"
)

func resumeCmd() *cobra.Command {
	var (
		noPack bool
		step   bool
	)
	cmd := &cobra.Command{
		Use:   "resume <run-id|pack-dir>",
		Short: "Continue a failed run from its last completed step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			sess, err := a.restore(ctx, args[0])
			if err != nil {
				return err
			}
			var runErr error
			if step {
				_, runErr = sess.Step(ctx)
			} else {
				_, runErr = sess.Resume(ctx)
			}
			return a.finish(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), sess, runErr, !noPack)
		},
	}
	cmd.Flags().BoolVar(&noPack, "no-pack", false, "store the run without writing a pack")
	cmd.Flags().BoolVar(&step, "step", false, "generate only the next missing asset")
	return cmd
}
