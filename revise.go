package main

import (
	"github.com/spf13/cobra"

	"character_asset_compiler/generator"
)

func reviseCmd() *cobra.Command {
	var (
		kindName string
		comment  string
		noPack   bool
	)
	cmd := &cobra.Command{
		Use:   "revise <run-id|pack-dir>",
		Short: "Rewrite one asset from a comment and rebuild the assets after it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := generator.ParseKind(kindName)
			if err != nil {
				return err
			}
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
			_, runErr := sess.Revise(ctx, kind, comment)
			return a.finish(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), sess, runErr, !noPack)
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "", "asset kind to revise, e.g. intro_scene")
	cmd.Flags().StringVar(&comment, "comment", "", "what to change")
	cmd.Flags().BoolVar(&noPack, "no-pack", false, "store the run without writing a pack")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}
