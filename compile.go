package main

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"character_asset_compiler/generator"
)

func compileCmd() *cobra.Command {
	var (
		mode    string
		oneShot bool
		noPack  bool
	)
	cmd := &cobra.Command{
		Use:   "compile <seed>",
		Short: "Generate all seven assets for a seed and write the pack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, strings.Join(args, " "), mode, oneShot, !noPack)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "content mode (SFW, NSFW, Platform-Safe or free text)")
	cmd.Flags().BoolVar(&oneShot, "one-shot", false, "request every asset in a single completion")
	cmd.Flags().BoolVar(&noPack, "no-pack", false, "store the run without writing a pack")
	return cmd
}

func runCompile(cmd *cobra.Command, seed, mode string, oneShot, publish bool) error {
	if strings.TrimSpace(seed) == "" {
		return errors.New("seed is empty")
	}
	a, err := loadApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	sess := generator.NewSession(uuid.NewString(), seed, generator.ParseMode(mode), a.controller)
	_, runErr := sess.Propose(ctx, oneShot)
	return a.finish(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), sess, runErr, publish)
}
