package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"character_asset_compiler/generator"
	"character_asset_compiler/publisher"
)

func splitCmd() *cobra.Command {
	var (
		file string
		seed string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a pasted one-shot response into a pack without calling a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			assets, note, err := generator.ExtractSequence(raw, generator.Kinds())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "could not split %s\n", file)
				reportError(cmd.ErrOrStderr(), err)
				return errRunFailed
			}

			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			sheet, _ := assets.Get(generator.KindCharacterSheet)
			slug, err := generator.DeriveSlug(sheet)
			if err != nil {
				a.log.Warn("using fallback slug", "slug", slug, "reason", err)
			}
			if note != "" {
				cmd.PrintErrf("adjustment note: %s\n", note)
			}
			dir, err := a.publisher.Write(publisher.Pack{
				Slug:   slug,
				Seed:   seed,
				Mode:   generator.ParseMode(mode),
				Note:   note,
				Assets: assets,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "response file, or - for stdin")
	cmd.Flags().StringVar(&seed, "seed", "", "seed to record in the manifest")
	cmd.Flags().StringVar(&mode, "mode", "", "content mode to record in the manifest")
	return cmd
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
