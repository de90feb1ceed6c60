package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "cac",
		Short:         "Compile a character seed into a pack of roleplay assets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config (yaml or json)")
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(compileCmd())
	root.AddCommand(resumeCmd())
	root.AddCommand(reviseCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(splitCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(blueprintsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			root.PrintErrln("Error:", err)
		}
		os.Exit(1)
	}
}
