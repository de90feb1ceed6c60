package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func blueprintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blueprints [name]",
		Short: "List blueprints, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 1 {
				text, err := a.blueprints.Load(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			names, err := a.blueprints.Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
