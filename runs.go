package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.close()
			store, err := a.openDrafts()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if remove != "" {
				if err := store.Delete(ctx, remove); err != nil {
					return fmt.Errorf("run %s: %w", remove, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", remove)
				return nil
			}

			records, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATE\tFAILED AT\tSLUG\tUPDATED")
			for _, r := range records {
				failedAt := "-"
				if r.FailedAt >= 0 {
					failedAt = fmt.Sprintf("%d (%s)", r.FailedAt, r.ErrorClass)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.State, failedAt, r.Slug, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&remove, "delete", "", "delete the run with this id")
	return cmd
}
