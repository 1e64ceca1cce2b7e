package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Enqueue missing credential tasks and process pending ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := bootstrap(cmd, false)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		stats, err := a.Services.Outbox.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d, processed %d (succeeded %d, failed %d)\n",
			stats.Enqueued, stats.Pending.Processed, stats.Pending.Succeeded, stats.Pending.Failed)
		return nil
	},
}
