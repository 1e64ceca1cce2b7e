package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the credential outbox worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrate, _ := cmd.Flags().GetBool("migrate")
		a, log, err := bootstrap(cmd, migrate)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Run database migrations on startup even in release mode")
}
