package cmd

import (
	"fmt"
	"os"

	"skillpath_backend/internal/service"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import users, quizzes and tracks from a YAML catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		catalog, err := service.LoadCatalog(f)
		if err != nil {
			return err
		}

		a, log, err := bootstrap(cmd, true)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		stats, err := a.Services.Importer.Import(cmd.Context(), catalog)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d users, %d quizzes, %d tracks, %d units\n",
			stats.Users, stats.Quizzes, stats.Tracks, stats.Units)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "configs/seed.yaml", "Catalog file to import")
}
