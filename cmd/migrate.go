package cmd

import (
	"skillpath_backend/pkg/database"
	"skillpath_backend/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.InitLogger(cfg)
		defer log.Sync()

		db, err := database.InitDB(&cfg.Database, false, log)
		if err != nil {
			return err
		}
		defer database.Close(db)
		return database.AutoMigrate(db, log)
	},
}
