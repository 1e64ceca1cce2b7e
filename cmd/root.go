package cmd

import (
	"path/filepath"

	"skillpath_backend/internal/app"
	"skillpath_backend/internal/config"
	"skillpath_backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "skillpath",
	Short:         "SkillPath learning progression and credential service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs", "Directory containing config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, "", err
	}
	return cfg, filepath.Join(dir, "config.yaml"), nil
}

// bootstrap 加载配置、初始化日志并装配应用；调用方负责 Close
func bootstrap(cmd *cobra.Command, forceMigrate bool) (*app.App, *zap.Logger, error) {
	cfg, file, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg.ForceMigrate = forceMigrate

	log := logger.InitLogger(cfg)
	a, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return nil, log, err
	}
	a.ConfigFile = file
	return a, log, nil
}
