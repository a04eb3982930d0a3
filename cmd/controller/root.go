package main

import (
	"github.com/spf13/cobra"

	"shongo-controller/internal/config"
	"shongo-controller/pkg/logging"
)

var configDir string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "shongo-controller",
	Short: "Shongo domain controller",
	Long: `shongo-controller schedules video-conference rooms and devices for one domain
and federates with peer domains over the inter-domain protocol.

Configuration is read from {env}.yaml (APP_ENV selects dev, test or prod) and
environment variables; secrets are read only from the environment.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configDir != "" {
			config.SetConfigDir(configDir)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (overrides CONFIG_DIR)")
	rootCmd.AddCommand(serveCmd, migrateCmd, installCmd, versionCmd)
}

// loadConfig 加载配置并创建根日志器
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "controller",
	})
	return cfg, logger, nil
}
