package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/config"
	"github.com/guildledger/backend/internal/logger"
)

var (
	configFile string
	cfg        *config.Config
	log        *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (toml, yaml, json or .env)")
}

var rootCmd = &cobra.Command{
	Use:   "guildledger",
	Short: "Economy and leveling backend for the guild bot",
	Long: `guildledger keeps the credit ledger, inventories and level rewards of a
chat community. The bot gateway talks to it over the HTTP API started by
"guildledger serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.New(), configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		log = logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: cfg.Log.Output,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
