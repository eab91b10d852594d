package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "outreach-cli",
	Short: "Contact discovery and multi-channel outreach",
	Long:  "Finds contacts matching a natural-language request via directory search, dedups them by identity fingerprint, and walks them through a staged outreach sequence across LinkedIn and Telegram under per-account rate ceilings.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
