package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pricebot/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgPath  string
	envFiles []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pricebot",
		Short:         "Telegram price-list broadcast bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv(envFiles...)
		},
		RunE: runBot,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json); empty for env only")
	root.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run the bot (default)", RunE: runBot},
		newStatsCmd(),
		newCheckCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfigManager(configPath()).Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d admin(s), storage=%s\n",
				len(cfg.Telegram.AdminIDs), cfg.Storage.Driver)
			return nil
		},
	}
}

// configPath drops a default path that does not exist so env-only setups work.
func configPath() string {
	if cfgPath == "" {
		return ""
	}
	if _, err := os.Stat(cfgPath); err != nil && os.IsNotExist(err) {
		return ""
	}
	return cfgPath
}
