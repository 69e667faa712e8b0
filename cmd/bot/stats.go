package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pricebot/internal/config"
	"pricebot/internal/engagement"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

func newStatsCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print subscriber and campaign statistics from the data store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgm := config.NewConfigManager(configPath())
			cfg, err := cfgm.Parse()
			if err != nil {
				return err
			}
			sc := storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}
			if sc.Path == "" && (sc.Driver == "" || sc.Driver == "file") {
				sc.Path = "bot_data.json"
			}
			store, err := storage.Open(context.Background(), sc, logx.Nop())
			if err != nil {
				return err
			}
			defer store.Close()

			tr := engagement.New(store, nil, nil, logx.Nop())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"overview":  tr.Overview(),
					"campaigns": tr.Recent(limit),
				})
			}
			fmt.Fprintln(out, engagement.PlainText(engagement.OverviewText(tr.Overview())))
			fmt.Fprintln(out)
			fmt.Fprintln(out, engagement.PlainText(engagement.CampaignsText(tr.Recent(limit), nil, nil)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent campaigns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
