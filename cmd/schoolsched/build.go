package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"schoolsched/internal/ics"
	"schoolsched/internal/service"
	"schoolsched/internal/store"
)

var buildCmd = &cobra.Command{
	Use:   "build <id>",
	Short: "Build one schedule and print it as JSON",
	Long: "Build resolves <id> like the API does (a configured schedule or a calendar UUID) " +
		"unless --feed is given, builds the schedule once and prints it. The cache is not used.",
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSlice("feed", nil, "calendar UUID or ICS URL; repeatable, later feeds win ties")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	feeds, _ := cmd.Flags().GetStringSlice("feed")

	svc := service.New(cfg, store.NewScheduleStore(store.NewMemoryClient()), ics.NewFetcher(cfg.CacheDir, nil))
	sched, err := svc.Build(cmd.Context(), args[0], feeds...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sched)
}
