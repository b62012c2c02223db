package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"schoolsched/internal/config"
	appLog "schoolsched/internal/log"
	"schoolsched/internal/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

const defaultConfigPath = "/etc/schoolsched/config.yaml"

var rootCmd = &cobra.Command{
	Use:           "schoolsched",
	Short:         "Build class schedules from school calendar feeds",
	Long:          "schoolsched fetches class calendar feeds, assembles per-day block schedules and serves them over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", defaultConfigPath, "path to config file")
	rootCmd.PersistentFlags().String("listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides config if set)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("listen", rootCmd.PersistentFlags().Lookup("listen"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix("SCHOOLSCHED")
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies flag/env overrides.
func loadConfig() (*config.Config, string, error) {
	path := viper.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		if cfg == nil {
			return nil, path, fmt.Errorf("failed to load config: %w", err)
		}
		appLog.Warn("could not write default config; continuing with defaults", "config_path", path, "reason", err.Error())
	}
	applyOverrides(cfg)
	return cfg, path, nil
}

func applyOverrides(cfg *config.Config) {
	if l := viper.GetString("listen"); l != "" {
		cfg.Listen = l
	}
	if l := viper.GetString("log_level"); l != "" {
		cfg.LogLevel = l
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
}

// openStore connects the schedule cache to Redis, or to memory when no
// Redis address is configured.
func openStore(ctx context.Context, cfg *config.Config) (*store.ScheduleStore, func(), error) {
	if cfg.Redis.Addr == "" {
		appLog.Info("schedule cache in memory")
		return store.NewScheduleStore(store.NewMemoryClient()), func() {}, nil
	}
	client, err := store.NewGoRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	appLog.Info("schedule cache in redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return store.NewScheduleStore(client), func() { _ = client.Close() }, nil
}
