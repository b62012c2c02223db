package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schoolsched/internal/config"
	"schoolsched/internal/ics"
	appLog "schoolsched/internal/log"
	"schoolsched/internal/service"
	"schoolsched/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the schedule API and refresh schedules on a timer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("warm", false, "build every configured schedule at startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("schoolsched starting", "version", version)

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"division", cfg.Division,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"cache_ttl_hours", cfg.CacheTTLHours,
		"schedules", len(cfg.Schedules),
	)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(cfg, st, ics.NewFetcher(cfg.CacheDir, nil))

	refresher := service.NewRefresher(svc)
	if err := refresher.Start(cfg.RefreshCron); err != nil {
		return err
	}

	if warm, _ := cmd.Flags().GetBool("warm"); warm {
		go func() {
			if err := svc.RefreshAll(ctx); err != nil {
				appLog.Warn("startup refresh finished with errors", "reason", err.Error())
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.NewServer(svc).Run(gctx, cfg.Listen)
	})
	g.Go(func() error {
		return config.Watch(gctx, cfgPath, func(next *config.Config) {
			applyOverrides(next)
			svc.UpdateConfig(next)
			if err := refresher.Reschedule(next.RefreshCron); err != nil {
				appLog.Error("invalid refresh spec; keeping previous", err, "refresh", next.RefreshCron)
			}
		})
	})
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	refresher.Stop(shutdownCtx)
	svc.Wait()

	appLog.Info("schoolsched exiting")
	return err
}
