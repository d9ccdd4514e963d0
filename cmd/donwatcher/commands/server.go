package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/config"
	"github.com/Rival420/donwatcher/db"
	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/ingest"
	"github.com/Rival420/donwatcher/job"
	"github.com/Rival420/donwatcher/logger"
	"github.com/Rival420/donwatcher/schedule"
	"github.com/Rival420/donwatcher/server"
)

// ServerCmd runs the coordination server.
func ServerCmd() *cobra.Command {
	var port int
	var host string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			conn, err := db.Open(cfg.Database.Path, logger.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(conn, logger.Logger); err != nil {
				return errors.Wrap(err, "migrate database")
			}

			var ingestor ingest.Ingestor = ingest.NopIngestor{}
			if cfg.Ingest.Enabled && cfg.Ingest.URL != "" {
				ingestor = ingest.NewHTTPIngestor(cfg.Ingest.URL,
					time.Duration(cfg.Ingest.TimeoutSeconds)*time.Second)
			}

			srv := server.New(conn, cfg, ingestor, logger.Logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			thresholds := beacon.Thresholds{
				ActiveWindow:  time.Duration(cfg.Status.ActiveWindowMinutes) * time.Minute,
				DormantWindow: time.Duration(cfg.Status.DormantWindowMinutes) * time.Minute,
			}

			scheduler := schedule.NewScheduler(ctx,
				schedule.NewStore(conn),
				beacon.NewStore(conn),
				job.NewStore(conn),
				srv.Activity(),
				schedule.SchedulerConfig{
					Interval:   time.Duration(cfg.Scheduler.TickIntervalSeconds) * time.Second,
					Thresholds: thresholds,
				},
				logger.Logger,
			)
			scheduler.Start()
			defer scheduler.Stop()

			reaper := job.NewReaper(ctx, job.NewStore(conn), job.ReaperConfig{
				Interval:   time.Duration(cfg.Reaper.TickIntervalSeconds) * time.Second,
				Multiplier: cfg.Reaper.IntervalMultiplier,
			}, logger.Logger)
			reaper.Start()
			defer reaper.Stop()

			// Live-reload thresholds and reaper settings when the user
			// config changes
			if path := config.UserConfigPath(); path != "" {
				if _, err := os.Stat(path); err == nil {
					watcher, err := config.NewConfigWatcher(path)
					if err != nil {
						logger.Warnw("Config watcher unavailable", "error", err)
					} else {
						watcher.OnReload(srv.ApplyConfig)
						watcher.OnReload(func(newCfg *config.Config) error {
							scheduler.SetThresholds(beacon.Thresholds{
								ActiveWindow:  time.Duration(newCfg.Status.ActiveWindowMinutes) * time.Minute,
								DormantWindow: time.Duration(newCfg.Status.DormantWindowMinutes) * time.Minute,
							})
							reaper.SetMultiplier(newCfg.Reaper.IntervalMultiplier)
							return nil
						})
						watcher.Start()
						config.SetGlobalWatcher(watcher)
						defer watcher.Stop()
					}
				}
			}

			// Graceful shutdown on SIGINT/SIGTERM
			go func() {
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				<-sig
				logger.Infow("Shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
				cancel()
			}()

			return srv.Start(host, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	return cmd
}
