package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rival420/donwatcher/agent"
	"github.com/Rival420/donwatcher/config"
	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/logger"
)

// BeaconCmd groups beacon-side commands.
func BeaconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beacon",
		Short: "Beacon-side agent commands",
	}
	cmd.AddCommand(beaconRunCmd())
	return cmd
}

func beaconRunCmd() *cobra.Command {
	var serverURL string
	var pollSeconds, jitterPct int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the beacon poll loop against a coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return errors.Wrap(err, "load config")
			}

			if serverURL == "" {
				serverURL = cfg.Agent.ServerURL
			}
			if pollSeconds == 0 {
				pollSeconds = cfg.Agent.PollSeconds
			}
			if jitterPct < 0 {
				jitterPct = cfg.Agent.JitterPct
			}

			a := agent.New(agent.Config{
				ServerURL:    serverURL,
				PollInterval: time.Duration(pollSeconds) * time.Second,
				JitterPct:    jitterPct,
				ExecTimeout:  time.Duration(cfg.Agent.ExecTimeoutSeconds) * time.Second,
			}, logger.Logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = a.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (overrides config)")
	cmd.Flags().IntVar(&pollSeconds, "interval", 0, "Poll interval in seconds (overrides config)")
	cmd.Flags().IntVar(&jitterPct, "jitter", -1, "Jitter percent 0-100 (overrides config)")
	return cmd
}
