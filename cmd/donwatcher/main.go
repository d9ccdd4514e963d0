package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rival420/donwatcher/cmd/donwatcher/commands"
	"github.com/Rival420/donwatcher/logger"
)

var jsonOutput bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "donwatcher",
		Short: "Beacon coordination server and agent",
		Long: `DonWatcher coordinates lightweight remote agents ("beacons"):
registration with derived stable identities, jittered pull-based job
polling, recurring schedules, and liveness inference.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Initialize(jsonOutput)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Cleanup()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON log output")

	rootCmd.AddCommand(commands.ServerCmd())
	rootCmd.AddCommand(commands.BeaconCmd())
	rootCmd.AddCommand(commands.DBCmd())
	rootCmd.AddCommand(commands.ConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
