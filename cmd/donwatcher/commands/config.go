package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rival420/donwatcher/config"
)

// ConfigCmd groups configuration commands.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				target = config.UserConfigPath()
			}
			if err := config.WriteDefault(target); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "destination file (defaults to the user config path)")
	return cmd
}
