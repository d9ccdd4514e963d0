package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rival420/donwatcher/config"
	"github.com/Rival420/donwatcher/db"
	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/logger"
)

// DBCmd groups database maintenance commands.
func DBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(dbMigrateCmd(), dbStatsCmd())
	return cmd
}

func dbMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetDatabasePath()
			if err != nil {
				return err
			}
			conn, err := db.Open(path, logger.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			return db.Migrate(conn, logger.Logger)
		},
	}
}

func dbStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts per table",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetDatabasePath()
			if err != nil {
				return err
			}
			conn, err := db.Open(path, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, table := range []string{"beacons", "jobs", "job_templates", "schedules", "activity_log"} {
				var count int
				if err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
					return errors.Wrapf(err, "count %s", table)
				}
				fmt.Printf("%-14s %d\n", table, count)
			}
			return nil
		},
	}
}
