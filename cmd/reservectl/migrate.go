package main

import (
	"fmt"

	"pawhaven/config"
	"pawhaven/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Bring the schema up to date. Postgres uses the embedded versioned SQL
migrations; mysql falls back to gorm auto-migration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				return fmt.Errorf("nothing to migrate for the memory driver")
			}
			db, err := database.NewDB(&cfg.Database)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := database.Migrate(db, cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
