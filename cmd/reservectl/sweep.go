package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pawhaven/config"
	"pawhaven/internal/app"
	"pawhaven/internal/logging"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration sweep and print the report",
		Long: `Expire submitted applications whose reservation fee is still unpaid after
the configured window, releasing reserved listings.

Examples:
  reservectl sweep
  reservectl sweep --as-of 2026-01-02T15:04:05Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if asOf != "" {
				t, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				now = t
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logging.New(cfg.Log))
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Sweeper.Run(cmd.Context(), now)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate the expiry window at this RFC3339 time instead of now")
	return cmd
}
