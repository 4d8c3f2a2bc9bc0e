package main

import (
	"encoding/json"
	"os"

	"pawhaven/config"
	"pawhaven/internal/app"
	"pawhaven/internal/logging"

	"github.com/spf13/cobra"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [reference]",
		Short: "Print the processor's view of a payment reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logging.New(cfg.Log))
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Gateway.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
