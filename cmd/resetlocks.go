package cmd

import (
	"fmt"

	"github.com/fibhq/outbox-bridge/internal/app"
	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/spf13/cobra"
)

var resetLocksCmd = &cobra.Command{
	Use:   "reset-locks",
	Short: "Release expired processing locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Outbox.ResetExpiredLocks(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("reset=%d\n", n)
		return nil
	},
}
