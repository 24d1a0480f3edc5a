package cmd

import (
	"fmt"

	"github.com/fibhq/outbox-bridge/internal/app"
	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch cycle and exit",
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

		res, err := a.Dispatcher.DispatchBatch(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("seeded=%d claimed=%d published=%d retried=%d dead=%d errors=%d\n",
			res.Seeded, res.Claimed, res.Published, res.Retried, res.Dead, res.Errors)
		return nil
	},
}
