package cmd

import (
	"fmt"

	"github.com/fibhq/outbox-bridge/internal/app"
	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/spf13/cobra"
)

var (
	requeueLimit     int
	requeueEventName string

	requeueCmd = &cobra.Command{
		Use:   "requeue-dead",
		Short: "Return dead deliveries to the retry queue",
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

			n, err := a.Outbox.RequeueDead(cmd.Context(), requeueLimit, requeueEventName)
			if err != nil {
				return err
			}

			fmt.Printf("requeued=%d\n", n)
			return nil
		},
	}
)

func init() {
	requeueCmd.Flags().IntVar(&requeueLimit, "limit", 100, "max deliveries to requeue")
	requeueCmd.Flags().StringVar(&requeueEventName, "event-name", "", "only requeue deliveries of this event name")
}
