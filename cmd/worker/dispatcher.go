package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fibhq/outbox-bridge/internal/app"
	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/fibhq/outbox-bridge/internal/logger"
	"github.com/fibhq/outbox-bridge/internal/metrics"
	"github.com/fibhq/outbox-bridge/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the outbox dispatch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) wire the app
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		w := worker.NewDispatcherWorker(
			a.Dispatcher,
			a.Outbox,
			logger.Log,
			cfg.Outbox.PollInterval,
			cfg.Outbox.SweepInterval,
		)

		log.Printf(">> dispatcher started poll=%s sweep=%s batchSize=%d",
			cfg.Outbox.PollInterval, cfg.Outbox.SweepInterval, cfg.Outbox.BatchSize)

		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
