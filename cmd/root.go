package cmd

import (
	"fmt"
	"os"

	"github.com/fibhq/outbox-bridge/cmd/worker"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "outbox-bridge",
		Short: "Transactional outbox delivery engine CLI",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(resetLocksCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
