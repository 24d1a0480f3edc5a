package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fibhq/outbox-bridge/internal/config"
	"github.com/fibhq/outbox-bridge/internal/db"
	"github.com/fibhq/outbox-bridge/internal/model"
	"github.com/fibhq/outbox-bridge/internal/repository"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo destinations and routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo destinations and routes...")

		repo := repository.NewDestinationsRepository(sqlDB)
		if err := seedDestinations(cmd.Context(), repo); err != nil {
			return err
		}
		if err := seedRoutes(cmd.Context(), repo); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func rawConfig(cfg map[string]any) json.RawMessage {
	raw, _ := json.Marshal(cfg)
	return raw
}

// seedDestinations upserts deterministic demo destinations keyed by their
// technical name (idempotent).
func seedDestinations(ctx context.Context, repo repository.DestinationsRepository) error {
	destinations := []model.Destination{
		{
			ID:            "01SEED0000000000000000DEST1",
			Name:          "Demo webhook",
			TechnicalName: "demo-webhook",
			Type:          "webhook",
			Active:        true,
			Config: rawConfig(map[string]any{
				"url":       "http://localhost:9999/webhooks/demo",
				"secretRef": "env:DEMO_WEBHOOK_TOKEN",
			}),
		},
		{
			ID:            "01SEED0000000000000000DEST2",
			Name:          "Demo queue",
			TechnicalName: "demo-queue",
			Type:          "queue",
			Active:        true,
			Config: rawConfig(map[string]any{
				"topic": "outbox.events",
			}),
		},
		{
			ID:            "01SEED0000000000000000DEST3",
			Name:          "Demo null sink",
			TechnicalName: "demo-null",
			Type:          "null",
			Active:        true,
			Config:        rawConfig(map[string]any{}),
		},
		{
			ID:            "01SEED0000000000000000DEST4",
			Name:          "Disabled SFTP drop",
			TechnicalName: "demo-sftp",
			Type:          "sftp",
			Active:        false,
			Config: rawConfig(map[string]any{
				"host":        "sftp.internal",
				"username":    "outbox",
				"passwordRef": "env:DEMO_SFTP_PASSWORD",
				"remoteDir":   "/incoming/outbox",
			}),
		},
	}

	for _, d := range destinations {
		if err := repo.UpsertDestination(ctx, d); err != nil {
			return fmt.Errorf("upsert destination %q: %w", d.TechnicalName, err)
		}
	}
	return nil
}

func seedRoutes(ctx context.Context, repo repository.DestinationsRepository) error {
	routes := []model.Route{
		{
			ID:           "01SEED0000000000000000ROUT1",
			Name:         "Orders to webhook and queue",
			EventPattern: "order.*",
			Priority:     10,
			Active:       true,
			TargetKeys:   []string{"demo-webhook", "demo-queue"},
		},
		{
			ID:           "01SEED0000000000000000ROUT2",
			Name:         "Everything else to null",
			EventPattern: "*",
			Priority:     100,
			Active:       true,
			TargetKeys:   []string{"demo-null"},
		},
	}

	for _, r := range routes {
		if err := repo.UpsertRoute(ctx, r); err != nil {
			return fmt.Errorf("upsert route %q: %w", r.Name, err)
		}
	}
	return nil
}
