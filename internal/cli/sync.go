package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/novalyte/vantage/internal/database"
	"github.com/novalyte/vantage/internal/store"
	"github.com/novalyte/vantage/internal/warehouse"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot warehouse sync",
	Long:  "Reads clinics, leads, markets and activity from PostgreSQL and rebuilds the ClickHouse warehouse tables, then exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireDatabaseURL(cfg); err != nil {
			return err
		}
		if cfg.Warehouse.Host == "" {
			return fmt.Errorf("warehouse is not configured (set CLICKHOUSE_HOST or warehouse.host)")
		}

		if err := database.Connect(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()

		wh, err := warehouse.Connect(cfg.Warehouse)
		if err != nil {
			return fmt.Errorf("warehouse connection failed: %w", err)
		}
		defer func() { _ = wh.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		return warehouse.NewSyncer(store.New(database.DB), wh).Sync(ctx)
	},
}
