package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/novalyte/vantage/internal/warehouse"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run propensity scoring against the warehouse",
	Long: `Run propensity scoring against the warehouse and exit.

Trains a logistic regression inside ClickHouse when enough labeled
conversions exist, otherwise falls back to a heuristic score. The
scoring report is printed to stdout as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Warehouse.Host == "" {
			return fmt.Errorf("warehouse is not configured (set CLICKHOUSE_HOST or warehouse.host)")
		}

		wh, err := warehouse.Connect(cfg.Warehouse)
		if err != nil {
			return fmt.Errorf("warehouse connection failed: %w", err)
		}
		defer func() { _ = wh.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		result, err := warehouse.NewScorer(wh).Score(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}
