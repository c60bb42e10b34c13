// Package cli wires the process together: configuration, database,
// the aggregation view, the warehouse jobs and the HTTP server.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novalyte/vantage/internal/config"
	"github.com/novalyte/vantage/internal/dashboard"
	"github.com/novalyte/vantage/internal/database"
	"github.com/novalyte/vantage/internal/handlers"
	"github.com/novalyte/vantage/internal/jobs"
	"github.com/novalyte/vantage/internal/logging"
	"github.com/novalyte/vantage/internal/realtime"
	"github.com/novalyte/vantage/internal/store"
	"github.com/novalyte/vantage/internal/warehouse"
)

// Version is stamped at build time.
var Version = "dev"

var (
	flagDatabaseURL string
	flagPort        string
)

// RootCmd is the vantage entry point. Running it with no subcommand
// starts the server.
var RootCmd = &cobra.Command{
	Use:   "vantage",
	Short: "Marketing intelligence for clinic outreach",
	Long: `Vantage - marketing intelligence dashboard and warehouse pipeline.

Vantage aggregates page events and captured leads into an attribution
tree, a live session feed, geo rollups and summary metrics, and keeps
an analytical warehouse copy in sync for propensity scoring.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServer()
		}
		return cmd.Help()
	},
}

// Execute is called by main.
func Execute(version string) error {
	Version = version
	RootCmd.Version = version
	return RootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithOverrides(flagDatabaseURL, flagPort)
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL is required (flag --database-url, config file, or DATABASE_URL)")
	}
	return nil
}

// runServer starts everything: migrations, the database pool, the
// aggregation view with its realtime feed, the retention and sync
// schedulers, and the HTTP server. It blocks until SIGINT/SIGTERM.
func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabaseURL(cfg); err != nil {
		return err
	}

	logging.L().Info("running database migrations")
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		logging.L().Warn("migration warning", "error", err)
	}

	if err := database.Connect(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logging.L().Error("error closing database", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg := store.New(database.DB)
	hub := realtime.NewHub()

	view := dashboard.New(pg, hub)
	if err := view.Start(ctx); err != nil {
		return fmt.Errorf("initial dashboard load failed: %w", err)
	}
	hub.SetOnConnect(view.LiveFrame)

	if err := realtime.StartListener(ctx, cfg.DatabaseURL, view); err != nil {
		return fmt.Errorf("realtime listener failed: %w", err)
	}

	retention := database.NewRetentionScheduler()
	retention.Start()
	defer retention.Stop()

	h := &handlers.Handlers{
		View:    view,
		Store:   pg,
		Version: Version,
		PingDB:  database.DB.Ping,
	}

	// The warehouse is optional in development; without it the job
	// endpoints answer 503 and the cron schedule stays empty.
	var cron *jobs.CronManager
	if cfg.Warehouse.Host != "" {
		wh, err := warehouse.Connect(cfg.Warehouse)
		if err != nil {
			return fmt.Errorf("warehouse connection failed: %w", err)
		}
		defer func() { _ = wh.Close() }()

		syncer := warehouse.NewSyncer(pg, wh)
		scorer := warehouse.NewScorer(wh)
		h.RunSync = syncer.Sync
		h.RunScore = scorer.Score

		cron = jobs.NewCronManager(syncer)
		if err := cron.SetupJobs(cfg.SyncSchedule); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", cfg.SyncSchedule, err)
		}
		cron.Start()
		defer cron.Stop()
	} else {
		logging.L().Info("warehouse not configured, sync and scoring disabled")
	}

	app := newApp(h, hub)

	go func() {
		<-ctx.Done()
		logging.L().Info("shutting down")
		_ = app.Shutdown()
	}()

	logging.L().Info("vantage starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		return err
	}
	return nil
}

// newApp builds the fiber app with the shared middleware stack and all
// routes mounted.
func newApp(h *handlers.Handlers, hub *realtime.Hub) *fiber.App {
	app := fiber.New(createFiberConfig("Vantage - marketing intelligence"))

	app.Use(recoverer.New())
	accessLog, err := zap.NewProduction()
	if err != nil {
		accessLog = zap.NewNop()
	}
	app.Use(fiberzap.New(fiberzap.Config{
		Logger: accessLog,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))
	app.Use(func(c fiber.Ctx) error {
		c.Set("X-Vantage-Version", Version)
		return c.Next()
	})

	var ws fiber.Handler
	if hub != nil {
		ws = hub.Handler()
	}
	h.Register(app, ws)
	return app
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL connection string (overrides config and DATABASE_URL)")
	RootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "HTTP listen port (overrides config and PORT)")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(scoreCmd)

	setupSelfUpgrade()
}
