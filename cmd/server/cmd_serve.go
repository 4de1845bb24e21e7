package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/meshquote/internal/catalog"
	"github.com/Simplici0/meshquote/internal/config"
	"github.com/Simplici0/meshquote/internal/db"
	"github.com/Simplici0/meshquote/internal/geometry"
	"github.com/Simplici0/meshquote/internal/leads"
	"github.com/Simplici0/meshquote/internal/logging"
	"github.com/Simplici0/meshquote/internal/meshio"
	"github.com/Simplici0/meshquote/internal/metrics"
	"github.com/Simplici0/meshquote/internal/migrations"
	"github.com/Simplici0/meshquote/internal/preview"
	"github.com/Simplici0/meshquote/internal/seed"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	Long: `Starts the HTTP API on PORT. Configuration comes from the environment
and an optional .env file in the working directory.

The process stops on SIGINT or SIGTERM after in-flight requests finish.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(logging.Options{Environment: cfg.Env})
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, source, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Up(ctx, database, logger); err != nil {
		return err
	}

	rev, stats, err := seed.Run(database, cat, source, time.Now())
	if err != nil {
		return err
	}
	categories, methods, materials := cat.Counts()
	logger.Info().
		Str("source", source).
		Str("fingerprint", rev.Fingerprint).
		Int("categories", categories).
		Int("methods", methods).
		Int("materials", materials).
		Int("inserts", stats.Inserts).
		Int("updates", stats.Updates).
		Msg("catalog loaded")

	m := metrics.New()

	previews, err := preview.New(cfg.PreviewDir, cfg.PreviewTTL,
		preview.WithLogger(logger),
		preview.WithEvictHook(m.PreviewEvicted),
	)
	if err != nil {
		return err
	}

	sink, closeSinks, err := buildSinks(ctx, cfg, database, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	opts := geometry.DefaultOptions()
	opts.MeterThreshold = cfg.MeterThreshold
	opts.BoundingBoxFactor = cfg.BBoxFallbackFactor

	srv := &server{
		log: logger,
		analyzer: &analyzer{
			registry: meshio.NewRegistry(cfg.AcceptedExtensions),
			catalog:  cat,
			options:  opts,
		},
		previews:    previews,
		sink:        sink,
		metrics:     m,
		revision:    rev.Fingerprint,
		maxUpload:   cfg.MaxUploadBytes(),
		corsOrigins: cfg.CORSOrigins,
		now:         time.Now,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("env", cfg.Env.String()).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return previews.Run(gctx, cfg.PreviewSweepInterval)
	})

	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, string, error) {
	if path == "" {
		cat, err := catalog.Default()
		return cat, "embedded", err
	}
	cat, err := catalog.LoadFile(path)
	return cat, path, err
}

// buildSinks assembles the configured lead sinks behind one Fanout.
func buildSinks(ctx context.Context, cfg config.Config, database *sql.DB, logger zerolog.Logger) (leads.Sink, func(), error) {
	var (
		sinks   []leads.Sink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.LeadSinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, leads.LogSink{Logger: logger})
		case config.SinkSQLite:
			sinks = append(sinks, leads.NewSQLiteStore(database))
		case config.SinkRedis:
			client, err := cfg.Redis.New(ctx)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { client.Close() })
			sinks = append(sinks, leads.NewRedisSink(client, cfg.Redis.LeadKey))
		}
	}

	return leads.Fanout{Sinks: sinks}, closeAll, nil
}
