package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/trialnotes/internal/config"
	"github.com/rpattn/trialnotes/internal/db"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/internal/graphql"
	"github.com/rpattn/trialnotes/internal/httpapi"
	"github.com/rpattn/trialnotes/internal/ingestion"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/query"
	"github.com/rpattn/trialnotes/internal/repository"
	"github.com/rpattn/trialnotes/internal/settings"
)

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.NewLogger("trialnotes-server", "info").Fatal().Err(err).Msg("error loading config")
	}
	log := logger.NewLogger("trialnotes-server", cfg.Log.Level)
	log.Debug().Any("config", cfg).Msg("received configs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.Open(ctx, cfg.Database, log.Component("db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if !cfg.Database.MigrationsDisabled {
		if err := conn.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	store := repository.NewStore(conn, log.Component("repository"))

	querySvc := query.NewService(store, log.Component("query"),
		query.WithNotifier(httpapi.NewLogNotifier(log.Component("derive"))))
	settingsSvc := settings.NewService(store.Settings, store.CustomFields, querySvc.Registry(), log.Component("settings"))
	ingestionSvc := ingestion.NewService(store.Entries, store.CustomFields, log.Component("ingestion"))
	exportSvc := export.NewService(querySvc, log.Component("export"),
		export.WithExportDirectory(cfg.Export.Directory))

	resolver := graphql.NewResolver(querySvc, settingsSvc, store, exportSvc, log.Component("graphql"))

	api := httpapi.NewHandler(graphql.NewServer(resolver), log.Component("http"),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithValueSource(store.Entries),
		httpapi.WithImporter(ingestion.NewHTTPHandler(ingestionSvc)),
		httpapi.WithExporter(export.NewHTTPHandler(exportSvc)),
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      http.TimeoutHandler(api.Init(), cfg.Server.RequestTimeout, "request timed out"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
