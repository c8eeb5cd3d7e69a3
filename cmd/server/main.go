package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmarota/internal/api"
	"pharmarota/internal/config"
	"pharmarota/internal/database"
	"pharmarota/internal/events"
	"pharmarota/internal/export"
	"pharmarota/internal/metrics"
	"pharmarota/internal/service"
	"pharmarota/internal/sweeper"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("PHARMAROTA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	var cache *service.CatalogCache
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		cache = service.NewCatalogCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewBus()
	svc := service.NewRotaService(db, cache, bus, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sheets.Enabled {
		sheets, err := export.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("sheets init error")
		}
		bus.Subscribe(events.TypeRotaPublished, mirrorOnPublish(svc, sheets, &logger))
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	sweep := sweeper.NewService(svc, cfg.SweepInterval(), &logger)
	sweep.Start()
	defer sweep.Stop()

	server := api.NewHTTPServer(svc, cfg.Server.Port, cfg.Server.APIKey, cfg.Server.RateLimit, cfg.Server.RateBurst, &logger)
	logger.Info().Int("port", cfg.Server.Port).Msg("rota server started")
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// mirrorOnPublish pushes the freshly published week to the Google Sheet.
func mirrorOnPublish(svc *service.RotaService, sheets *export.SheetsService, logger *zerolog.Logger) events.Handler {
	return func(event events.Event) error {
		var payload struct {
			WeekStart string `json:"week_start"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logger.Error().Err(err).Msg("sheets mirror: bad event payload")
			return err
		}
		weekStart, err := time.Parse("2006-01-02", payload.WeekStart)
		if err != nil {
			logger.Error().Err(err).Str("week_start", payload.WeekStart).Msg("sheets mirror: bad week start")
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		docs, err := svc.GetWeek(ctx, weekStart)
		if err != nil {
			logger.Error().Err(err).Msg("sheets mirror: load week failed")
			return err
		}
		if err := sheets.MirrorWeek(ctx, docs); err != nil {
			logger.Error().Err(err).Msg("sheets mirror: write failed")
			return err
		}
		return nil
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
