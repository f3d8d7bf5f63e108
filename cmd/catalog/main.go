// Command catalog serves the gold jewelry catalog priced against the live
// gold spot price.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jewelry-catalog/pkg/catalog"
	"jewelry-catalog/pkg/config"
	"jewelry-catalog/pkg/fetcher"
	"jewelry-catalog/pkg/metrics"
	"jewelry-catalog/pkg/oracle"
	"jewelry-catalog/pkg/server"
	"jewelry-catalog/pkg/store"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "catalog.yaml", "Path to configuration file")
	portFlag := flag.String("p", "", "Port for HTTP server (default 5000)")
	cliMode := flag.Bool("cli", false, "Print the priced catalog and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("catalog %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	port, err := resolvePort(*portFlag, cfg.Server.Port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := setupLogger(os.Stdout, cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Starting catalog")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	spotFetcher := fetcher.NewGoldAPIFetcher(fetcher.Config{
		Endpoints:   cfg.Upstream.Endpoints,
		AccessToken: cfg.Upstream.AccessToken,
		Fields:      cfg.Upstream.Fields,
		Timeout:     cfg.Upstream.Timeout.Duration(),
		MaxAttempts: cfg.Upstream.MaxAttempts,
		BaseBackoff: cfg.Upstream.Backoff.Duration(),
	}, logger)
	if cfg.Upstream.AccessToken == "" {
		logger.Warn().Msg("No upstream access token configured; live prices will likely fail")
	}

	opts := []oracle.Option{oracle.WithLogger(logger), oracle.WithMetrics(m)}
	rdb := connectRedis(cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, oracle.WithStore(store.NewRedisQuoteStore(rdb, cfg.Redis.Key, cfg.Redis.TTL.Duration())))
	}

	priceOracle := oracle.New(spotFetcher, oracle.Config{
		TTL:          cfg.Oracle.TTL.Duration(),
		BackupAmount: cfg.Oracle.BackupAmount,
		FetchTimeout: cfg.Oracle.FetchTimeout.Duration(),
	}, opts...)

	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := priceOracle.Warm(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed last quote from store")
	}
	warmCancel()

	service := catalog.NewService(catalog.FileSource{Path: cfg.Catalog.ProductsFile}, priceOracle, logger)

	if *cliMode {
		items, err := service.PricedCatalog(context.Background())
		if err != nil {
			logger.Fatal().Err(err).Str("products_file", cfg.Catalog.ProductsFile).Msg("Failed to load products")
		}
		fmt.Print(catalog.FormatText(items))
		return
	}

	routerCfg := server.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Gatherer = reg
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	handler := server.NewHandler(service, priceOracle, logger)
	router := server.NewRouter(handler, logger, routerCfg)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	go func() {
		logger.Info().Str("address", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("Catalog stopped")
}

// resolvePort prefers the -p flag over the configured port.
func resolvePort(flagPort string, cfgPort int) (int, error) {
	if flagPort == "" {
		return cfgPort, nil
	}
	port, err := strconv.Atoi(flagPort)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", flagPort)
	}
	return port, nil
}

func setupLogger(w io.Writer, cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// connectRedis returns nil when the store is disabled or unreachable; the
// service then runs with the in-memory quote only.
func connectRedis(cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, continuing without quote store")
		rdb.Close()
		return nil
	}
	logger.Info().Str("addr", cfg.Addr).Msg("Connected to redis quote store")
	return rdb
}
