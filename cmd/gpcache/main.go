package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/TilBlechschmidt/gpcache/internal/api"
	"github.com/TilBlechschmidt/gpcache/internal/auth"
	"github.com/TilBlechschmidt/gpcache/internal/catalog"
	"github.com/TilBlechschmidt/gpcache/internal/metrics"
	"github.com/TilBlechschmidt/gpcache/internal/perturbation"
	"github.com/TilBlechschmidt/gpcache/internal/spacetrack"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	serverCfg := loadServerConfig(logger)

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	clientCfg, err := loadClientConfig()
	if err != nil {
		logger.Error("invalid upstream configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := spacetrack.New(ctx, clientCfg, logger)
	if err != nil {
		logger.Error("upstream login failed", "error", err)
		os.Exit(1)
	}

	cache := perturbation.NewCache(client, loadMaxAge(logger), logger)
	cat := catalog.New(client, loadCatalogConfig(logger), logger)

	// The service is useless without a catalog; fail fast if the first
	// refresh cannot complete.
	if err := cat.Refresh(ctx); err != nil {
		logger.Error("initial catalog refresh failed", "error", err)
		os.Exit(1)
	}

	refreshInterval := loadRefreshInterval(logger)
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cat.Refresh(ctx); err != nil {
					// The previous snapshot keeps serving.
					metrics.IncCatalogRefreshErrors()
					logger.Error("catalog refresh failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := cat.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := api.NewServer(serverCfg, logger, authCfg, cache, cat)

	go func() {
		logger.Info("starting server",
			"addr", serverCfg.Addr,
			"auth_enabled", authCfg.Enabled,
			"refresh_interval_seconds", refreshInterval.Seconds(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadServerConfig(logger *slog.Logger) api.Config {
	cfg := api.Config{Addr: ":8080"}

	if v := os.Getenv("GPCACHE_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}

	if v := os.Getenv("GPCACHE_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid GPCACHE_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	return cfg
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("GPCACHE_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("GPCACHE_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("GPCACHE_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("GPCACHE_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadClientConfig() (spacetrack.Config, error) {
	cfg := spacetrack.Config{
		Identity: os.Getenv("GPCACHE_SPACETRACK_IDENTITY"),
		Password: os.Getenv("GPCACHE_SPACETRACK_PASSWORD"),
		BaseURL:  os.Getenv("GPCACHE_SPACETRACK_URL"),
	}

	if cfg.Identity == "" {
		return cfg, errors.New("GPCACHE_SPACETRACK_IDENTITY is required")
	}
	if cfg.Password == "" {
		return cfg, errors.New("GPCACHE_SPACETRACK_PASSWORD is required")
	}

	return cfg, nil
}

func loadMaxAge(logger *slog.Logger) time.Duration {
	maxAge := perturbation.DefaultMaxAge

	if v := os.Getenv("GPCACHE_GP_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 1 {
			logger.Warn("invalid GPCACHE_GP_MAX_AGE value, using default", "value", v, "default_seconds", int(maxAge.Seconds()))
		} else {
			maxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("GP cache config", "max_age_seconds", maxAge.Seconds())
	return maxAge
}

func loadCatalogConfig(logger *slog.Logger) catalog.Config {
	cfg := catalog.Config{
		ResultLimit:    catalog.DefaultResultLimit,
		MinQueryLength: catalog.DefaultMinQueryLength,
	}

	if v := os.Getenv("GPCACHE_SEARCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GPCACHE_SEARCH_LIMIT value, using default", "value", v, "default", cfg.ResultLimit)
		} else {
			cfg.ResultLimit = n
		}
	}

	if v := os.Getenv("GPCACHE_SEARCH_MIN_QUERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GPCACHE_SEARCH_MIN_QUERY value, using default", "value", v, "default", cfg.MinQueryLength)
		} else {
			cfg.MinQueryLength = n
		}
	}

	logger.Info("catalog config", "result_limit", cfg.ResultLimit, "min_query_length", cfg.MinQueryLength)
	return cfg
}

func loadRefreshInterval(logger *slog.Logger) time.Duration {
	interval := 24 * time.Hour

	if v := os.Getenv("GPCACHE_REFRESH_INTERVAL"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 1 {
			logger.Warn("invalid GPCACHE_REFRESH_INTERVAL value, using default", "value", v, "default_seconds", int(interval.Seconds()))
		} else {
			interval = time.Duration(seconds) * time.Second
		}
	}

	return interval
}
