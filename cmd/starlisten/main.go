package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/star/starlisten/internal/api"
	"github.com/star/starlisten/internal/auth"
	"github.com/star/starlisten/internal/eventlog"
	"github.com/star/starlisten/internal/metrics"
	"github.com/star/starlisten/internal/propagation"
	"github.com/star/starlisten/internal/stream"
	"github.com/star/starlisten/internal/tle"
)

// tleConfig holds TLE ingestion configuration.
type tleConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("STARLISTEN_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	tleCache := tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles)

	// Attempt to load cached TLE data on startup.
	if ds, err := tleCache.Load(logger); err != nil {
		logger.Info("no usable TLE cache, starting without TLE data", "error", err)
	} else {
		store.Set(ds)
		logger.Info("loaded TLE data from cache", "count", len(ds.Satellites), "cached_at", ds.FetchedAt.Format(time.RFC3339))
	}

	var fetcher *tle.Fetcher
	if tleCfg.EnableFetch {
		fetcher = tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	}

	propCfg := loadPropConfig(logger)
	catalog := propagation.NewCatalog(store, propCfg, logger)
	metrics.SetWorkers(propCfg.Workers)

	eventLog, err := openEventLog(logger)
	if err != nil {
		logger.Error("could not open event log", "error", err)
		os.Exit(1)
	}
	var recorder stream.Recorder
	if eventLog != nil {
		defer eventLog.Close()
		recorder = eventLog
	}

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(streamCfg, recorder, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:    store,
		Catalog:  catalog,
		Fetcher:  fetcher,
		Cache:    tleCache,
		Stream:   streamHandler,
		EventLog: eventLog,
		MaxSteps: loadMaxSteps(logger),
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background goroutine to update the TLE dataset age gauge and refresh
	// the dataset once it is older than MaxAge.
	go func() {
		refresh := func() {
			if fetcher == nil {
				return
			}
			if age := store.AgeSeconds(); age >= 0 && age < tleCfg.MaxAge.Seconds() {
				return
			}
			if _, err := store.Refresh(ctx, fetcher, tleCache, logger); err != nil {
				logger.Warn("TLE refresh failed", "source", fetcher.SourceURL(), "error", err)
			}
		}
		refresh()

		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		lastCheck := time.Now()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
				if time.Since(lastCheck) >= time.Minute {
					lastCheck = time.Now()
					refresh()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_fetch_enabled", tleCfg.EnableFetch, "event_log", eventLog != nil)
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

func loadLogLevel() slog.Level {
	level := slog.LevelInfo
	if v := os.Getenv("STARLISTEN_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("STARLISTEN_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("STARLISTEN_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("STARLISTEN_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("STARLISTEN_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadPropConfig(logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: runtime.NumCPU(),
	}

	if v := os.Getenv("STARLISTEN_SCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_SCAN_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	logger.Info("scan worker config", "workers", cfg.Workers)
	return cfg
}

func loadMaxSteps(logger *slog.Logger) int {
	maxSteps := 100_000
	if v := os.Getenv("STARLISTEN_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_MAX_STEPS value, using default", "value", v, "default", maxSteps)
		} else {
			maxSteps = n
		}
	}
	return maxSteps
}

// openEventLog opens the SQLite event log named by STARLISTEN_EVENT_DB. An
// unset variable disables the event log and returns nil.
func openEventLog(logger *slog.Logger) (*eventlog.Log, error) {
	path := os.Getenv("STARLISTEN_EVENT_DB")
	if path == "" {
		logger.Info("event log disabled")
		return nil, nil
	}
	el, err := eventlog.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Info("event log opened", "path", path)
	return el, nil
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		BandwidthLimit:     1048576,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("STARLISTEN_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("STARLISTEN_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_STREAM_MAX_TOTAL value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxConcurrent = n
		}
	}

	if v := os.Getenv("STARLISTEN_STREAM_BANDWIDTH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid STARLISTEN_STREAM_BANDWIDTH_LIMIT value, using default", "value", v, "default", 1048576)
		} else {
			cfg.BandwidthLimit = n
		}
	}

	if v := os.Getenv("STARLISTEN_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("STARLISTEN_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid STARLISTEN_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"bandwidth_limit", cfg.BandwidthLimit,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		EnableFetch: true,
		CacheDir:    "/tmp/starlisten/tle",
		MaxFiles:    5,
		MaxAge:      24 * time.Hour,
		ExtraSourceURLs: []string{
			// ISS (NORAD 25544), a well-documented reference satellite.
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		},
	}

	if v := os.Getenv("STARLISTEN_ENABLE_TLE_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid STARLISTEN_ENABLE_TLE_FETCH value, defaulting to false", "value", v)
			cfg.EnableFetch = false
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("STARLISTEN_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("STARLISTEN_TLE_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}

	if v := os.Getenv("STARLISTEN_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("STARLISTEN_TLE_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid STARLISTEN_TLE_MAX_FILES value, using default", "value", v, "default", cfg.MaxFiles)
		} else {
			cfg.MaxFiles = n
		}
	}

	if v := os.Getenv("STARLISTEN_TLE_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 1 {
			logger.Warn("invalid STARLISTEN_TLE_MAX_AGE value, defaulting to 86400", "value", v)
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}
