package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codelens/internal/cache"
	"codelens/internal/handlers"
	"codelens/internal/history"
	"codelens/internal/httpserver"
	"codelens/internal/llm"
	"codelens/internal/metrics"
	"codelens/internal/ratelimit"
	"codelens/pkg/logging"
)

type Config struct {
	Port         string
	CacheBackend string // "memory" or "redis"
	RedisAddr    string
	OllamaURL    string
	DefaultModel string
	RateMaxCalls int
	RatePeriod   time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: getenv("CACHE_BACKEND", "memory"),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		OllamaURL:    getenv("OLLAMA_URL", "http://localhost:11434"),
		DefaultModel: getenv("DEFAULT_MODEL", "codellama"),
		RateMaxCalls: getenvInt("RATE_MAX_CALLS", ratelimit.DefaultMaxCalls),
		RatePeriod:   getenvDuration("RATE_PERIOD", ratelimit.DefaultPeriod),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("codelens exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("ollama_url", cfg.OllamaURL),
		zap.String("default_model", cfg.DefaultModel),
		zap.Int("rate_max_calls", cfg.RateMaxCalls),
		zap.Duration("rate_period", cfg.RatePeriod),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Result cache -----
	store := cache.NewStore(cache.Config{
		Backend: cfg.CacheBackend,
		Prefix:  "codelens",
	}, redisClient)
	store = cache.NewLoggingStore(store)

	// ----- Rate limiter (per model key) -----
	limiter := ratelimit.New(cfg.RateMaxCalls, cfg.RatePeriod)

	// ----- Analyzer -----
	analyzer, err := llm.NewAnalyzer(llm.Config{
		Provider:     llm.ProviderOllama,
		BaseURL:      cfg.OllamaURL,
		DefaultModel: cfg.DefaultModel,
	}, limiter, logger)
	if err != nil {
		return err
	}
	if closer, ok := analyzer.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Session state, owned here and injected -----
	sessionHistory := history.NewLog()

	// ----- Handlers -----
	analysisHandler := handlers.NewAnalysisHandler(
		store,
		sessionHistory,
		analyzer,
		cfg.DefaultModel,
	)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, analysisHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Write timeout has to outlast the analyzer's retry budget.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting codelens",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
