package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const ProviderOllama = "ollama"

type Config struct {
	// Provider selects the Analyzer implementation. Default "ollama".
	Provider string

	// BaseURL of the inference server, e.g. http://localhost:11434.
	BaseURL string

	AttemptTimeout time.Duration // per-attempt timeout (default: 60s)
	MaxAttempts    int           // total attempts incl. the first (default: 3)
	RetryDelay     time.Duration // fixed delay between attempts (default: 2s)

	// Decoding parameters, tuned for focused deterministic output.
	Temperature float32 // default: 0.1
	NumPredict  int     // max tokens to generate (default: 2048)

	// DefaultModel is the fallback when model discovery fails.
	DefaultModel     string        // default: "codellama"
	DiscoveryTimeout time.Duration // /api/tags timeout (default: 5s)

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	// Normalize BaseURL: trim trailing slashes so we can safely append paths.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.1
	}
	if cfg.NumPredict <= 0 {
		cfg.NumPredict = 2048
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "codellama"
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = 5 * time.Second
	}

	return cfg
}

// NewAnalyzer builds the Analyzer for cfg.Provider. Unknown providers
// fail here, at construction, not mid-request.
func NewAnalyzer(cfg Config, gate Gate, logger *zap.Logger) (Analyzer, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if gate == nil {
		return nil, errors.New("gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case ProviderOllama:
		return newOllamaClient(cfg, gate, logger), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

type ollamaClient struct {
	cfg        Config
	gate       Gate
	httpClient *http.Client
	logger     *zap.Logger
}

func newOllamaClient(cfg Config, gate Gate, logger *zap.Logger) *ollamaClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(),
		}
	}
	return &ollamaClient{
		cfg:        cfg,
		gate:       gate,
		httpClient: httpClient,
		logger:     logger.Named("ollama"),
	}
}

// defaultTransport creates an HTTP transport with connection pooling
// suited to a single local upstream.
func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases resources held by the client.
func (c *ollamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
