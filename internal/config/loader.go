package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentledger.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil means "not given".
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	Store      *string
}

// ParseFlags parses serve flags. Each flag has a long and, where useful, a
// one-letter form.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		configPath, port, logLevel, dsn, natsURL, store string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config")
	fs.StringVar(&configPath, "c", "", "path to YAML config (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP port")
	fs.StringVar(&port, "p", "", "HTTP port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&store, "store", "", "store backend (postgres, memory)")
	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "dsn":
			flags.DSN = &dsn
		case "nats-url":
			flags.NatsURL = &natsURL
		case "store":
			flags.Store = &store
		}
	})
	return flags, nil
}

// LoadWithCLI loads defaults < YAML < ENV < CLI and returns the config plus
// the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.Store != nil {
		cfg.Ledger.Store = *flags.Store
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTLEDGER_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTLEDGER_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "AGENTLEDGER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "AGENTLEDGER_SHUTDOWN_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTLEDGER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTLEDGER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTLEDGER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTLEDGER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTLEDGER_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "AGENTLEDGER_NATS_STREAM")
	setString(&cfg.Logging.Level, "AGENTLEDGER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTLEDGER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTLEDGER_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "AGENTLEDGER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTLEDGER_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "AGENTLEDGER_RATE_RPS")
	setInt(&cfg.Rate.Burst, "AGENTLEDGER_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "AGENTLEDGER_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "AGENTLEDGER_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTLEDGER_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "AGENTLEDGER_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "AGENTLEDGER_CACHE_L2_TTL")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "AGENTLEDGER_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "AGENTLEDGER_IDEMPOTENCY_TTL")

	// Telemetry
	setBool(&cfg.OTEL.Enabled, "AGENTLEDGER_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTLEDGER_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AGENTLEDGER_OTEL_SAMPLE_RATE")

	// MCP
	setBool(&cfg.MCP.Enabled, "AGENTLEDGER_MCP_ENABLED")
	setString(&cfg.MCP.Port, "AGENTLEDGER_MCP_PORT")
	setString(&cfg.MCP.APIKey, "AGENTLEDGER_MCP_API_KEY")

	// Ledger
	setString(&cfg.Ledger.Store, "AGENTLEDGER_STORE")
	setString(&cfg.Ledger.AdminID, "AGENTLEDGER_ADMIN_ID")
	setString(&cfg.Ledger.AdminKeyHash, "AGENTLEDGER_ADMIN_KEY_HASH")
	setUint32(&cfg.Ledger.InsuranceBps, "AGENTLEDGER_INSURANCE_BPS")
	setDuration(&cfg.Ledger.AcquisitionWindow, "AGENTLEDGER_ACQUISITION_WINDOW")
	setBool(&cfg.Ledger.EnforceBans, "AGENTLEDGER_ENFORCE_BANS")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Ledger.Store {
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("ledger.store must be %q or %q", StorePostgres, StoreMemory)
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Ledger.AdminID == "" {
		return errors.New("ledger.admin_id is required")
	}
	if cfg.Ledger.InsuranceBps > 10000 {
		return errors.New("ledger.insurance_bps must be <= 10000")
	}
	if cfg.Ledger.AcquisitionWindow <= 0 {
		return errors.New("ledger.acquisition_window must be > 0")
	}
	if cfg.MCP.Enabled && cfg.MCP.Port == "" {
		return errors.New("mcp.port is required when mcp is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
