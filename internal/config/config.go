package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `json:"server"`
	MongoDB      MongoDBConfig      `json:"mongodb"`
	RPC          RPCConfig          `json:"rpc"`
	Token        TokenConfig        `json:"token"`
	Tier         TierConfig         `json:"tier"`
	Cache        CacheConfig        `json:"cache"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
	Ledger       LedgerConfig       `json:"ledger"`
	AccessWindow AccessWindowConfig `json:"access_window"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI              string        `json:"uri"`
	Database         string        `json:"database"`
	LedgerCollection string        `json:"ledger_collection"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	MaxPoolSize      uint64        `json:"max_pool_size"`
}

// RPCConfig holds Solana RPC configuration
type RPCConfig struct {
	Endpoint   string        `json:"endpoint"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// TokenConfig identifies the gating token whose held balance determines tier.
// An empty Mint switches the balance oracle into deterministic mock mode.
type TokenConfig struct {
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
}

// TierConfig holds tier policy configuration
type TierConfig struct {
	WhaleUnlimited bool `json:"whale_unlimited"`
}

// CacheConfig holds balance cache configuration. Expired entries are
// swept on the TTL interval.
type CacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// ActionLimit configures the fixed window for one protected action.
// KeyBy selects the identifier namespace: "wallet" or "ip".
type ActionLimit struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"max_requests"`
	KeyBy       string        `json:"key_by"`
}

// RateLimitConfig holds the per-action rate limit table
type RateLimitConfig struct {
	Actions         map[string]ActionLimit `json:"actions"`
	CleanupInterval time.Duration          `json:"cleanup_interval"`
}

// LedgerConfig holds usage ledger configuration
type LedgerConfig struct {
	Backend    string `json:"backend"` // "memory" or "mongo"
	MaxRecords int    `json:"max_records"`
}

// AccessWindowConfig holds free-access window configuration
type AccessWindowConfig struct {
	Open       bool          `json:"open"`
	LaunchTime string        `json:"launch_time"` // RFC3339, empty means unset
	Duration   time.Duration `json:"duration"`
	StatePath  string        `json:"state_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `json:"level"`
	Environment string   `json:"environment"`
	OutputPaths []string `json:"output_paths"`
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		MongoDB: MongoDBConfig{
			URI:              getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:         getEnv("MONGODB_DATABASE", "wallet_gate"),
			LedgerCollection: getEnv("MONGODB_LEDGER_COLLECTION", "usage_ledger"),
			ConnectTimeout:   getDurationEnv("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			MaxPoolSize:      getUint64Env("MONGODB_MAX_POOL_SIZE", 100),
		},
		RPC: RPCConfig{
			Endpoint:   getEnv("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
			Timeout:    getDurationEnv("SOLANA_RPC_TIMEOUT", 30*time.Second),
			MaxRetries: getIntEnv("SOLANA_RPC_MAX_RETRIES", 3),
			RetryDelay: getDurationEnv("SOLANA_RPC_RETRY_DELAY", 1*time.Second),
		},
		Token: TokenConfig{
			Mint:     getEnv("GATING_TOKEN_MINT", ""),
			Decimals: getIntEnv("GATING_TOKEN_DECIMALS", 6),
		},
		Tier: TierConfig{
			WhaleUnlimited: getBoolEnv("TIER_WHALE_UNLIMITED", false),
		},
		Cache: CacheConfig{
			TTL: getDurationEnv("BALANCE_CACHE_TTL", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Actions:         defaultActionLimits(),
			CleanupInterval: getDurationEnv("RATE_LIMIT_CLEANUP_INTERVAL", 60*time.Second),
		},
		Ledger: LedgerConfig{
			Backend:    getEnv("LEDGER_BACKEND", "mongo"),
			MaxRecords: getIntEnv("LEDGER_MAX_RECORDS", 100000),
		},
		AccessWindow: AccessWindowConfig{
			Open:       getBoolEnv("ACCESS_OPEN", false),
			LaunchTime: getEnv("ACCESS_LAUNCH_TIME", ""),
			Duration:   getDurationEnv("ACCESS_WINDOW_DURATION", 48*time.Hour),
			StatePath:  getEnv("ACCESS_STATE_PATH", "access_window.json"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("LOG_ENVIRONMENT", "development"),
			OutputPaths: getStringSliceEnv("LOG_OUTPUT_PATHS", []string{"stdout"}),
		},
	}
}

// defaultActionLimits returns the fixed-window table for every protected action.
// Each limit is overridable via RATE_LIMIT_<ACTION>_MAX and _WINDOW.
func defaultActionLimits() map[string]ActionLimit {
	defaults := map[string]ActionLimit{
		"generate":               {Window: time.Minute, MaxRequests: 10, KeyBy: "wallet"},
		"tagline":                {Window: time.Minute, MaxRequests: 20, KeyBy: "wallet"},
		"metadata":               {Window: time.Minute, MaxRequests: 30, KeyBy: "wallet"},
		"token-stats":            {Window: time.Minute, MaxRequests: 60, KeyBy: "ip"},
		"extension-launch-write": {Window: time.Minute, MaxRequests: 30, KeyBy: "wallet"},
	}

	for action, limit := range defaults {
		prefix := "RATE_LIMIT_" + envName(action)
		limit.MaxRequests = getIntEnv(prefix+"_MAX", limit.MaxRequests)
		limit.Window = getDurationEnv(prefix+"_WINDOW", limit.Window)
		defaults[action] = limit
	}

	return defaults
}

// envName converts an action name to its environment variable form
func envName(action string) string {
	out := make([]byte, len(action))
	for i := 0; i < len(action); i++ {
		c := action[i]
		switch {
		case c == '-':
			out[i] = '_'
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		default:
			out[i] = c
		}
	}
	return string(out)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uint64Value, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uint64Value
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}
