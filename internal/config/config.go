package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// OvertimeConfig holds vendor API configuration
type OvertimeConfig struct {
	BaseURL   string
	APIKey    string // server-side proxy key
	QuoteKey  string // public key for quote calls, falls back to APIKey
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Retries   int
}

// StoreConfig selects the market cache backend
type StoreConfig struct {
	Backend       string // memory, redis or postgres
	RedisURL      string
	RedisPassword string
	PostgresDSN   string
}

// MarketsConfig holds loader and refresh settings
type MarketsConfig struct {
	CacheDuration    time.Duration // staleness threshold
	DefaultNetworkID int64
	DeltaTTL         time.Duration
	JitterSeconds    int
}

// WalletConfig holds on-chain settings. All optional.
type WalletConfig struct {
	RPCURL     string
	PrivateKey string
	Referral   string
}

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Overtime OvertimeConfig
	Store    StoreConfig
	Markets  MarketsConfig
	Wallet   WalletConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	apiKey := getEnv("OVERTIME_API_KEY", "")

	return &Config{
		Server: ServerConfig{
			Addr:        getEnv("TYCHE_ADDR", ":8080"),
			CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Overtime: OvertimeConfig{
			BaseURL:   getEnv("OVERTIME_BASE_URL", "https://api.overtime.io/overtime-v2"),
			APIKey:    apiKey,
			QuoteKey:  getEnv("NEXT_PUBLIC_OVERTIME_API_KEY", apiKey),
			Timeout:   getDuration("OVERTIME_TIMEOUT", 10*time.Second),
			RateLimit: getFloat("OVERTIME_RATE_LIMIT", 5),
			Retries:   getInt("OVERTIME_RETRIES", 1),
		},
		Store: StoreConfig{
			Backend:       getEnv("TYCHE_STORE", "memory"),
			RedisURL:      getEnv("REDIS_URL", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			PostgresDSN:   getEnv("TYCHE_DSN", ""),
		},
		Markets: MarketsConfig{
			CacheDuration:    getDuration("MARKETS_CACHE_DURATION", 5*time.Minute),
			DefaultNetworkID: int64(getInt("DEFAULT_NETWORK_ID", 10)),
			DeltaTTL:         getDuration("DELTA_CACHE_TTL", time.Hour),
			JitterSeconds:    getInt("REFRESH_JITTER_SECONDS", 5),
		},
		Wallet: WalletConfig{
			RPCURL:     getEnv("RPC_URL", ""),
			PrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
			Referral:   getEnv("REFERRAL_ADDRESS", ""),
		},
	}
}

// Validate checks option combinations LoadConfig cannot default
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("TYCHE_STORE=redis requires REDIS_URL")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("TYCHE_STORE=postgres requires TYCHE_DSN")
		}
	default:
		return fmt.Errorf("unknown TYCHE_STORE %q (memory, redis or postgres)", c.Store.Backend)
	}

	if c.Markets.CacheDuration < 0 {
		return fmt.Errorf("MARKETS_CACHE_DURATION must not be negative")
	}
	if c.Overtime.RateLimit <= 0 {
		return fmt.Errorf("OVERTIME_RATE_LIMIT must be positive")
	}
	return nil
}

// HasWallet reports whether signing transactions is configured
func (c *Config) HasWallet() bool {
	return c.Wallet.RPCURL != "" && c.Wallet.PrivateKey != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		glog.Warningf("[Config] invalid %s %q, using default %v", key, s, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		glog.Warningf("[Config] invalid %s %q, using default %d", key, s, defaultValue)
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		glog.Warningf("[Config] invalid %s %q, using default %v", key, s, defaultValue)
		return defaultValue
	}
	return f
}

// getList splits a comma-separated variable, dropping empty items
func getList(key string, defaultValue []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}

	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
