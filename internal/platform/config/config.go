package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names for the swappable stores.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string
	// AdminToken enables the operator endpoints when set. It may hold the
	// token itself or its bcrypt hash.
	AdminToken string
	// TrustProxy honours X-Forwarded-For when resolving client addresses.
	TrustProxy bool

	Assist   AssistConfig
	Render   RenderConfig
	Store    StoreConfig
	Usage    UsageConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Audit    AuditConfig
	Chat     ChatConfig

	// FilenameKeyDigest appends a digest of the raw agreement key to cached
	// filenames so institutions whose names sanitize identically never collide.
	FilenameKeyDigest bool
}

// AssistConfig points at the upstream articulation provider.
type AssistConfig struct {
	BaseURL   string
	SiteURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// RenderConfig bounds the headless browser.
type RenderConfig struct {
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	// Timeout bounds a whole render when positive.
	Timeout     time.Duration
	SettleDelay time.Duration
	ChromePath  string
	Concurrency int
	// Consecutive outages that pause renders, and for how long.
	CircuitThreshold int
	CircuitCooldown  time.Duration
}

// StoreConfig selects the content store.
type StoreConfig struct {
	Backend     string
	DatabaseURL string
	CacheSize   int
	CacheTTL    time.Duration
}

// UsageConfig selects the usage ledger backend and tier quotas.
type UsageConfig struct {
	Backend      string
	FreeLimit    int
	PremiumLimit int
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IdentityConfig selects how bearer tokens are verified.
type IdentityConfig struct {
	GoogleClientID string
	DevJWTSecret   string
}

// AuditConfig enables the Kafka audit stream when brokers are set and the
// audit_events table when Store is "postgres". Both may be on.
type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	// KafkaPartitions > 0 creates the topic at startup when it is missing.
	KafkaPartitions int
	Store           string
	BufferSize      int
}

// ChatConfig configures the external chat model.
type ChatConfig struct {
	OpenAIAPIKey string
	// BaseURL points at an OpenAI-compatible endpoint; empty means api.openai.com.
	BaseURL string
	Model   string
}

// FromEnv loads an optional .env file and builds a Server config from the
// environment so main stays lean.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		AdminToken: os.Getenv("ADMIN_API_TOKEN"),
		TrustProxy: os.Getenv("TRUST_PROXY") == "true",
		Assist: AssistConfig{
			BaseURL:   getEnv("ASSIST_BASE_URL", "https://assist.org/api/"),
			SiteURL:   getEnv("ASSIST_SITE_URL", "https://assist.org"),
			Timeout:   getDuration("ASSIST_TIMEOUT", 15*time.Second),
			RateLimit: getFloat("ASSIST_RPS", 5),
			Burst:     getInt("ASSIST_BURST", 5),
		},
		Render: RenderConfig{
			NavigationTimeout: getDuration("RENDER_NAV_TIMEOUT", 60*time.Second),
			SelectorTimeout:   getDuration("RENDER_SELECTOR_TIMEOUT", 30*time.Second),
			Timeout:           getDuration("RENDER_TIMEOUT", 0),
			SettleDelay:       getDuration("RENDER_SETTLE_DELAY", 2*time.Second),
			ChromePath:        os.Getenv("CHROME_PATH"),
			Concurrency:       getInt("RENDER_CONCURRENCY", 3),
			CircuitThreshold:  getInt("RENDER_CIRCUIT_THRESHOLD", 5),
			CircuitCooldown:   getDuration("RENDER_CIRCUIT_COOLDOWN", 30*time.Second),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", BackendPostgres),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			CacheSize:   getInt("BLOB_CACHE_SIZE", 256),
			CacheTTL:    getDuration("BLOB_CACHE_TTL", 10*time.Minute),
		},
		Usage: UsageConfig{
			Backend:      getEnv("USAGE_BACKEND", BackendPostgres),
			FreeLimit:    getInt("FREE_TIER_LIMIT", 10),
			PremiumLimit: getInt("PREMIUM_TIER_LIMIT", 100),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Identity: IdentityConfig{
			GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
			DevJWTSecret:   os.Getenv("DEV_JWT_SECRET"),
		},
		Audit: AuditConfig{
			KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:      getEnv("KAFKA_AUDIT_TOPIC", "transferai.audit"),
			KafkaPartitions: getInt("KAFKA_AUDIT_PARTITIONS", 0),
			Store:           os.Getenv("AUDIT_STORE"),
			BufferSize:      getInt("AUDIT_BUFFER_SIZE", 1024),
		},
		Chat: ChatConfig{
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			BaseURL:      os.Getenv("OPENAI_API_BASE"),
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		FilenameKeyDigest: os.Getenv("FILENAME_KEY_DIGEST") == "true",
	}
}

// Validate reports configuration that must stop the server from starting.
func (s Server) Validate() error {
	if s.Identity.GoogleClientID == "" && s.Identity.DevJWTSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID (or DEV_JWT_SECRET for local development) is required")
	}
	switch s.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", s.Store.Backend)
	}
	switch s.Usage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when USAGE_BACKEND=postgres")
		}
	case BackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when USAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown USAGE_BACKEND %q", s.Usage.Backend)
	}
	switch s.Audit.Store {
	case "":
	case BackendPostgres:
		if s.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when AUDIT_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown AUDIT_STORE %q", s.Audit.Store)
	}
	if s.Usage.FreeLimit < 0 || s.Usage.PremiumLimit < 0 {
		return fmt.Errorf("tier limits cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
