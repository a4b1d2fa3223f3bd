// Package profile holds the runtime configuration of the server.
package profile

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration used to start the main server.
// Values come from flags (via viper) and environment variables; FromEnv
// applies the environment on top of whatever the flags set.
type Profile struct {
	// Server
	Mode string // "dev" or "prod"
	Addr string
	Port int

	// Messaging platform
	PlatformSigningSecret string // HMAC secret for inbound webhook verification
	PlatformBotToken      string // auth for outbound posts
	PlatformAPIURL        string // base URL of the platform web API
	PlatformAppID         string // this application's registered id (self-filter)

	// Search index
	IndexEndpoint       string
	IndexAPIKey         string
	IndexName           string
	IndexSemanticConfig string // semantic ranking configuration, optional

	// Embedding service
	EmbedEndpoint   string
	EmbedAPIKey     string
	EmbedDeployment string
	EmbedDimensions int

	// Chat completion service
	CompletionEndpoint    string
	CompletionAPIKey      string
	CompletionDeployment  string
	CompletionAPIVersion  string
	CompletionTemperature float64
	CompletionMaxTokens   int // 0 leaves the limit to the service

	// Conversation tiers. Empty values fall back to in-memory tiers.
	DurableStoreConn string
	DurableDriver    string // "postgres" or "sqlite"; inferred from DSN when empty
	HotCacheConn     string

	// Optional alternate delivery channel
	TelegramBotToken string

	// Request budget
	RequestDeadlineMS int

	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.PlatformSigningSecret = getEnvOrDefault("PLATFORM_SIGNING_SECRET", p.PlatformSigningSecret)
	p.PlatformBotToken = getEnvOrDefault("PLATFORM_BOT_TOKEN", p.PlatformBotToken)
	p.PlatformAPIURL = getEnvOrDefault("PLATFORM_API_URL", "https://slack.com/api")
	p.PlatformAppID = getEnvOrDefault("PLATFORM_APP_ID", p.PlatformAppID)

	p.IndexEndpoint = getEnvOrDefault("INDEX_ENDPOINT", "")
	p.IndexAPIKey = getEnvOrDefault("INDEX_API_KEY", "")
	p.IndexName = getEnvOrDefault("INDEX_NAME", "")
	p.IndexSemanticConfig = getEnvOrDefault("INDEX_SEMANTIC_CONFIG", "")

	p.EmbedEndpoint = getEnvOrDefault("EMBED_ENDPOINT", "")
	p.EmbedAPIKey = getEnvOrDefault("EMBED_API_KEY", "")
	p.EmbedDeployment = getEnvOrDefault("EMBED_DEPLOYMENT", "text-embedding-3-small")
	p.EmbedDimensions = getEnvOrDefaultInt("EMBED_DIMENSIONS", 1536)

	p.CompletionEndpoint = getEnvOrDefault("COMPLETION_ENDPOINT", "")
	p.CompletionAPIKey = getEnvOrDefault("COMPLETION_API_KEY", "")
	p.CompletionDeployment = getEnvOrDefault("COMPLETION_DEPLOYMENT", "gpt-4o")
	p.CompletionAPIVersion = getEnvOrDefault("COMPLETION_API_VERSION", "")
	p.CompletionTemperature = getEnvOrDefaultFloat("COMPLETION_TEMPERATURE", 0.7)
	p.CompletionMaxTokens = getEnvOrDefaultInt("COMPLETION_MAX_TOKENS", 0)

	p.DurableStoreConn = getEnvOrDefault("DURABLE_STORE_CONN", p.DurableStoreConn)
	p.DurableDriver = getEnvOrDefault("DURABLE_STORE_DRIVER", p.DurableDriver)
	p.HotCacheConn = getEnvOrDefault("HOT_CACHE_CONN", p.HotCacheConn)

	p.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", "")

	p.RequestDeadlineMS = getEnvOrDefaultInt("REQUEST_DEADLINE_MS", 25000)
}

// Validate checks that the profile can start a server.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.PlatformSigningSecret == "" {
		return errors.New("PLATFORM_SIGNING_SECRET is required")
	}
	if p.CompletionAPIKey == "" {
		return errors.New("COMPLETION_API_KEY is required")
	}
	if p.RequestDeadlineMS <= 0 {
		p.RequestDeadlineMS = 25000
	}
	if p.DurableDriver == "" && p.DurableStoreConn != "" {
		p.DurableDriver = inferDriver(p.DurableStoreConn)
	}
	return nil
}

// inferDriver guesses the durable driver from the DSN shape.
func inferDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}
