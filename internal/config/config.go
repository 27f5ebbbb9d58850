package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Splitwise OAuth + API
	SplitwiseBaseURL      string
	SplitwiseAPIBase      string
	SplitwiseClientID     string
	SplitwiseClientSecret string
	SplitwiseRedirectURI  string

	// Frontend base URL for OAuth callback redirects
	FrontendURL string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		SplitwiseBaseURL:      getEnv("SPLITWISE_BASE_URL", "https://secure.splitwise.com"),
		SplitwiseAPIBase:      getEnv("SPLITWISE_API_BASE", "https://secure.splitwise.com/api/v3.0"),
		SplitwiseClientID:     getEnv("SPLITWISE_CLIENT_ID", ""),
		SplitwiseClientSecret: getEnv("SPLITWISE_CLIENT_SECRET", ""),
		SplitwiseRedirectURI:  getEnv("SPLITWISE_REDIRECT_URI", "http://localhost:8080/api/v1/auth/splitwise/callback"),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
	}

	// Parse JWT expiration duration
	expStr := getEnv("JWT_EXPIRES_IN", "168h")
	expDur, err := time.ParseDuration(expStr)
	if err != nil {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 168h\n", expStr)
		expDur = 168 * time.Hour
	}
	config.JWTExpirationDur = expDur

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// SplitwiseConfigured reports whether the OAuth client credentials are set.
// Connect and refresh flows cannot work without them.
func (c *Config) SplitwiseConfigured() bool {
	return c.SplitwiseClientID != "" && c.SplitwiseClientSecret != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
