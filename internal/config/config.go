// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the Zapta core server.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Providers ProviderConfig
	Knowledge KnowledgeConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// ProviderConfig carries the model and embedding provider API keys. A
// provider with an empty key is simply not registered.
type ProviderConfig struct {
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

type KnowledgeConfig struct {
	MaxChunkSize int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ZAPTA_PORT", 8080),
		Version: envStr("ZAPTA_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Providers: ProviderConfig{
			GeminiAPIKey:    envStr("GEMINI_API_KEY", ""),
			OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
			AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		},
		Knowledge: KnowledgeConfig{
			MaxChunkSize: envInt("ZAPTA_MAX_CHUNK_SIZE", 1000),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "zapta-core"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
