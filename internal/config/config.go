// Package config loads service configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	// Server
	HTTPPort string
	LogLevel string

	// Chain
	RPCURL          string
	WSURL           string
	TokenAddress    string
	DAOAddress      string
	NFTAddress      string
	SignerKeyHex    string // optional; read-only mode when empty
	ReceiptInterval int    // seconds, fallback poll while awaiting receipts

	// Storage
	PostgresDSN   string // optional; in-memory stores when empty
	ClickhouseDSN string // optional; analytics stream disabled when empty

	// Enrichment
	EnrichAPIKey  string // optional; enrichment disabled when empty
	EnrichBaseURL string
	EnrichModel   string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present.
func Load() *Config {
	// Ignore error: .env is optional outside local development
	_ = godotenv.Load()

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RPCURL:          getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
		WSURL:           getEnv("CHAIN_WS_URL", ""),
		TokenAddress:    getEnv("TOKEN_CONTRACT_ADDRESS", ""),
		DAOAddress:      getEnv("DAO_CONTRACT_ADDRESS", ""),
		NFTAddress:      getEnv("NFT_CONTRACT_ADDRESS", ""),
		SignerKeyHex:    getEnv("SIGNER_PRIVATE_KEY", ""),
		ReceiptInterval: getEnvAsInt("RECEIPT_POLL_INTERVAL", 5),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnv("CLICKHOUSE_DSN", ""),

		EnrichAPIKey:  getEnv("ENRICH_API_KEY", ""),
		EnrichBaseURL: getEnv("ENRICH_BASE_URL", "https://openrouter.ai/api/v1"),
		EnrichModel:   getEnv("ENRICH_MODEL", "openai/gpt-4o-mini"),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}
