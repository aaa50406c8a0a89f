// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transport names accepted by MCP_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Toolset names accepted by MCP_TOOLSETS.
const (
	ToolsetWallet   = "wallet"
	ToolsetSwap     = "swap"
	ToolsetAgent    = "agent"
	ToolsetFeeds    = "feeds"
	ToolsetGoldRush = "goldrush"
)

// Identity store drivers accepted by IDENTITY_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Transport string // "stdio" or "http"
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string
	Toolsets  []string

	// HTTP transport
	APIKeys            []string
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int

	// Identity store
	IdentityStore string // "memory", "postgres", "sqlite", "mongo"
	DatabaseURL   string // PostgreSQL connection string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	MongoColl     string

	// Chain RPC endpoints keyed by chain slug
	RPCURLs map[string]string

	// Swap/bridge aggregator
	AggregatorURL    string
	AggregatorAPIKey string

	// Remote AI agent (MCP over streamable HTTP)
	AgentURL  string
	AgentTool string

	// Price feeds
	PythURL string

	// GoldRush wallet data API
	GoldRushURL    string
	GoldRushAPIKey string

	// Tracing
	OTLPEndpoint string

	// Timeouts for long-running chain operations
	MCPTimeout       time.Duration
	TxTimeout        time.Duration
	SameChainTimeout time.Duration
	CrossTimeout     time.Duration
}

const (
	DefaultTransport     = TransportStdio
	DefaultPort          = "8085"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultIdentityStore = StoreMemory
	DefaultSQLitePath    = "identities.db"
	DefaultAggregatorURL = "https://ag.kanalabs.io"
	DefaultAgentURL      = "https://mcp.inkeep.com/bnbchainorg/mcp"
	DefaultMongoURI      = "mongodb://localhost:27017"
	DefaultMongoDatabase = "User"
	DefaultMongoColl     = "Wallet"
	DefaultPythURL       = "https://hermes.pyth.network"
	DefaultGoldRushURL   = "https://api.covalenthq.com/v1"

	DefaultRateLimitPerMinute = 120
	DefaultRateLimitBurst     = 20

	DefaultMCPTimeout       = 300 * time.Second
	DefaultTxTimeout        = 180 * time.Second
	DefaultSameChainTimeout = 120 * time.Second
	DefaultCrossTimeout     = 300 * time.Second
)

// rpcEnv maps chain slugs to the environment variable holding their RPC endpoint
// and the public endpoint used when the variable is unset.
var rpcEnv = map[string][2]string{
	"ethereum":      {"ETH_MAINNET_RPC", "https://ethereum-rpc.publicnode.com"},
	"polygon":       {"ETH_POLYGON_RPC", "https://polygon-rpc.com"},
	"bsc":           {"BNB_RPC", "https://bsc-dataseed.bnbchain.org"},
	"arbitrum":      {"ETH_ARBITRUM_RPC", "https://arb1.arbitrum.io/rpc"},
	"avalanche":     {"ETH_AVALANCHE_RPC", "https://api.avax.network/ext/bc/C/rpc"},
	"base":          {"ETH_BASE_RPC", "https://mainnet.base.org"},
	"opbnb":         {"BNB_OP_MAINNET", "https://opbnb-mainnet-rpc.bnbchain.org"},
	"opbnb-testnet": {"BNB_OP_TESTNET", "https://opbnb-testnet-rpc.bnbchain.org"},
	"solana":        {"SOLANA_RPC", "https://api.mainnet-beta.solana.com"},
	"aptos":         {"APTOS_RPC", "https://fullnode.mainnet.aptoslabs.com/v1"},
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Transport:        getEnv("MCP_TRANSPORT", DefaultTransport),
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		Toolsets:         getEnvList("MCP_TOOLSETS", []string{ToolsetWallet, ToolsetSwap, ToolsetAgent, ToolsetFeeds}),
		APIKeys:          getEnvList("MCP_API_KEYS", nil),
		AllowedOrigins:   getEnvList("MCP_ALLOWED_ORIGINS", nil),
		IdentityStore:    getEnv("IDENTITY_STORE", DefaultIdentityStore),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", DefaultSQLitePath),
		MongoURI:         getEnv("MONGO_URI", DefaultMongoURI),
		MongoDatabase:    getEnv("MONGO_DATABASE", DefaultMongoDatabase),
		MongoColl:        getEnv("MONGO_COLLECTION", DefaultMongoColl),
		RPCURLs:          make(map[string]string, len(rpcEnv)),
		AggregatorURL:    getEnv("AGGREGATOR_URL", DefaultAggregatorURL),
		AggregatorAPIKey: os.Getenv("KANA_API_KEY"),
		AgentURL:         getEnv("AGENT_MCP_URL", DefaultAgentURL),
		AgentTool:        os.Getenv("AGENT_MCP_TOOL"),
		PythURL:          getEnv("PYTH_URL", DefaultPythURL),
		GoldRushURL:      getEnv("GOLDRUSH_URL", DefaultGoldRushURL),
		GoldRushAPIKey:   os.Getenv("GOLDRUSH_AUTH_TOKEN"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MCPTimeout:       getEnvDuration("MCP_REQUEST_TIMEOUT", DefaultMCPTimeout),
		TxTimeout:        getEnvDuration("BLOCKCHAIN_TX_TIMEOUT", DefaultTxTimeout),
		SameChainTimeout: getEnvDuration("SAME_CHAIN_SWAP_TIMEOUT", DefaultSameChainTimeout),
		CrossTimeout:     getEnvDuration("CROSS_CHAIN_SWAP_TIMEOUT", DefaultCrossTimeout),
	}
	cfg.RateLimitPerMinute = int(getEnvInt64("MCP_RATE_LIMIT_PER_MINUTE", DefaultRateLimitPerMinute))
	cfg.RateLimitBurst = int(getEnvInt64("MCP_RATE_LIMIT_BURST", DefaultRateLimitBurst))
	for slug, v := range rpcEnv {
		cfg.RPCURLs[slug] = getEnv(v[0], v[1])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}

	switch c.IdentityStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when IDENTITY_STORE=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when IDENTITY_STORE=sqlite")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when IDENTITY_STORE=mongo")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_STORE %q", c.IdentityStore)
	}

	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("MCP_RATE_LIMIT_PER_MINUTE and MCP_RATE_LIMIT_BURST must not be negative")
	}

	if len(c.Toolsets) == 0 {
		return fmt.Errorf("MCP_TOOLSETS must name at least one toolset")
	}
	for _, ts := range c.Toolsets {
		switch ts {
		case ToolsetWallet, ToolsetSwap, ToolsetAgent, ToolsetFeeds, ToolsetGoldRush:
		default:
			return fmt.Errorf("unknown toolset %q in MCP_TOOLSETS", ts)
		}
	}

	if c.HasToolset(ToolsetSwap) && c.AggregatorURL == "" {
		return fmt.Errorf("AGGREGATOR_URL is required for the swap toolset")
	}
	if c.HasToolset(ToolsetAgent) && c.AgentURL == "" {
		return fmt.Errorf("AGENT_MCP_URL is required for the agent toolset")
	}
	if c.HasToolset(ToolsetFeeds) && c.PythURL == "" {
		return fmt.Errorf("PYTH_URL is required for the feeds toolset")
	}
	if c.HasToolset(ToolsetGoldRush) {
		if c.GoldRushURL == "" {
			return fmt.Errorf("GOLDRUSH_URL is required for the goldrush toolset")
		}
		if c.GoldRushAPIKey == "" {
			return fmt.Errorf("GOLDRUSH_AUTH_TOKEN is required for the goldrush toolset")
		}
	}

	return nil
}

// HasToolset reports whether the named toolset is enabled.
func (c *Config) HasToolset(name string) bool {
	for _, ts := range c.Toolsets {
		if ts == name {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or plain milliseconds ("90000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt64(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
