package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "MCP_TRANSPORT", "")
	setEnv(t, "IDENTITY_STORE", "")
	setEnv(t, "MCP_TOOLSETS", "")
	setEnv(t, "BNB_RPC", "")
	setEnv(t, "MCP_RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, DefaultRateLimitPerMinute, cfg.RateLimitPerMinute)
	assert.Equal(t, StoreMemory, cfg.IdentityStore)
	assert.Equal(t, []string{ToolsetWallet, ToolsetSwap, ToolsetAgent, ToolsetFeeds}, cfg.Toolsets)
	assert.Equal(t, DefaultMCPTimeout, cfg.MCPTimeout)
	assert.Equal(t, DefaultCrossTimeout, cfg.CrossTimeout)
	assert.Equal(t, "https://bsc-dataseed.bnbchain.org", cfg.RPCURLs["bsc"])
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "MCP_TRANSPORT", "http")
	setEnv(t, "PORT", "9090")
	setEnv(t, "MCP_TOOLSETS", "wallet, swap")
	setEnv(t, "BNB_RPC", "http://localhost:8545")
	setEnv(t, "SAME_CHAIN_SWAP_TIMEOUT", "45s")
	setEnv(t, "CROSS_CHAIN_SWAP_TIMEOUT", "60000")
	setEnv(t, "MCP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	setEnv(t, "MCP_API_KEYS", "sk_a, sk_b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"wallet", "swap"}, cfg.Toolsets)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURLs["bsc"])
	assert.Equal(t, 45*time.Second, cfg.SameChainTimeout)
	assert.Equal(t, time.Minute, cfg.CrossTimeout)
	assert.False(t, cfg.HasToolset(ToolsetAgent))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"sk_a", "sk_b"}, cfg.APIKeys)
}

func TestLoad_GoldRushToolset(t *testing.T) {
	setEnv(t, "IDENTITY_STORE", "")
	setEnv(t, "MCP_TOOLSETS", "goldrush")
	setEnv(t, "GOLDRUSH_URL", "")
	setEnv(t, "GOLDRUSH_AUTH_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOLDRUSH_AUTH_TOKEN")

	setEnv(t, "GOLDRUSH_AUTH_TOKEN", "cqt_key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultGoldRushURL, cfg.GoldRushURL)
	assert.Equal(t, "cqt_key", cfg.GoldRushAPIKey)
	assert.True(t, cfg.HasToolset(ToolsetGoldRush))
}

func TestLoad_PostgresWithoutURL(t *testing.T) {
	setEnv(t, "IDENTITY_STORE", "postgres")
	setEnv(t, "DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport:     TransportStdio,
			IdentityStore: StoreMemory,
			Toolsets:      []string{ToolsetWallet},
			AggregatorURL: DefaultAggregatorURL,
			AgentURL:      DefaultAgentURL,
			PythURL:       DefaultPythURL,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "bad transport", mutate: func(c *Config) { c.Transport = "sse" }, wantErr: "MCP_TRANSPORT"},
		{name: "unknown store", mutate: func(c *Config) { c.IdentityStore = "redis" }, wantErr: "unknown IDENTITY_STORE"},
		{name: "mongo without uri", mutate: func(c *Config) { c.IdentityStore = StoreMongo }, wantErr: "MONGO_URI"},
		{name: "sqlite without path", mutate: func(c *Config) { c.IdentityStore = StoreSQLite }, wantErr: "SQLITE_PATH"},
		{name: "no toolsets", mutate: func(c *Config) { c.Toolsets = nil }, wantErr: "at least one toolset"},
		{name: "unknown toolset", mutate: func(c *Config) { c.Toolsets = []string{"storage"} }, wantErr: "unknown toolset"},
		{
			name: "swap without aggregator",
			mutate: func(c *Config) {
				c.Toolsets = []string{ToolsetSwap}
				c.AggregatorURL = ""
			},
			wantErr: "AGGREGATOR_URL",
		},
		{
			name: "agent without url",
			mutate: func(c *Config) {
				c.Toolsets = []string{ToolsetAgent}
				c.AgentURL = ""
			},
			wantErr: "AGENT_MCP_URL",
		},
		{
			name: "goldrush without token",
			mutate: func(c *Config) {
				c.Toolsets = []string{ToolsetGoldRush}
				c.GoldRushURL = DefaultGoldRushURL
			},
			wantErr: "GOLDRUSH_AUTH_TOKEN",
		},
		{
			name: "goldrush configured",
			mutate: func(c *Config) {
				c.Toolsets = []string{ToolsetWallet, ToolsetGoldRush}
				c.GoldRushURL = DefaultGoldRushURL
				c.GoldRushAPIKey = "cqt_key"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	setEnv(t, "TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
