package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DogukanGun/XReplyAgent/internal/config"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Transport:          config.TransportHTTP,
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		LogFormat:          "text",
		Toolsets:           []string{config.ToolsetWallet, config.ToolsetFeeds},
		IdentityStore:      config.StoreMemory,
		RPCURLs:            map[string]string{},
		PythURL:            "http://127.0.0.1:1",
		RateLimitPerMinute: 60,
		RateLimitBurst:     5,
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, WithLogger(quiet()), WithStore(identity.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.1"}}}`

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMCPEndpoint_Initialize(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := post(t, s.Router(), initializeBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"serverInfo"`)
	assert.Contains(t, w.Body.String(), "xreply-mcp")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNew_GoldRushToolset(t *testing.T) {
	cfg := testConfig()
	s := newTestServer(t, cfg)
	assert.Nil(t, s.mcp.GetTool("get_multichain_balances"), "goldrush is opt-in")

	cfg = testConfig()
	cfg.Toolsets = append(cfg.Toolsets, config.ToolsetGoldRush)
	cfg.GoldRushURL = "http://127.0.0.1:1"
	cfg.GoldRushAPIKey = "cqt_test"
	s = newTestServer(t, cfg)
	assert.NotNil(t, s.mcp.GetTool("get_multichain_balances"))
	assert.NotNil(t, s.mcp.GetTool("get_bitcoin_balances_for_hd_address"))
	assert.NotNil(t, s.mcp.GetTool("read_wallet"))
}

func TestMCPEndpoint_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitBurst = 1
	s := newTestServer(t, cfg)

	first := post(t, s.Router(), initializeBody)
	require.Equal(t, http.StatusOK, first.Code)

	second := post(t, s.Router(), initializeBody)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate limit exceeded")
}

func TestMCPEndpoint_RateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 0
	s := newTestServer(t, cfg)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, post(t, s.Router(), initializeBody).Code)
	}
}

func TestMCPEndpoint_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://x.example"}
	s := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	req.Header.Set("Origin", "https://x.example")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://x.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMCPEndpoint_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKeys = []string{"sk_test"}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, post(t, s.Router(), initializeBody).Code)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer sk_test")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays public for probes.
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.IdentityStore = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ids.db")

	s, err := New(cfg, WithLogger(quiet()))
	require.NoError(t, err)
	require.NotNil(t, s.db)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sqlite")

	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, s.closers)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "0"
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:%2A%2A%2A@db:5432/ids", maskDSN("postgres://app:secret@db:5432/ids"))
	assert.Equal(t, "mongodb://localhost:27017", maskDSN("mongodb://localhost:27017"))
}
