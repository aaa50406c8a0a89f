// Package server assembles the MCP tool server from configuration: the
// identity store, chain and vendor clients, the tool surface and its
// transport.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/DogukanGun/XReplyAgent/internal/agent"
	"github.com/DogukanGun/XReplyAgent/internal/auth"
	"github.com/DogukanGun/XReplyAgent/internal/aggregator"
	"github.com/DogukanGun/XReplyAgent/internal/circuitbreaker"
	"github.com/DogukanGun/XReplyAgent/internal/config"
	"github.com/DogukanGun/XReplyAgent/internal/credentials"
	"github.com/DogukanGun/XReplyAgent/internal/evm"
	"github.com/DogukanGun/XReplyAgent/internal/feeds"
	"github.com/DogukanGun/XReplyAgent/internal/goldrush"
	"github.com/DogukanGun/XReplyAgent/internal/health"
	"github.com/DogukanGun/XReplyAgent/internal/identity"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/mcpserver"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/ratelimit"
	"github.com/DogukanGun/XReplyAgent/internal/signer"
	"github.com/DogukanGun/XReplyAgent/internal/swap"
	"github.com/DogukanGun/XReplyAgent/migrations"
)

const (
	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second
	drainTimeout     = 30 * time.Second
	dbStatsInterval  = 15 * time.Second
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server owns the MCP server and everything it holds open.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   identity.Store
	db      *sql.DB // nil unless the store is SQL backed
	mcp     *mcpsrv.MCPServer
	router  *gin.Engine
	health  *health.Registry
	limiter *ratelimit.Limiter
	closers []func(context.Context) error
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore injects an identity store in place of the configured one
// (for testing).
func WithStore(store identity.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		health: health.NewRegistry(5 * time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if s.store == nil {
		if err := s.openStore(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	}

	breaker := circuitbreaker.New(breakerThreshold, breakerOpenFor)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("rpc circuit changed state", "chain", key, "from", from.String(), "to", to.String())
	})
	dialer := evm.NewDialer(cfg.RPCURLs, breaker)

	deps := mcpserver.Deps{
		Resolver:    credentials.NewResolver(s.store, s.logger),
		Provisioner: identity.NewProvisioner(s.store, s.logger),
		Wallets:     dialer,
		Confirm:     cfg.TxTimeout,
		Timeout:     cfg.MCPTimeout,
		Logger:      s.logger,
	}

	if cfg.HasToolset(config.ToolsetSwap) {
		agg := aggregator.New(aggregator.Config{BaseURL: cfg.AggregatorURL, APIKey: cfg.AggregatorAPIKey})
		if cfg.AggregatorAPIKey == "" {
			s.logger.Warn("KANA_API_KEY is not set, aggregator calls will be rejected")
		}
		signers := &signer.Factory{Wallets: dialer, Relay: agg, Confirm: cfg.TxTimeout}
		deps.Swaps = swap.NewService(agg, signers, swap.Timeouts{
			SameChain:  cfg.SameChainTimeout,
			CrossChain: cfg.CrossTimeout,
			Redeem:     cfg.CrossTimeout,
		}, s.logger)
	}

	if cfg.HasToolset(config.ToolsetAgent) {
		proxy := agent.New(cfg.AgentURL, cfg.AgentTool, s.logger)
		deps.Agent = proxy
		s.closers = append(s.closers, func(context.Context) error { return proxy.Close() })
	}

	if cfg.HasToolset(config.ToolsetFeeds) {
		deps.Pyth = feeds.NewPyth(cfg.PythURL)
		deps.Chainlink = feeds.NewChainlink(dialer)
	}

	if cfg.HasToolset(config.ToolsetGoldRush) {
		deps.GoldRush = goldrush.New(goldrush.Config{BaseURL: cfg.GoldRushURL, APIKey: cfg.GoldRushAPIKey})
	}

	s.mcp = mcpserver.NewMCPServer(deps, cfg.Toolsets...)
	s.logger.Info("mcp tools registered", "toolsets", cfg.Toolsets, "transport", cfg.Transport)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.New(ratelimit.Config{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
			IdleAfter: ratelimit.DefaultConfig().IdleAfter,
		})
	}
	keys := auth.NewKeys(cfg.APIKeys...)
	if cfg.Transport == config.TransportHTTP && !keys.Enabled() {
		s.logger.Warn("MCP_API_KEYS is empty, the HTTP endpoint accepts unauthenticated calls")
	}
	s.router = mcpserver.NewRouter(s.mcp, mcpserver.RouterOptions{
		Health:         s.health,
		Limiter:        s.limiter,
		Keys:           keys,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         s.logger,
	})

	return s, nil
}

func (s *Server) openStore(ctx context.Context) error {
	switch s.cfg.IdentityStore {
	case config.StorePostgres:
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			return fmt.Errorf("failed to migrate identity store: %w", err)
		}
		s.db = db
		s.store = identity.NewPostgresStore(db)
		s.health.RegisterPing("postgres", db.PingContext)
		s.logger.Info("using PostgreSQL identity store", "url", maskDSN(s.cfg.DatabaseURL))

	case config.StoreSQLite:
		st, err := identity.OpenSQLite(s.cfg.SQLitePath)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(context.Context) error { return st.Close() })
		s.db = st.DB()
		s.store = st
		s.health.RegisterPing("sqlite", st.DB().PingContext)
		s.logger.Info("using SQLite identity store", "path", s.cfg.SQLitePath)

	case config.StoreMongo:
		st, err := identity.OpenMongo(ctx, s.cfg.MongoURI, s.cfg.MongoDatabase, s.cfg.MongoColl)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, st.Close)
		s.store = st
		s.health.RegisterPing("mongo", st.Ping)
		s.logger.Info("using MongoDB identity store",
			"url", maskDSN(s.cfg.MongoURI),
			"database", s.cfg.MongoDatabase,
			"collection", s.cfg.MongoColl,
		)

	default:
		s.store = identity.NewMemoryStore()
		s.logger.Warn("using in-memory identity store (wallets will not persist)")
	}
	return nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run serves the configured transport until ctx is cancelled or stdin
// closes, then releases everything the server holds.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, dbStatsInterval)
	}

	var err error
	switch s.cfg.Transport {
	case config.TransportHTTP:
		if s.limiter != nil {
			go s.limiter.Run(runCtx)
		}
		err = mcpserver.ServeHTTP(runCtx, ":"+s.cfg.Port, s.router, drainTimeout, s.logger)
	default:
		err = mcpserver.ServeStdio(runCtx, s.mcp, s.logger)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	return errors.Join(err, s.Close(closeCtx))
}

// Close releases stores and sessions in reverse order of acquisition.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// MCP returns the tool server, e.g. for an in-process client.
func (s *Server) MCP() *mcpsrv.MCPServer {
	return s.mcp
}
