package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DogukanGun/XReplyAgent/internal/auth"
	"github.com/DogukanGun/XReplyAgent/internal/health"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/ratelimit"
	"github.com/DogukanGun/XReplyAgent/internal/security"
	"github.com/DogukanGun/XReplyAgent/internal/validation"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// ServeStdio runs srv over stdin/stdout until ctx is cancelled or the
// client closes stdin.
func ServeStdio(ctx context.Context, srv *server.MCPServer, logger *slog.Logger) error {
	return serveStdio(ctx, srv, logger, os.Stdin, os.Stdout)
}

func serveStdio(ctx context.Context, srv *server.MCPServer, logger *slog.Logger, in io.Reader, out io.Writer) error {
	logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := server.NewStdioServer(srv).Listen(ctx, in, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// RouterOptions configure the HTTP transport.
type RouterOptions struct {
	Health         *health.Registry
	Limiter        *ratelimit.Limiter
	Keys           *auth.Keys // nil or empty leaves /mcp open
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter mounts srv as a stateless streamable HTTP endpoint next to
// /healthz and /metrics.
func NewRouter(srv *server.MCPServer, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		opts.Logger.Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(security.HeadersMiddleware())
	r.Use(metrics.Middleware())

	stream := server.NewStreamableHTTPServer(srv,
		server.WithEndpointPath(EndpointPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, _ *http.Request) context.Context {
			return logging.WithLogger(ctx, opts.Logger)
		}),
	)

	mcp := r.Group(EndpointPath)
	if len(opts.AllowedOrigins) > 0 {
		mcp.Use(security.CORSMiddleware(opts.AllowedOrigins))
	}
	mcp.Use(auth.RequireKey(opts.Keys))
	mcp.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	if opts.Limiter != nil {
		mcp.Use(opts.Limiter.Middleware())
	}
	mcp.Any("", gin.WrapH(stream))

	if opts.Health != nil {
		r.GET("/healthz", opts.Health.Handler())
	}
	r.GET("/metrics", metrics.Handler())
	return r
}

// ServeHTTP serves handler on addr until ctx is cancelled, then drains
// in-flight calls for up to drain.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler, drain time.Duration, logger *slog.Logger) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server listening on http", "addr", addr, "path", EndpointPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("mcp server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp http server shutdown: %w", err)
	}
	return nil
}
