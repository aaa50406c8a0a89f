package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DogukanGun/XReplyAgent/internal/envelope"
	"github.com/DogukanGun/XReplyAgent/internal/idgen"
	"github.com/DogukanGun/XReplyAgent/internal/logging"
	"github.com/DogukanGun/XReplyAgent/internal/metrics"
	"github.com/DogukanGun/XReplyAgent/internal/traces"
	"github.com/DogukanGun/XReplyAgent/internal/validation"
)

// bind adapts a typed handler to the MCP handler signature. Arguments are
// decoded into P and validated once; the result or error is rendered as
// an envelope. Domain failures never become protocol errors.
func bind[P, R any](fn func(context.Context, P) (R, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params P
		if err := req.BindArguments(&params); err != nil {
			return envelope.Fail(fmt.Errorf("invalid arguments: %w", err), nil), nil
		}
		if err := validation.Struct(params); err != nil {
			return envelope.Fail(err, nil), nil
		}
		return envelope.Result(fn(ctx, params)), nil
	}
}

// instrument tags the invocation with an id, bounds it with the
// configured timeout and records metrics and a span for it.
func (h *Handlers) instrument(tool string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		id := idgen.Invocation()
		ctx = logging.WithInvocationID(ctx, id)
		ctx = logging.WithLogger(ctx, h.deps.Logger.With("tool", tool))

		if h.deps.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.deps.Timeout)
			defer cancel()
		}

		ctx, span := traces.StartSpan(ctx, "tool."+tool, traces.Tool(tool), traces.InvocationID(id))
		metrics.InFlightToolCalls.Inc()
		start := time.Now()

		defer func() {
			metrics.InFlightToolCalls.Dec()
			elapsed := time.Since(start)
			outcome := "ok"
			var spanErr error
			switch {
			case err != nil:
				outcome, spanErr = "error", err
			case res != nil && res.IsError:
				outcome, spanErr = "error", fmt.Errorf("%s failed", tool)
			}
			metrics.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
			metrics.ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
			traces.End(span, spanErr)
			logging.L(ctx).Debug("tool finished", "outcome", outcome, "duration_ms", elapsed.Milliseconds())
		}()

		return next(ctx, req)
	}
}
