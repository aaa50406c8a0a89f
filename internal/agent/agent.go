// Package agent forwards questions to a remote AI agent exposed as an MCP
// server and returns its final text answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var (
	ErrEmptyQuestion = errors.New("agent: question is required")
	ErrNoAnswer      = errors.New("agent: no text in answer")
	ErrNoTools       = errors.New("agent: remote server exposes no tools")
)

// Proxy holds one lazily established client session. A failed connect is
// retried on the next call.
type Proxy struct {
	connect func(ctx context.Context) (*client.Client, error)
	tool    string
	logger  *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

// New returns a proxy to the streamable HTTP MCP endpoint at url. An empty
// tool selects the first tool the server lists.
func New(url, tool string, logger *slog.Logger) *Proxy {
	return &Proxy{
		connect: func(ctx context.Context) (*client.Client, error) {
			c, err := client.NewStreamableHttpClient(url)
			if err != nil {
				return nil, fmt.Errorf("create agent client: %w", err)
			}
			return c, nil
		},
		tool:   tool,
		logger: logger,
	}
}

// NewInProcess returns a proxy to an MCP server in the same process.
func NewInProcess(srv *server.MCPServer, tool string, logger *slog.Logger) *Proxy {
	return &Proxy{
		connect: func(context.Context) (*client.Client, error) {
			return client.NewInProcessClient(srv)
		},
		tool:   tool,
		logger: logger,
	}
}

func (p *Proxy) session(ctx context.Context) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	c, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start agent client: %w", err)
	}
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "xreply-agent-proxy", Version: "1.0.0"}
	info, err := c.Initialize(ctx, init)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize agent session: %w", err)
	}
	p.logger.Info("agent session established", "server", info.ServerInfo.Name)
	p.client = c
	return c, nil
}

// reset drops a session after a transport failure.
func (p *Proxy) reset(c *client.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == c {
		_ = c.Close()
		p.client = nil
	}
}

// Tools lists the remote tool names.
func (p *Proxy) Tools(ctx context.Context) ([]string, error) {
	c, err := p.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		p.reset(c)
		return nil, fmt.Errorf("list agent tools: %w", err)
	}
	names := make([]string, len(res.Tools))
	for i, t := range res.Tools {
		names[i] = t.Name
	}
	return names, nil
}

// Ask sends question to the agent tool and returns the answer text.
func (p *Proxy) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	tool := p.tool
	if tool == "" {
		names, err := p.Tools(ctx)
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "", ErrNoTools
		}
		tool = names[0]
	}

	c, err := p.session(ctx)
	if err != nil {
		return "", err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = map[string]any{"question": question}

	res, err := c.CallTool(ctx, req)
	if err != nil {
		p.reset(c)
		return "", fmt.Errorf("call agent tool %s: %w", tool, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("agent tool %s failed: %s", tool, strings.Join(parts, "; "))
	}
	if len(parts) == 0 {
		return "", ErrNoAnswer
	}
	return strings.Join(parts, "\n"), nil
}

// Close ends the session, if any.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
