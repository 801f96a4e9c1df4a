// Package mcp exposes read and reporting tools over the Model Context Protocol
// so agents can inspect wallets, escrows and ban state from their own runtime.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/ledger"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/domain/wallet"
	"github.com/Strob0t/agentledger/internal/logger"
)

// WalletReader loads agent wallets.
type WalletReader interface {
	Get(ctx context.Context, agent string) (*wallet.AgentWallet, error)
}

// EscrowReader loads task escrows.
type EscrowReader interface {
	Get(ctx context.Context, key escrow.Key) (*escrow.TaskEscrow, error)
}

// TrustRegistry checks and records strikes against humans.
type TrustRegistry interface {
	CheckBan(ctx context.Context, human string) error
	Flag(ctx context.Context, reporter, human string, req *trust.FlagRequest) (*trust.HumanRecord, error)
}

// StatsReader computes ledger-wide statistics.
type StatsReader interface {
	Stats(ctx context.Context) (*ledger.Stats, error)
}

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// ServerDeps are the ledger services backing the tools. Nil dependencies make
// their tools report an error instead of failing registration.
type ServerDeps struct {
	Wallets WalletReader
	Escrows EscrowReader
	Trust   TrustRegistry
	Stats   StatsReader
}

// Server serves ledger tools over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer builds the MCP server and registers tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the HTTP handler for the MCP endpoint. The X-Caller-ID
// header becomes the caller identity of tool invocations.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if caller := r.Header.Get("X-Caller-ID"); caller != "" {
				ctx = logger.WithCaller(ctx, caller)
			}
			return ctx
		}),
	)
	return AuthMiddleware(s.cfg.APIKey, streamable)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	slog.Info("mcp server stopping")
	return s.httpSrv.Shutdown(ctx)
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// toolError reports a domain failure with its error kind so agents can react
// to it without parsing messages.
func toolError(op string, err error) *mcplib.CallToolResult {
	return mcplib.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, domain.Kind(err), err))
}
