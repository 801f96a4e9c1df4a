package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/escrow"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/logger"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getWalletTool(),
		s.getEscrowTool(),
		s.checkHumanBanTool(),
		s.flagHumanTool(),
		s.ledgerStatsTool(),
	)
}

func (s *Server) getWalletTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_wallet",
		mcplib.WithDescription("Get an agent wallet: balance, lifetime totals and tier"),
		mcplib.WithString("agent",
			mcplib.Required(),
			mcplib.Description("The agent identity"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetWallet}
}

func (s *Server) getEscrowTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_escrow",
		mcplib.WithDescription("Get a task escrow by poster and task ID"),
		mcplib.WithString("poster", mcplib.Required(), mcplib.Description("The identity that posted the task")),
		mcplib.WithString("task_id", mcplib.Required(), mcplib.Description("The task identifier")),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetEscrow}
}

func (s *Server) checkHumanBanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("check_human_ban",
		mcplib.WithDescription("Check whether a human controller is banned before transacting with their agents"),
		mcplib.WithString("human", mcplib.Required(), mcplib.Description("The human identity")),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCheckHumanBan}
}

func (s *Server) flagHumanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("flag_human",
		mcplib.WithDescription("Record a strike against a human controller; three strikes ban"),
		mcplib.WithString("human", mcplib.Required(), mcplib.Description("The human identity to report")),
		mcplib.WithString("reason", mcplib.Required(), mcplib.Description("Why the human is reported (max 200 bytes)")),
		mcplib.WithString("reporter", mcplib.Description("Reporting agent; defaults to the X-Caller-ID of the session")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFlagHuman}
}

func (s *Server) ledgerStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("ledger_stats",
		mcplib.WithDescription("Get ledger-wide totals: escrowed value, wallets by tier, agreements, bans"),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleLedgerStats}
}

func marshalResult(op string, v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+op, err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetWallet(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Wallets == nil {
		return mcplib.NewToolResultError("wallet reader not configured"), nil
	}
	agent, err := req.RequireString("agent")
	if err != nil || agent == "" {
		return mcplib.NewToolResultError("agent is required"), nil
	}
	w, err := s.deps.Wallets.Get(ctx, agent)
	if err != nil {
		return toolError("get_wallet", err), nil
	}
	return marshalResult("wallet", w)
}

func (s *Server) handleGetEscrow(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Escrows == nil {
		return mcplib.NewToolResultError("escrow reader not configured"), nil
	}
	poster := req.GetString("poster", "")
	taskID := req.GetString("task_id", "")
	if poster == "" || taskID == "" {
		return mcplib.NewToolResultError("poster and task_id are required"), nil
	}
	e, err := s.deps.Escrows.Get(ctx, escrow.Key{Poster: poster, TaskID: taskID})
	if err != nil {
		return toolError("get_escrow", err), nil
	}
	return marshalResult("escrow", e)
}

type banStatus struct {
	Human  string `json:"human"`
	Banned bool   `json:"banned"`
}

func (s *Server) handleCheckHumanBan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Trust == nil {
		return mcplib.NewToolResultError("trust registry not configured"), nil
	}
	human := req.GetString("human", "")
	if human == "" {
		return mcplib.NewToolResultError("human is required"), nil
	}
	err := s.deps.Trust.CheckBan(ctx, human)
	switch {
	case err == nil:
		return marshalResult("ban status", banStatus{Human: human})
	case errors.Is(err, domain.ErrBanned):
		return marshalResult("ban status", banStatus{Human: human, Banned: true})
	default:
		return toolError("check_human_ban", err), nil
	}
}

func (s *Server) handleFlagHuman(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Trust == nil {
		return mcplib.NewToolResultError("trust registry not configured"), nil
	}
	human := req.GetString("human", "")
	if human == "" {
		return mcplib.NewToolResultError("human is required"), nil
	}
	reporter := req.GetString("reporter", logger.Caller(ctx))
	if reporter == "" {
		return mcplib.NewToolResultError("reporter is required when no caller identity is set"), nil
	}
	r, err := s.deps.Trust.Flag(logger.WithCaller(ctx, reporter), reporter, human, &trust.FlagRequest{Reason: req.GetString("reason", "")})
	if err != nil {
		return toolError("flag_human", err), nil
	}
	return marshalResult("human record", r)
}

func (s *Server) handleLedgerStats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}
	st, err := s.deps.Stats.Stats(ctx)
	if err != nil {
		return toolError("ledger_stats", err), nil
	}
	return marshalResult("stats", st)
}
