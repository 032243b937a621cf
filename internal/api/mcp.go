package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/intakehq/intake/internal/conversation"
	"github.com/intakehq/intake/internal/session"
	"github.com/intakehq/intake/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine *conversation.Engine
	Leads  *storage.Store
}

// NewMCPServer creates an MCP server exposing the conversation flow and lead
// store as tools, so agents can drive an intake conversation directly.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"intake",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("intake — scripted lead-collection conversations and the leads they capture."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("start_conversation",
			mcp.WithDescription("Start a new lead-collection conversation and return the session id and first question."),
		),
		mcpStartConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send the user's answer to an active conversation and return the next question."),
			mcp.WithString("session_id", mcp.Description("Conversation session id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user's answer to the current question"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("list_leads",
			mcp.WithDescription("List captured leads in the order they were collected."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of leads to return (default all)")),
		),
		mcpListLeads(deps),
	)

	s.AddTool(
		mcp.NewTool("get_lead",
			mcp.WithDescription("Fetch a single captured lead by id."),
			mcp.WithString("lead_id", mcp.Description("Lead id"), mcp.Required()),
		),
		mcpGetLead(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"intake://leads/recent",
			"Recent Leads",
			mcp.WithResourceDescription("Last 10 captured leads as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentLeads(deps),
	)

	return s
}

func mcpStartConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reply, err := deps.Engine.Start(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start conversation: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Engine.Process(ctx, sessionID, message)
		if errors.Is(err, session.ErrNotFound) {
			return mcpError("session not found"), nil
		}
		if errors.Is(err, conversation.ErrAlreadyComplete) {
			return mcpError("conversation already complete"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to process message: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListLeads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 0)
		if limit < 0 {
			limit = 0
		}

		leads, err := deps.Leads.ListLeads(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list leads: %v", err)), nil
		}

		if len(leads) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(leads)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal leads: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetLead(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("lead_id")
		if err != nil {
			return mcpError("lead_id is required"), nil
		}

		lead, err := deps.Leads.GetLead(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("lead not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get lead: %v", err)), nil
		}

		b, err := json.Marshal(lead)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal lead: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentLeads(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		total, err := deps.Leads.CountLeads()
		if err != nil {
			return nil, fmt.Errorf("failed to count leads: %w", err)
		}

		// Last 10 in insertion order.
		offset := 0
		if total > 10 {
			offset = total - 10
		}
		leads, err := deps.Leads.ListLeads(10, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list leads: %w", err)
		}
		if leads == nil {
			leads = []storage.Lead{}
		}

		b, err := json.Marshal(leads)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal leads: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
