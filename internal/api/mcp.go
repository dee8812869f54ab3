package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/atendai/atenda/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. The conversation runtime
// connects over stdio and identifies the owner per call, so every tool takes
// a user_id argument.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing the compiled prompt and the
// knowledge base to the conversation runtime.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"atenda",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("atenda — agent configuration and knowledge base for WhatsApp assistants."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_system_prompt",
			mcp.WithDescription("Return the agent's compiled system prompt, ready to drive a conversation."),
			mcp.WithString("user_id", mcp.Description("Owner of the agent"), mcp.Required()),
			mcp.WithString("agent_id", mcp.Description("Agent identifier"), mcp.Required()),
		),
		mcpGetSystemPrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("get_agent",
			mcp.WithDescription("Return the agent's full configuration as JSON."),
			mcp.WithString("user_id", mcp.Description("Owner of the agent"), mcp.Required()),
			mcp.WithString("agent_id", mcp.Description("Agent identifier"), mcp.Required()),
		),
		mcpGetAgent(deps),
	)

	s.AddTool(
		mcp.NewTool("list_training_items",
			mcp.WithDescription("List the agent's knowledge-base items with their processing status."),
			mcp.WithString("user_id", mcp.Description("Owner of the agent"), mcp.Required()),
			mcp.WithString("agent_id", mcp.Description("Agent identifier"), mcp.Required()),
		),
		mcpListTrainingItems(deps),
	)

	return s
}

func mcpOwnerAgent(req mcp.CallToolRequest) (userID, agentID string, errResult *mcp.CallToolResult) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return "", "", mcpError("user_id is required")
	}
	agentID, err = req.RequireString("agent_id")
	if err != nil {
		return "", "", mcpError("agent_id is required")
	}
	return userID, agentID, nil
}

func mcpGetSystemPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, agentID, errResult := mcpOwnerAgent(req)
		if errResult != nil {
			return errResult, nil
		}

		agent, err := deps.Store.GetAgent(userID, agentID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("agent not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get agent: %v", err)), nil
		}
		if agent.SystemPrompt == "" {
			return mcpError("agent has no compiled prompt yet"), nil
		}

		return mcpText(agent.SystemPrompt), nil
	}
}

func mcpGetAgent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, agentID, errResult := mcpOwnerAgent(req)
		if errResult != nil {
			return errResult, nil
		}

		agent, err := deps.Store.GetAgent(userID, agentID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("agent not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get agent: %v", err)), nil
		}

		b, err := json.Marshal(agent)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal agent: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListTrainingItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, agentID, errResult := mcpOwnerAgent(req)
		if errResult != nil {
			return errResult, nil
		}

		if _, err := deps.Store.GetAgent(userID, agentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError("agent not found"), nil
			}
			return mcpError(fmt.Sprintf("failed to get agent: %v", err)), nil
		}

		items, err := deps.Store.ListTrainingItems(userID, agentID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list items: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		type itemSummary struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Title     string `json:"title"`
			Status    string `json:"processing_status"`
			Error     string `json:"processing_error,omitempty"`
			CharCount int    `json:"char_count"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]itemSummary, len(items))
		for i, item := range items {
			summaries[i] = itemSummary{
				ID:        item.ID,
				Type:      item.Type,
				Title:     item.Title,
				Status:    item.ProcessingStatus,
				Error:     item.ProcessingError,
				CharCount: item.CharCount,
				CreatedAt: item.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
