package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/atendai/atenda/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return MCPDeps{Store: store}, store
}

func seedAgent(t *testing.T, store *storage.Store, prompt string) storage.Agent {
	t.Helper()
	now := time.Now().UTC()
	agent := storage.Agent{
		ID:        "ag-1",
		UserID:    "user-1",
		Name:      "Clara",
		Objective: storage.ObjectiveSupport,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateAgent(agent); err != nil {
		t.Fatalf("creating agent: %v", err)
	}
	if prompt != "" {
		if err := store.UpdateAgentPrompt("user-1", "ag-1", prompt, len(prompt)); err != nil {
			t.Fatalf("setting prompt: %v", err)
		}
	}
	return agent
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_GetSystemPrompt(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "Você é Clara, um assistente virtual.")

	handler := mcpGetSystemPrompt(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_system_prompt", map[string]interface{}{
		"user_id":  "user-1",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Você é Clara, um assistente virtual." {
		t.Errorf("prompt = %q", got)
	}
}

func TestMCPTool_GetSystemPrompt_NotCompiled(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "")

	handler := mcpGetSystemPrompt(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_system_prompt", map[string]interface{}{
		"user_id":  "user-1",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for uncompiled agent")
	}
}

func TestMCPTool_GetSystemPrompt_ForeignOwner(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "prompt")

	handler := mcpGetSystemPrompt(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_system_prompt", map[string]interface{}{
		"user_id":  "user-2",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || toolText(t, result) != "agent not found" {
		t.Errorf("foreign owner should look like absence, got %q", toolText(t, result))
	}
}

func TestMCPTool_GetAgent(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "")

	handler := mcpGetAgent(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_agent", map[string]interface{}{
		"user_id":  "user-1",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var agent storage.Agent
	if err := json.Unmarshal([]byte(toolText(t, result)), &agent); err != nil {
		t.Fatalf("decoding agent: %v", err)
	}
	if agent.Name != "Clara" {
		t.Errorf("name = %q", agent.Name)
	}
}

func TestMCPTool_ListTrainingItems(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "")

	item := storage.TrainingItem{
		ID: "it-1", AgentID: "ag-1", Type: storage.ItemTypeText,
		Title: "Horário", ProcessingStatus: storage.StatusDone,
		CharCount: 23, CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateTrainingItem(item); err != nil {
		t.Fatalf("creating item: %v", err)
	}

	handler := mcpListTrainingItems(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_training_items", map[string]interface{}{
		"user_id":  "user-1",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("decoding items: %v", err)
	}
	if len(items) != 1 || items[0]["title"] != "Horário" {
		t.Errorf("unexpected items: %v", items)
	}
	if _, ok := items[0]["extracted_content"]; ok {
		t.Error("summaries should not carry extracted content")
	}
}

func TestMCPTool_ListTrainingItems_Empty(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "")

	handler := mcpListTrainingItems(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_training_items", map[string]interface{}{
		"user_id":  "user-1",
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty list = %q", got)
	}
}

func TestMCPTool_MissingArguments(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	handler := mcpGetSystemPrompt(deps)
	result, err := handler(context.Background(), makeCallToolRequest("get_system_prompt", map[string]interface{}{
		"agent_id": "ag-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "user_id") {
		t.Errorf("expected user_id error, got %q", toolText(t, result))
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedAgent(t, store, "prompt")

	handler := mcpGetSystemPrompt(deps)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("get_system_prompt", map[string]interface{}{
				"user_id":  "user-1",
				"agent_id": "ag-1",
			}))
			if err != nil || result.IsError {
				t.Errorf("concurrent call failed: err=%v", err)
			}
		}()
	}
	wg.Wait()
}
