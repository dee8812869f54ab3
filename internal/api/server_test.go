package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atendai/atenda/internal/agents"
	"github.com/atendai/atenda/internal/extract"
	"github.com/atendai/atenda/internal/storage"
	"github.com/atendai/atenda/internal/training"
)

const testToken = "test-token-12345"

// --- fakes ---

type fakeWebsites struct {
	text  string
	title string
	err   error
}

func (f *fakeWebsites) Extract(_ context.Context, _ string) (string, string, error) {
	return f.text, f.title, f.err
}

type fakeDocuments struct {
	text string
	err  error
}

func (f *fakeDocuments) Extract(_ context.Context, _, _ string) (string, error) {
	return f.text, f.err
}

type fakeBlobs struct {
	saved map[string][]byte
}

func (f *fakeBlobs) Save(path string, data []byte) error {
	f.saved[path] = data
	return nil
}

func (f *fakeBlobs) Remove(path string) error {
	delete(f.saved, path)
	return nil
}

// --- helpers ---

type testApp struct {
	handler   http.Handler
	store     *storage.Store
	websites  *fakeWebsites
	documents *fakeDocuments
	blobs     *fakeBlobs
}

func setupHandler(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	app := &testApp{
		store:     store,
		websites:  &fakeWebsites{},
		documents: &fakeDocuments{},
		blobs:     &fakeBlobs{saved: make(map[string][]byte)},
	}
	trainingSvc := training.NewService(store, app.blobs, app.websites, app.documents)
	agentMgr := agents.NewManager(store, app.blobs, trainingSvc)

	app.handler = NewHandler(Deps{
		Agents:   agentMgr,
		Training: trainingSvc,
		Token:    testToken,
	})
	return app
}

func ownerReq(method, url, body, token, owner string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	return req
}

func (app *testApp) do(t *testing.T, method, url, body, owner string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, ownerReq(method, url, body, testToken, owner))
	return rr
}

func (app *testApp) createAgent(t *testing.T, owner string) storage.Agent {
	t.Helper()
	rr := app.do(t, http.MethodPost, "/agents", `{"name":"Clara","objective":"support","use_emojis":true}`, owner)
	if rr.Code != http.StatusCreated {
		t.Fatalf("creating agent: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var agent storage.Agent
	if err := json.Unmarshal(rr.Body.Bytes(), &agent); err != nil {
		t.Fatalf("decoding agent: %v", err)
	}
	return agent
}

// --- tests ---

func TestHealthNoAuth(t *testing.T) {
	app := setupHandler(t)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	app := setupHandler(t)

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, ownerReq(http.MethodGet, "/agents", "", "", "user-1"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, ownerReq(http.MethodGet, "/agents", "", "wrong-token", "user-1"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, ownerReq(http.MethodGet, "/agents", "", testToken, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing owner header: status = %d, want 401", rr.Code)
	}
}

func TestCreateAgent_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	if agent.Name != "Clara" || agent.Objective != "support" || !agent.UseEmojis {
		t.Errorf("unexpected agent: %+v", agent)
	}
	if agent.SystemPrompt == "" {
		t.Error("new agent should have a compiled prompt")
	}
}

func TestCreateAgent_InvalidObjective(t *testing.T) {
	app := setupHandler(t)
	rr := app.do(t, http.MethodPost, "/agents", `{"name":"Clara","objective":"growth"}`, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
}

func TestGetAgent_OwnerScoped(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodGet, "/agents/"+agent.ID, "", "user-1")
	if rr.Code != http.StatusOK {
		t.Errorf("owner get: status = %d", rr.Code)
	}

	rr = app.do(t, http.MethodGet, "/agents/"+agent.ID, "", "user-2")
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign get: status = %d, want 404 not 403", rr.Code)
	}
}

func TestListAgentsEmpty(t *testing.T) {
	app := setupHandler(t)
	rr := app.do(t, http.MethodGet, "/agents", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestUpdateProfile_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodPatch, "/agents/"+agent.ID+"/profile", `{"name":"Sofia"}`, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var updated storage.Agent
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding agent: %v", err)
	}
	if updated.Name != "Sofia" {
		t.Errorf("name = %q", updated.Name)
	}
	if !strings.Contains(updated.SystemPrompt, "Sofia") {
		t.Error("prompt not recompiled after rename")
	}
}

func TestUpdateSettings_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodPatch, "/agents/"+agent.ID+"/settings", `{"restrict_topics":true,"interaction_limit":30}`, "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var updated storage.Agent
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding agent: %v", err)
	}
	if !updated.RestrictTopics || updated.InteractionLimit != 30 {
		t.Errorf("settings not applied: %+v", updated)
	}
	if !updated.UseEmojis {
		t.Error("absent field must keep its value")
	}
}

func TestDeleteAgent_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodDelete, "/agents/"+agent.ID, "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = app.do(t, http.MethodGet, "/agents/"+agent.ID, "", "user-1")
	if rr.Code != http.StatusNotFound {
		t.Errorf("deleted agent still reachable: status = %d", rr.Code)
	}
}

func TestCreateTextItem_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	body := `{"type":"text","content":"Atendemos das 9h às 18h","title":"Horário"}`
	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var item storage.TrainingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}
	if item.ProcessingStatus != storage.StatusDone {
		t.Errorf("status = %q, want done", item.ProcessingStatus)
	}
	if item.CharCount == 0 {
		t.Error("char count missing")
	}
}

func TestCreateWebsiteItem_ExtractionFailureStill201(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")
	app.websites.err = &extract.ExtractionError{Cause: "o site retornou status 500"}

	body := `{"type":"website","content":"https://fora-do-ar.com.br"}`
	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite failure; body = %s", rr.Code, rr.Body.String())
	}

	var item storage.TrainingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}
	if item.ProcessingStatus != storage.StatusError {
		t.Errorf("status = %q, want error", item.ProcessingStatus)
	}
	if item.ProcessingError != "o site retornou status 500" {
		t.Errorf("processing error = %q", item.ProcessingError)
	}
}

func TestCreateDocumentItem_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")
	app.documents.text = "Tabela de preços"

	encoded := base64.StdEncoding.EncodeToString([]byte("%PDF-fake"))
	body := fmt.Sprintf(`{"type":"document","title":"Preços","file":{"name":"precos.pdf","type":"application/pdf","content":"%s"}}`, encoded)
	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", body, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var item storage.TrainingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}
	if item.StoragePath == "" {
		t.Error("storage path missing after successful upload")
	}
	if _, ok := app.blobs.saved[item.StoragePath]; !ok {
		t.Error("uploaded bytes not stored")
	}
}

func TestCreateDocumentItem_InvalidBase64(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	body := `{"type":"document","file":{"name":"doc.pdf","type":"application/pdf","content":"not-base64!!!"}}`
	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", body, "user-1")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
	}
}

func TestListReprocessDeleteItem_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", `{"type":"text","content":"oi","title":"t"}`, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("creating item: status = %d", rr.Code)
	}
	var item storage.TrainingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}

	rr = app.do(t, http.MethodGet, "/agents/"+agent.ID+"/training-items", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Errorf("list: status = %d", rr.Code)
	}
	var items []storage.TrainingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decoding items: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	rr = app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items/"+item.ID+"/reprocess", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Errorf("reprocess: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr = app.do(t, http.MethodDelete, "/training-items/"+item.ID, "", "user-2")
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign delete: status = %d, want 404", rr.Code)
	}

	rr = app.do(t, http.MethodDelete, "/training-items/"+item.ID, "", "user-1")
	if rr.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rr.Code)
	}
}

func TestCompile_HTTP(t *testing.T) {
	app := setupHandler(t)
	agent := app.createAgent(t, "user-1")

	rr := app.do(t, http.MethodPost, "/agents/"+agent.ID+"/training-items", `{"type":"text","content":"Frete grátis acima de R$200","title":"Frete"}`, "user-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("creating item: status = %d", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/agents/"+agent.ID+"/compile", "", "user-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("compile: status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		SystemPrompt       string `json:"system_prompt"`
		TotalTrainingChars int    `json:"total_training_chars"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.Contains(resp.SystemPrompt, "Frete grátis") {
		t.Errorf("prompt missing knowledge:\n%s", resp.SystemPrompt)
	}
	if resp.TotalTrainingChars == 0 {
		t.Error("total training chars missing")
	}
}
