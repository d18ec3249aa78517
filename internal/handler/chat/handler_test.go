package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/events"
	model "pdf-ai-assistant/internal/model/chat"
	chatservice "pdf-ai-assistant/internal/service/chat"
	"pdf-ai-assistant/internal/service/conversation"
)

type fakeAsker struct {
	answer string
	asked  int
}

func (f *fakeAsker) Ask(_ context.Context, _, _ string) (string, error) {
	f.asked++
	return f.answer, nil
}

func setupRouter(asker *fakeAsker) (*chi.Mux, *chatservice.Registry) {
	bus := events.NewBus()
	registry := chatservice.NewRegistry(nil, bus, zerolog.Nop())
	conv := conversation.NewController(asker, registry, bus, zerolog.Nop())
	handler := New(registry, conv, bus, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, registry
}

func TestListThreadsIncludesSeed(t *testing.T) {
	r, _ := setupRouter(&fakeAsker{})

	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var threads []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &threads); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(threads) != 1 || threads[0]["name"] != "Chat 01" {
		t.Fatalf("unexpected listing: %+v", threads)
	}
}

func TestCreateThreadActivatesIt(t *testing.T) {
	r, registry := setupRouter(&fakeAsker{})

	req := httptest.NewRequest(http.MethodPost, "/threads", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	active, _ := registry.Active()
	if active.Name != "Chat 02" {
		t.Fatalf("new thread not active: %+v", active)
	}
}

func TestDeleteLastThreadConflicts(t *testing.T) {
	r, registry := setupRouter(&fakeAsker{})
	id := registry.List()[0].ID

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/threads/%d", id), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestActivateUnknownThreadIsNoOp(t *testing.T) {
	r, registry := setupRouter(&fakeAsker{})

	req := httptest.NewRequest(http.MethodPost, "/threads/999/activate", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if _, ok := registry.Active(); !ok {
		t.Fatal("active thread lost")
	}
}

func TestAskWithoutDocumentAddsSystemMessage(t *testing.T) {
	asker := &fakeAsker{}
	r, registry := setupRouter(asker)

	body, _ := json.Marshal(map[string]string{"question": "What is this about?"})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if asker.asked != 0 {
		t.Fatal("unbound ask must not reach the backend")
	}
	active, _ := registry.Active()
	if len(active.Messages) != 1 || active.Messages[0].Sender != model.SenderSystem {
		t.Fatalf("expected a single system message: %+v", active.Messages)
	}
}

func TestMessagesEndpointRendersHTML(t *testing.T) {
	asker := &fakeAsker{answer: "<p>Hi</p><b>there</b>"}
	r, registry := setupRouter(asker)
	active, _ := registry.Active()
	_ = registry.Rebind(active.ID, model.SessionBinding{SessionID: "sess"})

	body, _ := json.Marshal(map[string]string{"question": "hello"})
	askReq := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	askReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), askReq)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/threads/%d/messages", active.ID), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var messages []struct {
		Sender string `json:"sender"`
		HTML   string `json:"html"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &messages); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user+bot messages, got %d", len(messages))
	}
	botHTML := messages[1].HTML
	if strings.Contains(botHTML, "<p>") || strings.Contains(botHTML, "<b>") {
		t.Fatalf("unsafe markup in rendered html: %q", botHTML)
	}
	if !strings.Contains(botHTML, "<strong>there</strong>") || !strings.Contains(botHTML, "Hi") {
		t.Fatalf("whitelisted markup lost: %q", botHTML)
	}
}

func TestClearMessages(t *testing.T) {
	r, registry := setupRouter(&fakeAsker{})
	active, _ := registry.Active()
	_, _ = registry.AppendMessage(active.ID, model.Message{Sender: model.SenderUser, Text: "hi"})

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/threads/%d/clear", active.ID), nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	got, _ := registry.Get(active.ID)
	if len(got.Messages) != 0 {
		t.Fatal("messages not cleared")
	}
}

func TestQuickQuestions(t *testing.T) {
	r, _ := setupRouter(&fakeAsker{})

	req := httptest.NewRequest(http.MethodGet, "/quick-questions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var questions []string
	if err := json.Unmarshal(resp.Body.Bytes(), &questions); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(questions))
	}
}
