package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/derror"
	"pdf-ai-assistant/internal/events"
	model "pdf-ai-assistant/internal/model/chat"
	"pdf-ai-assistant/internal/sanitize"
	chatservice "pdf-ai-assistant/internal/service/chat"
	"pdf-ai-assistant/internal/service/conversation"
	"pdf-ai-assistant/pkg/utils"
)

// quickQuestions are the canned starter prompts offered by the shell.
var quickQuestions = []string{
	"What is this document about?",
	"Summarize the main points",
	"What are the key findings?",
}

// Handler exposes thread management and the ask flow over HTTP.
type Handler struct {
	registry *chatservice.Registry
	conv     *conversation.Controller
	bus      *events.Bus
	log      zerolog.Logger
}

// New creates the chat handler.
func New(registry *chatservice.Registry, conv *conversation.Controller, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{registry: registry, conv: conv, bus: bus, log: log}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/threads", h.handleList)
	r.Post("/threads", h.handleCreate)
	r.Post("/threads/{id}/activate", h.handleActivate)
	r.Delete("/threads/{id}", h.handleDelete)
	r.Post("/threads/{id}/clear", h.handleClear)
	r.Get("/threads/{id}/messages", h.handleMessages)
	r.Post("/ask", h.handleAsk)
	r.Get("/quick-questions", h.handleQuickQuestions)
}

// threadSummary is the sidebar view of a thread. MessageCount leaves out
// system notices, matching what the shell shows next to each chat.
type threadSummary struct {
	ID           int                 `json:"id"`
	Name         string              `json:"name"`
	IsActive     bool                `json:"isActive"`
	HasDocument  bool                `json:"hasDocument"`
	MessageCount int                 `json:"messageCount"`
	Document     *model.DocumentInfo `json:"document,omitempty"`
}

// renderedMessage pairs the stored text with its display-safe HTML form.
type renderedMessage struct {
	model.Message
	HTML string `json:"html"`
}

func summarize(th model.Thread) threadSummary {
	s := threadSummary{
		ID:          th.ID,
		Name:        th.Name,
		IsActive:    th.IsActive,
		HasDocument: th.Binding.Bound(),
	}
	for _, m := range th.Messages {
		if m.Sender != model.SenderSystem {
			s.MessageCount++
		}
	}
	if th.Binding.Bound() {
		doc := th.Binding.Document
		s.Document = &doc
	}
	return s
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	threads := h.registry.List()
	out := make([]threadSummary, 0, len(threads))
	for _, th := range threads {
		out = append(out, summarize(th))
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, _ *http.Request) {
	th := h.registry.Create()
	// A fresh thread has no document yet, so the shell should offer the
	// upload flow right away.
	h.bus.Publish(events.Event{Type: events.TypeUploadOpen, ThreadID: th.ID})
	utils.RespondJSON(w, http.StatusCreated, summarize(th))
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	// Unknown ids are a deliberate no-op.
	h.registry.SwitchTo(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid thread id")
		return
	}

	switch err := h.registry.Delete(id); {
	case errors.Is(err, derror.ErrLastThread):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, derror.ErrThreadNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	if err := h.registry.ClearMessages(id); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, err := threadID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	th, ok := h.registry.Get(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, derror.ErrThreadNotFound.Error())
		return
	}

	out := make([]renderedMessage, 0, len(th.Messages))
	for _, m := range th.Messages {
		out = append(out, renderedMessage{Message: m, HTML: sanitize.Render(m.Text)})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	active, ok := h.registry.Active()
	if !ok {
		utils.RespondError(w, http.StatusConflict, "no active chat thread")
		return
	}

	// The turn runs on a background context: navigating away or closing
	// the request must not abort the in-flight question, and a late reply
	// still lands on the thread that asked.
	h.conv.Ask(context.Background(), active.ID, payload.Question)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleQuickQuestions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, quickQuestions)
}

func threadID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}
