package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/derror"
	"pdf-ai-assistant/internal/events"
	uploadservice "pdf-ai-assistant/internal/service/upload"
	"pdf-ai-assistant/pkg/utils"
)

// Handler exposes the upload workflow: staging a file, submitting it, and
// streaming progress while the backend ingests the document.
type Handler struct {
	ctrl     *uploadservice.Controller
	bus      *events.Bus
	log      zerolog.Logger
	maxBytes int64
}

// New creates the upload handler.
func New(ctrl *uploadservice.Controller, bus *events.Bus, maxBytes int64, log zerolog.Logger) *Handler {
	return &Handler{ctrl: ctrl, bus: bus, log: log, maxBytes: maxBytes}
}

// RegisterRoutes mounts the upload routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/upload", func(ur chi.Router) {
		ur.Post("/select", h.handleSelect)
		ur.Delete("/select", h.handleClearSelection)
		ur.Post("/submit", h.handleSubmit)
		ur.Get("/status", h.handleStatus)
		ur.Get("/progress", h.handleProgress)
	})
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxBytes + 1<<20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	err = h.ctrl.SelectFile(header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	switch {
	case derror.IsValidation(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, derror.ErrUploadInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusOK, h.ctrl.Status())
	}
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := uploadservice.Mode(payload.Mode)
	if mode == "" {
		mode = uploadservice.ModeCreate
	}
	if mode != uploadservice.ModeCreate && mode != uploadservice.ModeUpdate {
		utils.RespondError(w, http.StatusBadRequest, "mode must be create or update")
		return
	}

	// Background context: closing the modal or the connection must not
	// cancel an ingest the backend is already running.
	err := h.ctrl.Submit(context.Background(), mode)
	switch {
	case derror.IsPrecondition(err):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case err != nil:
		status := h.ctrl.Status()
		utils.RespondError(w, http.StatusBadGateway, status.Error)
	default:
		utils.RespondJSON(w, http.StatusOK, h.ctrl.Status())
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Status())
}

// handleProgress streams upload state changes as Server-Sent Events until
// the client goes away.
func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// Opening snapshot so a late subscriber sees the current state.
	utils.SendSSEChunk(w, flusher, events.Event{Type: events.TypeUploadProgress, Payload: h.ctrl.Status()})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			switch ev.Type {
			case events.TypeUploadProgress, events.TypeUploadFinished, events.TypeUploadFailed:
				utils.SendSSEChunk(w, flusher, ev)
			}
		}
	}
}
