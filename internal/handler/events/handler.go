// Package events pushes state-change notifications to connected shells
// over a websocket. This is how a reply that arrives after the user
// switched threads still reaches the sidebar, and how the open-upload
// signal is delivered.
package events

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	eventbus "pdf-ai-assistant/internal/events"
	model "pdf-ai-assistant/internal/model/chat"
	"pdf-ai-assistant/internal/sanitize"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades event-feed connections and forwards bus events.
type Handler struct {
	bus      *eventbus.Bus
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates the event feed handler.
func New(bus *eventbus.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the feed endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleFeed)
}

// renderedMessage pairs stored text with its display-safe HTML form.
type renderedMessage struct {
	model.Message
	HTML string `json:"html"`
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("event feed upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// Drain reads so close frames and pongs are processed; the feed is
	// one-directional otherwise.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, open := <-ch:
			if !open {
				return
			}
			if msg, ok := ev.Payload.(model.Message); ok {
				ev.Payload = renderedMessage{Message: msg, HTML: sanitize.Render(msg.Text)}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Msg("event feed write failed")
				return
			}
		}
	}
}
