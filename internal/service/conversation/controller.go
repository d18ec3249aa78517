// Package conversation runs question/answer turns against the thread's
// bound document session.
package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/backend"
	"pdf-ai-assistant/internal/events"
	"pdf-ai-assistant/internal/metrics"
	model "pdf-ai-assistant/internal/model/chat"
	"pdf-ai-assistant/internal/sanitize"
)

const needUploadText = "Please upload a PDF first to start asking questions."

// Asker is the slice of the inference client the controller needs.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (string, error)
}

// Registry is the thread store the controller appends turns to.
type Registry interface {
	Get(id int) (model.Thread, bool)
	AppendMessage(id int, msg model.Message) (model.Message, error)
}

// Controller guards one in-flight question at a time and owns the
// optimistic-append ordering: the user turn lands before the network call,
// the reply (or error) lands when the call for that thread resolves.
type Controller struct {
	backend  Asker
	registry Registry
	bus      *events.Bus
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewController builds an idle controller.
func NewController(asker Asker, registry Registry, bus *events.Bus, log zerolog.Logger) *Controller {
	return &Controller{backend: asker, registry: registry, bus: bus, log: log}
}

// Loading reports whether a question is currently outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Ask runs one turn for the named thread. Blank questions, an outstanding
// request, and unknown threads are silent no-ops. A thread without a bound
// document gets a system message and an open-the-upload-flow signal
// instead of a network call. The reply is appended to the thread the
// question was issued for, even if another thread is active by the time
// the backend answers.
func (c *Controller) Ask(ctx context.Context, threadID int, question string) {
	if strings.TrimSpace(question) == "" {
		return
	}

	// A busy controller is a no-op before any other handling, so an
	// outstanding request never triggers the upload nudge.
	if c.Loading() {
		return
	}

	thread, ok := c.registry.Get(threadID)
	if !ok {
		return
	}

	if !thread.Binding.Bound() {
		_, _ = c.registry.AppendMessage(threadID, model.Message{
			Sender:   model.SenderSystem,
			Text:     needUploadText,
			IsSystem: true,
		})
		c.publish(events.Event{Type: events.TypeUploadOpen, ThreadID: threadID})
		return
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.mu.Unlock()

	// Loading must clear on every path out of the turn, including a
	// panic inside sanitization or append.
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
		c.publish(events.Event{Type: events.TypeLoading, ThreadID: threadID, Payload: false})
	}()

	_, _ = c.registry.AppendMessage(threadID, model.Message{
		Sender: model.SenderUser,
		Text:   question,
	})
	c.publish(events.Event{Type: events.TypeLoading, ThreadID: threadID, Payload: true})

	answer, err := c.backend.Ask(ctx, thread.Binding.SessionID, question)
	if err != nil {
		_, _ = c.registry.AppendMessage(threadID, model.Message{
			Sender:  model.SenderBot,
			Text:    failureText(err),
			IsError: true,
		})
		metrics.ObserveQuestion(false)
		c.log.Warn().Int("thread", threadID).Err(err).Msg("ask failed")
		return
	}

	_, _ = c.registry.AppendMessage(threadID, model.Message{
		Sender: model.SenderBot,
		Text:   sanitize.Strip(answer),
	})
	metrics.ObserveQuestion(true)
}

func failureText(err error) string {
	if backend.IsConnectivity(err) {
		return "Unable to connect to server. Please check your connection."
	}
	return "Sorry, I encountered an error. " + backend.UserMessage(err)
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
