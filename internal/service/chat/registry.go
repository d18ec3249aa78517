package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/derror"
	"pdf-ai-assistant/internal/events"
	model "pdf-ai-assistant/internal/model/chat"
)

// SessionEnder releases a backend document session. Deleting a bound
// thread triggers this as fire-and-forget cleanup.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID string) error
}

// Registry owns every chat thread and the single active-thread pointer.
// All mutation goes through its methods under one mutex, so "which thread
// is active" can never be observed mid-change. The registry never drops to
// zero threads after construction.
type Registry struct {
	mu      sync.Mutex
	threads []*model.Thread
	ender   SessionEnder
	bus     *events.Bus
	log     zerolog.Logger
}

// NewRegistry seeds the registry with a single active empty thread, the
// state a fresh shell starts from.
func NewRegistry(ender SessionEnder, bus *events.Bus, log zerolog.Logger) *Registry {
	r := &Registry{ender: ender, bus: bus, log: log}
	first := &model.Thread{ID: 1, Name: threadName(1), Messages: []model.Message{}, IsActive: true}
	r.threads = append(r.threads, first)
	return r
}

// Create appends a new unbound empty thread, makes it the active one and
// returns a snapshot of it.
func (r *Registry) Create() model.Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := 0
	for _, th := range r.threads {
		if th.ID > id {
			id = th.ID
		}
	}
	id++

	th := &model.Thread{ID: id, Name: threadName(id), Messages: []model.Message{}, IsActive: true}
	for _, other := range r.threads {
		other.IsActive = false
	}
	r.threads = append(r.threads, th)

	r.publish(events.Event{Type: events.TypeThreadCreated, ThreadID: id})
	r.log.Debug().Int("thread", id).Msg("thread created")
	return snapshot(th)
}

// SwitchTo makes the named thread active. An unknown id is a silent no-op.
func (r *Registry) SwitchTo(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.find(id)
	if target == nil {
		return
	}
	for _, th := range r.threads {
		th.IsActive = th.ID == id
	}
	r.publish(events.Event{Type: events.TypeThreadActivated, ThreadID: id})
}

// Delete removes a thread. The last remaining thread cannot be deleted.
// If the thread held a document session the backend is told to release it,
// best-effort, without blocking the deletion. When the deleted thread was
// active, activation moves to the first remaining thread.
func (r *Registry) Delete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.threads) <= 1 {
		return derror.ErrLastThread
	}
	target := r.find(id)
	if target == nil {
		return derror.ErrThreadNotFound
	}

	if target.Binding.Bound() && r.ender != nil {
		sessionID := target.Binding.SessionID
		go func() {
			if err := r.ender.EndSession(context.Background(), sessionID); err != nil {
				r.log.Warn().Str("session", sessionID).Err(err).Msg("failed to end session")
			}
		}()
	}

	wasActive := target.IsActive
	kept := r.threads[:0]
	for _, th := range r.threads {
		if th.ID != id {
			kept = append(kept, th)
		}
	}
	r.threads = kept
	if wasActive && len(r.threads) > 0 {
		r.threads[0].IsActive = true
	}

	r.publish(events.Event{Type: events.TypeThreadDeleted, ThreadID: id})
	r.log.Debug().Int("thread", id).Msg("thread deleted")
	return nil
}

// ClearMessages empties the thread's log in one step. The session binding
// is untouched.
func (r *Registry) ClearMessages(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	th := r.find(id)
	if th == nil {
		return derror.ErrThreadNotFound
	}
	th.Messages = []model.Message{}
	r.publish(events.Event{Type: events.TypeThreadCleared, ThreadID: id})
	return nil
}

// AppendMessage stores a message on the named thread and returns it with
// id and timestamp filled in. Appending by thread id is what lets a late
// reply land on the thread that asked, not whichever is active now.
func (r *Registry) AppendMessage(id int, msg model.Message) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	th := r.find(id)
	if th == nil {
		return model.Message{}, derror.ErrThreadNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format("15:04")
	}
	th.Messages = append(th.Messages, msg)

	r.publish(events.Event{Type: events.TypeMessageAppended, ThreadID: id, Payload: msg})
	return msg, nil
}

// Rebind replaces the thread's session binding wholesale.
func (r *Registry) Rebind(id int, binding model.SessionBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	th := r.find(id)
	if th == nil {
		return derror.ErrThreadNotFound
	}
	th.Binding = binding
	return nil
}

// Active returns a snapshot of the active thread.
func (r *Registry) Active() (model.Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, th := range r.threads {
		if th.IsActive {
			return snapshot(th), true
		}
	}
	return model.Thread{}, false
}

// Get returns a snapshot of the named thread.
func (r *Registry) Get(id int) (model.Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	th := r.find(id)
	if th == nil {
		return model.Thread{}, false
	}
	return snapshot(th), true
}

// List returns snapshots of all threads in creation order.
func (r *Registry) List() []model.Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Thread, 0, len(r.threads))
	for _, th := range r.threads {
		out = append(out, snapshot(th))
	}
	return out
}

func (r *Registry) find(id int) *model.Thread {
	for _, th := range r.threads {
		if th.ID == id {
			return th
		}
	}
	return nil
}

func (r *Registry) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func snapshot(th *model.Thread) model.Thread {
	out := *th
	out.Messages = make([]model.Message, len(th.Messages))
	copy(out.Messages, th.Messages)
	return out
}

func threadName(id int) string {
	return fmt.Sprintf("Chat %02d", id)
}
