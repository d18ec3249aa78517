// Package events fans state changes out to connected shells. The bus is
// in-process only: chat state lives and dies with the process, so there is
// nothing to coordinate beyond the open websocket and SSE connections.
package events

import "sync"

// Event types published by the services.
const (
	TypeThreadCreated   = "thread.created"
	TypeThreadActivated = "thread.activated"
	TypeThreadDeleted   = "thread.deleted"
	TypeThreadCleared   = "thread.cleared"
	TypeMessageAppended = "message.appended"
	TypeLoading         = "conversation.loading"
	TypeUploadOpen      = "upload.open"
	TypeUploadProgress  = "upload.progress"
	TypeUploadFinished  = "upload.finished"
	TypeUploadFailed    = "upload.failed"
)

// Event is one state-change notification.
type Event struct {
	Type     string `json:"type"`
	ThreadID int    `json:"threadId,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Bus is a small publish/subscribe hub. Publish never blocks: subscribers
// that fall behind lose events rather than stalling the publisher.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// when the listener goes away; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
