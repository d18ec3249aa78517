package events

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(Event{Type: TypeThreadCreated, ThreadID: 1})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case got := <-ch:
			if got.Type != TypeThreadCreated || got.ThreadID != 1 {
				t.Fatalf("unexpected event: %+v", got)
			}
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(Event{Type: TypeThreadDeleted})
}

func TestBusFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 200; i++ {
		bus.Publish(Event{Type: TypeUploadProgress})
	}
}
