package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: "sync.folder_synced", Timestamp: time.Now(), Payload: "INBOX"})

	select {
	case evt := <-ch:
		if evt.Kind != "sync.folder_synced" {
			t.Errorf("got kind %q, want sync.folder_synced", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("process.", 10)
	defer unsub()

	before := time.Now()
	b.Emit("process.email_classified", 42)

	select {
	case evt := <-ch:
		if evt.Payload != 42 {
			t.Errorf("got payload %v, want 42", evt.Payload)
		}
		if evt.Timestamp.Before(before) {
			t.Errorf("timestamp %v predates emit", evt.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("content.", 10)
	defer unsub()

	b.Publish(Event{Kind: "sync.folder_synced"})
	b.Publish(Event{Kind: "content.batch_dispatched"})

	select {
	case evt := <-ch:
		if evt.Kind != "content.batch_dispatched" {
			t.Errorf("got kind %q, want content.batch_dispatched", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure sync event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("proposal.", 10)
	unsub()

	b.Publish(Event{Kind: "proposal.generated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
