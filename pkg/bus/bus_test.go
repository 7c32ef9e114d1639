package bus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("acc-1")
	defer cancel()

	b.Publish(Event{AccountID: "acc-1", Kind: EventAccountUpdated})

	select {
	case evt := <-events:
		if evt.Kind != EventAccountUpdated {
			t.Fatalf("got kind %q, want %q", evt.Kind, EventAccountUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishScopedByAccount(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("acc-1")
	defer cancel()

	b.Publish(Event{AccountID: "acc-2", Kind: EventAccountUpdated})

	select {
	case evt := <-events:
		t.Fatalf("received foreign account event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	events, cancel := b.Subscribe("acc-1")
	cancel()

	if _, ok := <-events; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic
	b.Publish(Event{AccountID: "acc-1", Kind: EventAccountUpdated})
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe("acc-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(Event{AccountID: "acc-1", Kind: EventTransactionCommitted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
