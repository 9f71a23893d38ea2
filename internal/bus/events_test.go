package bus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishOrderPerSubscriber(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []uint64
	done := make(chan struct{})

	id := b.Subscribe(TopicOperationChanged, func(ev Event) {
		mu.Lock()
		got = append(got, ev.Seq)
		n := len(got)
		mu.Unlock()
		if n == 50 {
			close(done)
		}
	})
	for i := 0; i < 50; i++ {
		b.Publish(TopicOperationChanged, i, "test")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("out of order at %d: %v", i, got)
		}
	}
	if !b.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false")
	}
	if b.Unsubscribe(id) {
		t.Error("second Unsubscribe returned true")
	}
	if b.Count(TopicOperationChanged) != 0 {
		t.Error("subscriber still counted")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	other := make(chan Event, 1)
	b.Subscribe("other", func(ev Event) { other <- ev })

	b.Publish(TopicOperationChanged, nil, "test")
	select {
	case ev := <-other:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotKillSubscription(t *testing.T) {
	b := New()
	got := make(chan int, 2)
	id := b.Subscribe("t", func(ev Event) {
		n := ev.Data.(int)
		if n == 0 {
			panic("boom")
		}
		got <- n
	})
	defer b.Unsubscribe(id)

	b.Publish("t", 0, "test")
	b.Publish("t", 1, "test")
	select {
	case n := <-got:
		if n != 1 {
			t.Errorf("got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription died after panic")
	}
}
