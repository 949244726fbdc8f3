package eventbus

import (
	"sync"
	"testing"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestPublishDeliversToMatchingAndWildcardSubscribers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var runSeen, allSeen []uint64

	b.Subscribe("run-1", func(e models.RunEvent) {
		mu.Lock()
		defer mu.Unlock()
		runSeen = append(runSeen, e.Sequence)
	})
	b.OnAll(func(e models.RunEvent) {
		mu.Lock()
		defer mu.Unlock()
		allSeen = append(allSeen, e.Sequence)
	})

	b.Publish(models.RunEvent{RunID: "run-1", Sequence: 1, Type: models.RunEventStatusChanged})
	b.Publish(models.RunEvent{RunID: "run-2", Sequence: 1, Type: models.RunEventStatusChanged})

	mu.Lock()
	defer mu.Unlock()
	if len(runSeen) != 1 || runSeen[0] != 1 {
		t.Fatalf("run-1 subscriber should see exactly event 1, got %v", runSeen)
	}
	if len(allSeen) != 2 {
		t.Fatalf("wildcard subscriber should see both events, got %v", allSeen)
	}
}

func TestPublishSwallowsSubscriberPanic(t *testing.T) {
	b := New()

	var called bool
	b.OnAll(func(models.RunEvent) { panic("boom") })
	b.OnAll(func(models.RunEvent) { called = true })

	b.Publish(models.RunEvent{RunID: "run-1", Sequence: 1})

	if !called {
		t.Fatal("second subscriber must still run after first subscriber panics")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	unsub := b.Subscribe("run-1", func(models.RunEvent) { count++ })
	b.Publish(models.RunEvent{RunID: "run-1"})
	unsub()
	b.Publish(models.RunEvent{RunID: "run-1"})

	if count != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", count)
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New()
	if b.SubscriberCount() != 0 {
		t.Fatal("new bus should have no subscribers")
	}
	unsub := b.Subscribe("*", func(models.RunEvent) {})
	if b.SubscriberCount() != 1 {
		t.Fatal("expected 1 subscriber")
	}
	unsub()
	if b.SubscriberCount() != 0 {
		t.Fatal("expected 0 subscribers after unsubscribe")
	}
}
