package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/realtime"
)

func newTestHub() *realtime.Hub {
	return realtime.NewHub(realtime.Params{})
}

func TestPublishDeliversToMatchingBroadcastSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	sub, err := hub.Subscribe(ctx, realtime.Filter{UserID: snowflake.ID(1)})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	hub.Publish(realtime.Event{Type: "order.created", Audience: realtime.Audience{Broadcast: true}})

	select {
	case evt := <-sub.Events():
		if evt.Type != "order.created" {
			t.Fatalf("expected order.created, got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestPublishFiltersByUserID(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	matched, err := hub.Subscribe(ctx, realtime.Filter{UserID: snowflake.ID(10)})
	if err != nil {
		t.Fatalf("subscribe matched: %v", err)
	}
	defer matched.Close()

	unmatched, err := hub.Subscribe(ctx, realtime.Filter{UserID: snowflake.ID(20)})
	if err != nil {
		t.Fatalf("subscribe unmatched: %v", err)
	}
	defer unmatched.Close()

	hub.Publish(realtime.Event{Type: "order.approved", Audience: realtime.Audience{UserIDs: []snowflake.ID{10}}})

	select {
	case evt := <-matched.Events():
		if evt.Type != "order.approved" {
			t.Fatalf("expected order.approved, got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected matched subscriber to receive event")
	}

	select {
	case evt := <-unmatched.Events():
		t.Fatalf("unmatched subscriber should not receive anything, got %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishFiltersByRoleAndCode(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	mediator, err := hub.Subscribe(ctx, realtime.Filter{Role: "mediator", MediatorCode: "MED-1"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer mediator.Close()

	hub.Publish(realtime.Event{Type: "settlement.settled", Audience: realtime.Audience{MediatorCodes: []string{"MED-1"}}})

	select {
	case evt := <-mediator.Events():
		if evt.Type != "settlement.settled" {
			t.Fatalf("expected settlement.settled, got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected mediator subscriber to receive event")
	}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	sub, err := hub.Subscribe(ctx, realtime.Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(realtime.Event{Type: "tick", Audience: realtime.Audience{Broadcast: true}, Payload: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case evt := <-sub.Events():
			if evt.Payload != i {
				t.Fatalf("expected payload %d, got %v", i, evt.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestOverflowDropsOldestAndDeliversMarker(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	sub, err := hub.Subscribe(ctx, realtime.Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < realtime.DefaultQueueSize+1; i++ {
		hub.Publish(realtime.Event{Type: "flood", Audience: realtime.Audience{Broadcast: true}, Payload: i})
	}

	var last realtime.Event
	for i := 0; i < realtime.DefaultQueueSize; i++ {
		select {
		case last = <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("timed out draining queue at %d", i)
		}
	}
	if last.Type != realtime.EventTypeOverflow {
		t.Fatalf("expected the last queued event to be an overflow marker, got %s", last.Type)
	}
}

func TestSubscribeRefusesAtLimit(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	subs := make([]*realtime.Subscription, 0, realtime.DefaultMaxSubscribers)
	for i := 0; i < realtime.DefaultMaxSubscribers; i++ {
		sub, err := hub.Subscribe(ctx, realtime.Filter{UserID: snowflake.ID(i)})
		if err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
		subs = append(subs, sub)
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	_, err := hub.Subscribe(ctx, realtime.Filter{UserID: snowflake.ID(99999)})
	if err != realtime.ErrSubscriberLimitReached {
		t.Fatalf("expected ErrSubscriberLimitReached, got %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub()

	sub, err := hub.Subscribe(ctx, realtime.Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()

	hub.Publish(realtime.Event{Type: "after-close", Audience: realtime.Audience{Broadcast: true}})

	select {
	case evt := <-sub.Events():
		t.Fatalf("closed subscriber should not receive events, got %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
