package engine_test

import (
	"context"
	"testing"

	"github.com/seantiz/tally/internal/engine"
)

func alwaysLive(string) bool { return true }

func TestEventBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	types := []string{engine.EventLoaded, engine.EventExecuted, engine.EventClosed}
	for _, typ := range types {
		b.Publish(engine.Event{Type: typ, SessionID: "s1"})
	}
	b.Close("s1")

	var got []string
	for ev := range ch {
		got = append(got, ev.Type)
	}

	if len(got) != len(types) {
		t.Fatalf("got %d events, want %d", len(got), len(types))
	}
	for i, typ := range got {
		if typ != types[i] {
			t.Errorf("event[%d] = %q, want %q", i, typ, types[i])
		}
	}
}

func TestEventBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)
	ch1, unsub1 := b.Subscribe("s1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("s1")
	defer unsub2()

	b.Publish(engine.Event{Type: engine.EventLoaded, SessionID: "s1"})
	b.Close("s1")

	for i, ch := range []<-chan engine.Event{ch1, ch2} {
		var got []engine.Event
		for ev := range ch {
			got = append(got, ev)
		}
		if len(got) != 1 || got[0].Type != engine.EventLoaded {
			t.Errorf("subscriber %d got %v, want one loaded event", i+1, got)
		}
	}
}

func TestEventBrokerIsolatesSessions(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	b.Publish(engine.Event{Type: engine.EventLoaded, SessionID: "s2"})
	b.Close("s1")

	if ev, ok := <-ch; ok {
		t.Errorf("s1 subscriber received %v published to s2", ev)
	}
}

func TestEventBrokerSubscribeToDeadSessionGetsClosed(t *testing.T) {
	b := engine.NewEventBroker(func(string) bool { return false })

	ch, unsub := b.Subscribe("s1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("channel for a session that is not live should be closed")
	}
	if n := b.Topics(); n != 0 {
		t.Errorf("Topics() = %d, want 0", n)
	}
}

func TestEventBrokerForgetsTopics(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)

	_, unsub := b.Subscribe("s1")
	unsub()
	if n := b.Topics(); n != 0 {
		t.Errorf("Topics() after unsubscribe = %d, want 0", n)
	}

	_, unsub = b.Subscribe("s2")
	b.Close("s2")
	unsub()
	b.Close("s3")
	if n := b.Topics(); n != 0 {
		t.Errorf("Topics() after close = %d, want 0", n)
	}
}

func TestEngineBrokerDoesNotGrowWithClosedSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for range 1000 {
		info, err := e.CreateSession(ctx)
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		events, unsub := e.Broker().Subscribe(info.ID)
		if err := e.CloseSession(ctx, info.Handle); err != nil {
			t.Fatalf("CloseSession: %v", err)
		}
		for range events {
		}
		unsub()

		late, _ := e.Broker().Subscribe(info.ID)
		if _, ok := <-late; ok {
			t.Fatal("subscriber to a closed session should get a closed channel")
		}
	}

	if n := e.Broker().Topics(); n != 0 {
		t.Errorf("Topics() = %d after closing every session, want 0", n)
	}
	if n := e.Sessions().Len(); n != 0 {
		t.Errorf("Sessions().Len() = %d, want 0", n)
	}
}

func TestEventBrokerUnsubscribe(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)
	ch, unsub := b.Subscribe("s1")
	unsub()

	b.Publish(engine.Event{Type: engine.EventLoaded, SessionID: "s1"})

	select {
	case ev := <-ch:
		t.Errorf("unsubscribed channel received %v", ev)
	default:
	}
}

func TestEventBrokerDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewEventBroker(alwaysLive)
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	for range 200 {
		b.Publish(engine.Event{Type: engine.EventExecuted, SessionID: "s1"})
	}
	b.Close("s1")

	n := 0
	for range ch {
		n++
	}
	if n != 64 {
		t.Errorf("received %d events, want buffer size 64", n)
	}
}
