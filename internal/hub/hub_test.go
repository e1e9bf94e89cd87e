package hub

import (
	"testing"
	"time"
)

func TestEmitReachesSubscriber(t *testing.T) {
	h := New()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Emit(PostPublished, map[string]string{"id": "p1"})

	select {
	case ev := <-ch:
		if ev.Type != PostPublished {
			t.Errorf("event type = %s", ev.Type)
		}
		if ev.At.IsZero() {
			t.Error("event not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	h := New()

	h.Emit(GenerationStarted, nil)

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	select {
	case ev := <-ch:
		t.Errorf("late subscriber received replayed event %s", ev.Type)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	ch := h.Subscribe()
	h.Unsubscribe(ch)

	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d after unsubscribe", h.Subscribers())
	}
	// Emitting after unsubscribe must not panic on the closed channel.
	h.Emit(ErrorOccurred, nil)

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	h := New()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
}

func TestSlowSubscriberLosesEvents(t *testing.T) {
	h := New()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for range subscriberBuffer + 10 {
		h.Emit(JobEnqueued, nil)
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Errorf("received %d events, want buffer size %d", received, subscriberBuffer)
	}
}

func TestEmitFansOut(t *testing.T) {
	h := New()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Emit(GenerationCompleted, "topic")

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != GenerationCompleted {
				t.Errorf("event type = %s", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}
