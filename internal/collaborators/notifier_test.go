package collaborators

import (
	"testing"
	"time"
)

func TestEventNotifierHandlers(t *testing.T) {
	n := NewEventNotifier()

	eventCh := make(chan NotificationEvent, 10)
	n.OnEvent(func(event NotificationEvent) {
		eventCh <- event
	})

	n.Emit("trade-1", "TradeCompleted", map[string]string{"mint": "So111..."})

	select {
	case event := <-eventCh:
		if event.TradeID != "trade-1" {
			t.Errorf("TradeID = %s, want trade-1", event.TradeID)
		}
		if event.EventType != "TradeCompleted" {
			t.Errorf("EventType = %s, want TradeCompleted", event.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventNotifierMultipleHandlers(t *testing.T) {
	n := NewEventNotifier()

	ch1 := make(chan NotificationEvent, 1)
	ch2 := make(chan NotificationEvent, 1)
	n.OnEvent(func(e NotificationEvent) { ch1 <- e })
	n.OnEvent(func(e NotificationEvent) { ch2 <- e })

	n.Emit("trade-2", "TradeFailed", nil)

	timeout := time.After(time.Second)
	for _, ch := range []chan NotificationEvent{ch1, ch2} {
		select {
		case <-ch:
		case <-timeout:
			t.Fatal("timeout waiting for event on one of the handlers")
		}
	}
}
