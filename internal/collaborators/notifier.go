package collaborators

import (
	"sync"
	"time"
)

// EventNotifier is the reference Notifier implementation: an in-process
// fan-out to registered handlers, each invoked on its own goroutine so a
// slow subscriber (e.g. a chat bot rate-limited by Telegram) never blocks
// the component that emitted the event.
//
// Grounded on the teacher's swap coordinator's OnEvent/emitEvent pattern.
type EventNotifier struct {
	mu       sync.Mutex
	handlers []NotificationHandler
}

// NewEventNotifier creates an empty EventNotifier.
func NewEventNotifier() *EventNotifier {
	return &EventNotifier{handlers: make([]NotificationHandler, 0)}
}

// OnEvent registers a handler. Safe to call concurrently with Emit.
func (n *EventNotifier) OnEvent(handler NotificationHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Emit delivers an event to every registered handler.
func (n *EventNotifier) Emit(tradeID, eventType string, data interface{}) {
	event := NotificationEvent{
		TradeID:   tradeID,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	n.mu.Lock()
	handlers := make([]NotificationHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
