// Package events provides structured event logging for the vault.
// Events record every committed state change (deposits, rebalances,
// governance transitions) plus diagnostic signals such as cap rejections.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies the kind of vault event.
type EventType string

const (
	// Accounting events
	EventInitialized EventType = "vault.initialized"
	EventDeposit     EventType = "vault.deposit"
	EventWithdraw    EventType = "vault.withdraw"
	EventMigrated    EventType = "vault.migrated"

	// Queue events
	EventWithdrawQueued    EventType = "queue.withdraw_queued"
	EventWithdrawProcessed EventType = "queue.withdraw_processed"
	EventWithdrawCancelled EventType = "queue.withdraw_cancelled"

	// Guard events
	EventCapExceeded EventType = "caps.exceeded"
	EventCapsUpdated EventType = "caps.updated"

	// Strategy events
	EventStrategyAdded   EventType = "strategy.added"
	EventStrategyRemoved EventType = "strategy.removed"
	EventStrategyFlagged EventType = "strategy.flagged"
	EventHarvest         EventType = "strategy.harvest"
	EventOracleUpdated   EventType = "oracle.updated"
	EventRebalanced      EventType = "rebalance.completed"
	EventSlippage        EventType = "rebalance.slippage_exceeded"

	// Governance events
	EventPaused           EventType = "governance.paused"
	EventProposed         EventType = "governance.proposed"
	EventApproved         EventType = "governance.approved"
	EventTimelockStarted  EventType = "governance.timelock_started"
	EventTimelockExecuted EventType = "governance.timelock_executed"
	EventGuardiansUpdated EventType = "governance.guardians_updated"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event represents a structured vault event.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	Vault     string `json:"vault,omitempty"`
	Principal string `json:"principal,omitempty"`
	Amount    string `json:"amount,omitempty"`

	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Diagnostic events are published even when the originating call aborts.
	Diagnostic bool `json:"diagnostic,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// String returns a human-readable representation.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// EventHandler processes events as they occur.
type EventHandler func(Event)

// EventFilter decides whether an event should be processed.
type EventFilter func(Event) bool

// Sink receives published events.
type Sink interface {
	Log(event Event)
}

// EventLogger is a Sink with history and subscriptions.
type EventLogger interface {
	Sink

	// LogWithContext records an event with the request id from ctx.
	LogWithContext(ctx context.Context, event Event)

	// Subscribe registers a handler for events.
	Subscribe(handler EventHandler) func()

	// SubscribeFiltered registers a handler with a filter.
	SubscribeFiltered(filter EventFilter, handler EventHandler) func()

	// Recent returns the most recent N events.
	Recent(n int) []Event

	// RecentByPrincipal returns recent events involving a principal.
	RecentByPrincipal(principal string, n int) []Event

	// RecentByType returns recent events of a specific type.
	RecentByType(eventType EventType, n int) []Event
}

// RingBuffer is a thread-safe circular buffer for events.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

var _ EventLogger = (*RingBuffer)(nil)

type handlerEntry struct {
	id      int64
	filter  EventFilter
	handler EventHandler
}

// NewRingBuffer creates a new event ring buffer.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Log adds an event to the buffer and notifies handlers.
func (rb *RingBuffer) Log(event Event) {
	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// LogWithContext adds the request id from ctx before logging.
func (rb *RingBuffer) LogWithContext(ctx context.Context, event Event) {
	if requestID := ctx.Value(requestIDKey); requestID != nil {
		if s, ok := requestID.(string); ok {
			event.RequestID = s
		}
	}
	rb.Log(event)
}

// Subscribe registers a handler for all events.
func (rb *RingBuffer) Subscribe(handler EventHandler) func() {
	return rb.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter.
func (rb *RingBuffer) SubscribeFiltered(filter EventFilter, handler EventHandler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{
		id:      id,
		filter:  filter,
		handler: handler,
	})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent N events in reverse chronological order.
func (rb *RingBuffer) Recent(n int) []Event {
	return rb.recentMatching(n, nil)
}

// RecentByPrincipal returns recent events for a specific principal.
func (rb *RingBuffer) RecentByPrincipal(principal string, n int) []Event {
	return rb.recentMatching(n, func(e Event) bool { return e.Principal == principal })
}

// RecentByType returns recent events of a specific type.
func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	return rb.recentMatching(n, func(e Event) bool { return e.Type == eventType })
}

func (rb *RingBuffer) recentMatching(n int, match EventFilter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if match == nil || match(rb.events[idx]) {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of events in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear removes all events from the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = make([]Event, rb.size)
	rb.head = 0
	rb.count = 0
}

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// EventBuilder provides a fluent API for creating events.
type EventBuilder struct {
	event Event
}

// NewEvent creates a new EventBuilder.
func NewEvent(eventType EventType) *EventBuilder {
	return &EventBuilder{
		event: Event{
			Type:     eventType,
			Severity: SeverityInfo,
		},
	}
}

// At sets the event timestamp.
func (b *EventBuilder) At(ts time.Time) *EventBuilder {
	b.event.Timestamp = ts
	return b
}

// Vault sets the vault namespace.
func (b *EventBuilder) Vault(name string) *EventBuilder {
	b.event.Vault = name
	return b
}

// Principal sets the principal the event concerns.
func (b *EventBuilder) Principal(p string) *EventBuilder {
	b.event.Principal = p
	return b
}

// Amount sets the primary amount carried by the event.
func (b *EventBuilder) Amount(a string) *EventBuilder {
	b.event.Amount = a
	return b
}

// Severity sets the severity.
func (b *EventBuilder) Severity(severity Severity) *EventBuilder {
	b.event.Severity = severity
	return b
}

// Message sets the message.
func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.event.Message = msg
	return b
}

// ErrorFrom sets the error from an error value.
func (b *EventBuilder) ErrorFrom(err error) *EventBuilder {
	if err != nil {
		b.event.Error = err.Error()
		b.event.Severity = SeverityError
	}
	return b
}

// Diagnostic marks the event for publication regardless of call outcome.
func (b *EventBuilder) Diagnostic() *EventBuilder {
	b.event.Diagnostic = true
	if b.event.Severity == SeverityInfo {
		b.event.Severity = SeverityWarning
	}
	return b
}

// Metadata adds metadata.
func (b *EventBuilder) Metadata(key, value string) *EventBuilder {
	if b.event.Metadata == nil {
		b.event.Metadata = make(map[string]string)
	}
	b.event.Metadata[key] = value
	return b
}

// Build returns the constructed event.
func (b *EventBuilder) Build() Event {
	if b.event.ID == "" {
		b.event.ID = uuid.NewString()
	}
	if b.event.Timestamp.IsZero() {
		b.event.Timestamp = time.Now().UTC()
	}
	return b.event
}

// LogTo logs the event to the given sink.
func (b *EventBuilder) LogTo(sink Sink) {
	sink.Log(b.Build())
}

// NoOpLogger is an event logger that discards all events.
type NoOpLogger struct{}

func (NoOpLogger) Log(Event)                                          {}
func (NoOpLogger) LogWithContext(context.Context, Event)              {}
func (NoOpLogger) Subscribe(EventHandler) func()                      { return func() {} }
func (NoOpLogger) SubscribeFiltered(EventFilter, EventHandler) func() { return func() {} }
func (NoOpLogger) Recent(int) []Event                                 { return nil }
func (NoOpLogger) RecentByPrincipal(string, int) []Event              { return nil }
func (NoOpLogger) RecentByType(EventType, int) []Event                { return nil }
