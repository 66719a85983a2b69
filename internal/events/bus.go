package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeRecorded       EventType = "TRADE_RECORDED"
	EventTradeDenied         EventType = "TRADE_DENIED"
	EventQuotaReset          EventType = "QUOTA_RESET"
	EventSubscriptionUpdated EventType = "SUBSCRIPTION_UPDATED"
	EventSubscriptionExpired EventType = "SUBSCRIPTION_EXPIRED"
	EventLicenseIssued       EventType = "LICENSE_ISSUED"
	EventLicenseActivated    EventType = "LICENSE_ACTIVATED"
	EventLicenseRenewed      EventType = "LICENSE_RENEWED"
	EventError               EventType = "ERROR"
)

// Event represents a system event. ID lets WebSocket consumers deduplicate
// events delivered over reconnecting sockets.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set ID and timestamp if not provided
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeRecorded publishes a successful trade-count increment
func (eb *EventBus) PublishTradeRecorded(userID string, remaining *int) {
	data := map[string]interface{}{
		"user_id": userID,
	}
	if remaining != nil {
		data["remaining_trades"] = *remaining
	}
	eb.Publish(Event{Type: EventTradeRecorded, Data: data})
}

// PublishTradeDenied publishes a denied trade attempt with its reason
func (eb *EventBus) PublishTradeDenied(userID, reason string) {
	eb.Publish(Event{
		Type: EventTradeDenied,
		Data: map[string]interface{}{
			"user_id": userID,
			"reason":  reason,
		},
	})
}

// PublishSubscriptionUpdated publishes a plan or status change
func (eb *EventBus) PublishSubscriptionUpdated(userID, tier, status string) {
	eb.Publish(Event{
		Type: EventSubscriptionUpdated,
		Data: map[string]interface{}{
			"user_id": userID,
			"tier":    tier,
			"status":  status,
		},
	})
}

// PublishLicenseActivated publishes a desktop license activation
func (eb *EventBus) PublishLicenseActivated(code, machineID string) {
	eb.Publish(Event{
		Type: EventLicenseActivated,
		Data: map[string]interface{}{
			"code":       code,
			"machine_id": machineID,
		},
	})
}

// PublishLicenseRenewed publishes a forex license renewal
func (eb *EventBus) PublishLicenseRenewed(key string, newExpiry time.Time) {
	eb.Publish(Event{
		Type: EventLicenseRenewed,
		Data: map[string]interface{}{
			"license_key": key,
			"new_expiry":  newExpiry,
		},
	})
}
