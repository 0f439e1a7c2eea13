package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCartChanged    = "CART_CHANGED"
	EventTypeOrderSubmitted = "ORDER_SUBMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartChangedEvent is emitted after every persisted cart mutation.
type CartChangedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Op        string `json:"op"`
	ItemCount int    `json:"item_count"`
	UnitCount int    `json:"unit_count"`
}

// OrderSubmittedEvent is published by the order backend once an order id has
// been assigned.
type OrderSubmittedEvent struct {
	BaseEvent
	Order Order           `json:"order"`
	Total decimal.Decimal `json:"total"`
}
