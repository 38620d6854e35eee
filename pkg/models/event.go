package models

import (
	"errors"
	"strings"
	"time"
)

// EventType is the kind of analytics event.
type EventType string

const (
	EventVisit       EventType = "visit"
	EventOrder       EventType = "order"
	EventProductView EventType = "product_view"
)

// Event validation errors
var (
	ErrEmptyEventID       = errors.New("event id is required")
	ErrInvalidEventType   = errors.New("event type must be visit, order or product_view")
	ErrEmptyStoreID       = errors.New("store id is required")
	ErrInvalidTimestamp   = errors.New("timestamp must be an RFC3339 instant")
	ErrNegativeOrderValue = errors.New("order value must be positive or zero")
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventVisit, EventOrder, EventProductView:
		return true
	}
	return false
}

// EventItem is the compact line stored with an order event.
type EventItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// EventData carries the optional payload of an event.
type EventData struct {
	ProductID    string      `json:"productId,omitempty"`
	OrderValue   *float64    `json:"orderValue,omitempty"`
	CustomerName string      `json:"customerName,omitempty"`
	Items        []EventItem `json:"items,omitempty"`
	Currency     string      `json:"currency,omitempty"` // ISO 4217 code of OrderValue and item prices.
	SessionID    string      `json:"sessionId,omitempty"`
}

// AnalyticsEvent is one immutable entry of the analytics log. The store
// reference is loose: deleting a store does not cascade to its events.
type AnalyticsEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	StoreID   string     `json:"storeId"`
	Timestamp string     `json:"timestamp"`
	Data      *EventData `json:"data,omitempty"`
}

// Time parses the event timestamp. ok is false for malformed values.
func (e *AnalyticsEvent) Time() (t time.Time, ok bool) {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OrderValue returns data.orderValue, or 0 when absent.
func (e *AnalyticsEvent) OrderValue() float64 {
	if e.Data == nil || e.Data.OrderValue == nil {
		return 0
	}
	return *e.Data.OrderValue
}

// Validate checks an event received from outside the process.
func (e *AnalyticsEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyEventID
	}
	if !e.Type.Valid() {
		return ErrInvalidEventType
	}
	if strings.TrimSpace(e.StoreID) == "" {
		return ErrEmptyStoreID
	}
	if _, ok := e.Time(); !ok {
		return ErrInvalidTimestamp
	}
	if e.OrderValue() < 0 {
		return ErrNegativeOrderValue
	}
	return nil
}

// Float64 returns a pointer to v, for EventData.OrderValue.
func Float64(v float64) *float64 {
	return &v
}

// DateRange is an inclusive query filter over event timestamps.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Contains reports whether t falls within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
