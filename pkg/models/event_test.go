package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeValid(t *testing.T) {
	assert.True(t, EventVisit.Valid())
	assert.True(t, EventOrder.Valid())
	assert.True(t, EventProductView.Valid())
	assert.False(t, EventType("click").Valid())
}

func TestAnalyticsEventJSONShape(t *testing.T) {
	evt := AnalyticsEvent{
		ID:        "1700000000000-abc",
		Type:      EventOrder,
		StoreID:   "s1",
		Timestamp: "2026-10-16T12:00:00Z",
		Data:      &EventData{OrderValue: Float64(25.5), CustomerName: "Ana"},
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1700000000000-abc","type":"order","storeId":"s1","timestamp":"2026-10-16T12:00:00Z","data":{"orderValue":25.5,"customerName":"Ana"}}`, string(data))
}

func TestAnalyticsEventOrderValue(t *testing.T) {
	evt := AnalyticsEvent{Type: EventOrder}
	assert.Equal(t, 0.0, evt.OrderValue())

	evt.Data = &EventData{}
	assert.Equal(t, 0.0, evt.OrderValue())

	evt.Data.OrderValue = Float64(12.5)
	assert.Equal(t, 12.5, evt.OrderValue())
}

func TestAnalyticsEventValidate(t *testing.T) {
	evt := AnalyticsEvent{ID: "e1", Type: EventVisit, StoreID: "s1", Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
	require.NoError(t, evt.Validate())

	bad := evt
	bad.ID = ""
	assert.ErrorIs(t, bad.Validate(), ErrEmptyEventID)

	bad = evt
	bad.Type = "click"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidEventType)

	bad = evt
	bad.StoreID = " "
	assert.ErrorIs(t, bad.Validate(), ErrEmptyStoreID)

	bad = evt
	bad.Timestamp = "yesterday"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTimestamp)

	bad = evt
	bad.Data = &EventData{OrderValue: Float64(-1)}
	assert.ErrorIs(t, bad.Validate(), ErrNegativeOrderValue)
}

func TestDateRangeContainsInclusive(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 1, 23, 59, 59, 0, time.UTC)
	r := DateRange{Start: start, End: end}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(end))
	assert.False(t, r.Contains(end.Add(time.Second)))
	assert.False(t, r.Contains(start.Add(-time.Nanosecond)))
}
