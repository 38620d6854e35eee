package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/internal/logging"
	"github.com/tutaviendo/storefront/pkg/models"
)

// testClock is a manually advanced clock safe for concurrent reads.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var day1 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, local kvstore.Store, clock *testClock) *Store {
	t.Helper()
	if local == nil {
		local = kvstore.NewMemoryStore(0)
	}
	s := New(Options{
		Local:    local,
		Session:  kvstore.NewMemoryStore(0),
		Logger:   logging.Nop(),
		Now:      clock.Now,
		Location: time.UTC,
	})
	s.LoadLog()
	return s
}

// MockSink is a mock for the Sink interface.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(event models.AnalyticsEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func TestStateMachine(t *testing.T) {
	s := New(Options{Logger: logging.Nop()})
	assert.Equal(t, StateUninitialized, s.State())

	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	assert.ErrorIs(t, err, ErrNotReady)

	s.LoadLog()
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, "ready", s.State().String())
}

func TestRecordEvent(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)

	e, err := s.RecordEvent(RecordInput{Type: models.EventOrder, StoreID: "s1", Data: &models.EventData{OrderValue: models.Float64(12.5)}})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, day1.Format(time.RFC3339Nano), e.Timestamp)
	assert.Equal(t, 12.5, e.OrderValue())

	e2, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)
	assert.NotEqual(t, e.ID, e2.ID)

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, e.ID, events[0].ID)
	assert.Equal(t, e2.ID, events[1].ID)
	assert.Equal(t, Saved, s.LastSave())

	_, err = s.RecordEvent(RecordInput{Type: "click", StoreID: "s1"})
	assert.ErrorIs(t, err, models.ErrInvalidEventType)
	_, err = s.RecordEvent(RecordInput{Type: models.EventVisit})
	assert.ErrorIs(t, err, models.ErrEmptyStoreID)
}

func TestRecordEventDoesNotAliasInput(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))
	data := &models.EventData{OrderValue: models.Float64(10)}

	_, err := s.RecordEvent(RecordInput{Type: models.EventOrder, StoreID: "s1", Data: data})
	require.NoError(t, err)
	*data.OrderValue = 99

	assert.Equal(t, 10.0, s.OrderValueSum("s1", nil))
}

func TestRecordEventPersists(t *testing.T) {
	clock := newTestClock(day1)
	local := kvstore.NewMemoryStore(0)
	s := newTestStore(t, local, clock)

	_, err := s.RecordProductView("s1", "p1")
	require.NoError(t, err)

	raw, ok, err := local.Get(LogKey)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted []models.AnalyticsEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, "p1", persisted[0].Data.ProductID)

	reloaded := newTestStore(t, local, clock)
	assert.Equal(t, 1, reloaded.ProductViewCount("s1", nil))
}

func TestRecordVisitDedup(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)
	s.ensureSession()

	recorded, err := s.RecordVisit("s1")
	require.NoError(t, err)
	assert.True(t, recorded)

	recorded, err = s.RecordVisit("s1")
	require.NoError(t, err)
	assert.False(t, recorded)

	assert.Equal(t, 1, s.VisitCount("s1", nil))
	assert.Len(t, s.Events(), 1)

	// Another store and another day are not deduplicated.
	recorded, err = s.RecordVisit("s2")
	require.NoError(t, err)
	assert.True(t, recorded)

	clock.Advance(24 * time.Hour)
	recorded, err = s.RecordVisit("s1")
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, 2, s.VisitCount("s1", nil))
}

func TestRecordVisitNewSessionSameDay(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))

	ok, err := s.RecordVisitForSession("s1", "session-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RecordVisitForSession("s1", "session-b")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, s.Events(), 2)
	assert.Equal(t, 1, s.VisitCount("s1", nil))
}

func TestRecordVisitInterleavedSessions(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))

	for _, step := range []struct {
		session string
		want    bool
	}{
		{"session-a", true},
		{"session-b", true},
		{"session-a", false},
		{"session-b", false},
		{"session-c", true},
	} {
		ok, err := s.RecordVisitForSession("s1", step.session)
		require.NoError(t, err)
		assert.Equal(t, step.want, ok, step.session)
	}

	assert.Len(t, s.Events(), 3)
}

func TestVisitIndexPrunedToDedupWindow(t *testing.T) {
	clock := newTestClock(day1)
	local := kvstore.NewMemoryStore(0)
	s := newTestStore(t, local, clock)

	for i := 0; i < 10; i++ {
		_, err := s.RecordVisitForSession("s1", "tab")
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	raw, ok, err := local.Get(VisitTrackingKey)
	require.NoError(t, err)
	require.True(t, ok)
	var index map[string]visitMark
	require.NoError(t, json.Unmarshal([]byte(raw), &index))

	// Last write happened on day1+9: the seven days day1+3 .. day1+9 remain.
	assert.Len(t, index, 7)
	assert.NotContains(t, index, "s1_2026-03-03")
	assert.Contains(t, index, "s1_2026-03-04")
	assert.Equal(t, []string{"tab"}, index["s1_2026-03-10"].Sessions)
}

func TestSessionTokenReused(t *testing.T) {
	session := kvstore.NewMemoryStore(0)
	require.NoError(t, session.Set(SessionKey, "existing-token"))

	s := New(Options{Session: session, Logger: logging.Nop()})
	require.NoError(t, s.Init(context.Background()))
	defer s.Dispose()

	assert.Equal(t, "existing-token", s.SessionID())
}

func TestSessionTokenCreated(t *testing.T) {
	session := kvstore.NewMemoryStore(0)
	s := New(Options{Session: session, Logger: logging.Nop()})
	require.NoError(t, s.Init(context.Background()))
	defer s.Dispose()

	token, ok, _ := session.Get(SessionKey)
	require.True(t, ok)
	assert.Equal(t, s.SessionID(), token)
	assert.Len(t, token, 36)
}

func TestOrderAggregation(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)

	record := func(at time.Time, value float64) {
		clock.Set(at)
		_, err := s.RecordEvent(RecordInput{Type: models.EventOrder, StoreID: "S", Data: &models.EventData{OrderValue: models.Float64(value)}})
		require.NoError(t, err)
	}
	record(day1, 10)
	record(day1.Add(2*time.Hour), 15)
	record(day1.AddDate(0, 0, 7), 20)
	// Missing value counts as zero.
	_, err := s.RecordEvent(RecordInput{Type: models.EventOrder, StoreID: "other"})
	require.NoError(t, err)

	firstDay := DayRange(day1, day1, time.UTC, "day1")
	firstWeek := DayRange(day1, day1.AddDate(0, 0, 6), time.UTC, "week")

	assert.Equal(t, 25.0, s.OrderValueSum("S", &firstDay))
	assert.Equal(t, 2, s.OrderCount("S", &firstWeek))
	assert.Equal(t, 3, s.OrderCount("S", nil))
	assert.Equal(t, 45.0, s.OrderValueSum("S", nil))
	assert.Equal(t, 0.0, s.OrderValueSum("other", nil))
	assert.Equal(t, 1, s.OrderCount("other", nil))
}

func TestRangeBoundsInclusive(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)

	r := DayRange(day1, day1, time.UTC, "")
	for _, at := range []time.Time{r.Start, r.End, r.Start.Add(-time.Nanosecond), r.End.Add(time.Nanosecond)} {
		clock.Set(at)
		_, err := s.RecordEvent(RecordInput{Type: models.EventProductView, StoreID: "s1", Data: &models.EventData{ProductID: "p"}})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, s.ProductViewCount("s1", &r))
}

func TestRetentionPruneOnLoad(t *testing.T) {
	now := day1
	old := models.AnalyticsEvent{ID: "old", Type: models.EventVisit, StoreID: "s1", Timestamp: now.Add(-91 * 24 * time.Hour).Format(time.RFC3339Nano)}
	recent := models.AnalyticsEvent{ID: "recent", Type: models.EventVisit, StoreID: "s1", Timestamp: now.Add(-89 * 24 * time.Hour).Format(time.RFC3339Nano)}
	raw, err := json.Marshal([]models.AnalyticsEvent{old, recent})
	require.NoError(t, err)

	local := kvstore.NewMemoryStore(0)
	require.NoError(t, local.Set(LogKey, string(raw)))

	s := New(Options{Local: local, Logger: logging.Nop(), Now: newTestClock(now).Now, Location: time.UTC})
	events := s.LoadLog()

	require.Len(t, events, 1)
	assert.Equal(t, "recent", events[0].ID)

	stored, _, _ := local.Get(LogKey)
	assert.NotContains(t, stored, `"old"`)
}

func TestPrune(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)

	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)
	clock.Advance(2 * 24 * time.Hour)
	_, err = s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)

	clock.Advance(89 * 24 * time.Hour)
	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Prune())
}

func TestPeriodicPrune(t *testing.T) {
	clock := newTestClock(day1)
	s := New(Options{
		Logger:        logging.Nop(),
		Now:           clock.Now,
		Location:      time.UTC,
		PruneInterval: 5 * time.Millisecond,
	})
	require.NoError(t, s.Init(context.Background()))
	defer s.Dispose()

	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)

	clock.Advance(91 * 24 * time.Hour)
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDisposeIdempotent(t *testing.T) {
	s := New(Options{Logger: logging.Nop(), PruneInterval: time.Millisecond})
	s.Dispose()
	require.NoError(t, s.Init(context.Background()))
	s.Dispose()
	s.Dispose()

	assert.Equal(t, StateReady, s.State())
}

func TestInitStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Logger: logging.Nop(), PruneInterval: time.Millisecond})
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prune loop did not stop on context cancellation")
	}
	s.Dispose()
}

func TestIngest(t *testing.T) {
	clock := newTestClock(day1)
	s := newTestStore(t, nil, clock)

	event := models.AnalyticsEvent{
		ID:        "evt-1",
		Type:      models.EventOrder,
		StoreID:   "s1",
		Timestamp: day1.Add(-time.Hour).Format(time.RFC3339Nano),
		Data:      &models.EventData{OrderValue: models.Float64(30)},
	}
	require.NoError(t, s.Ingest(event))
	assert.ErrorIs(t, s.Ingest(event), ErrDuplicateEvent)

	expired := event
	expired.ID = "evt-2"
	expired.Timestamp = day1.AddDate(0, 0, -100).Format(time.RFC3339Nano)
	assert.ErrorIs(t, s.Ingest(expired), ErrExpiredEvent)

	invalid := event
	invalid.ID = ""
	assert.ErrorIs(t, s.Ingest(invalid), models.ErrEmptyEventID)

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, event.Timestamp, events[0].Timestamp)
	assert.Equal(t, 30.0, s.OrderValueSum("s1", nil))
}

func TestIngestNotReady(t *testing.T) {
	s := New(Options{Logger: logging.Nop()})
	err := s.Ingest(models.AnalyticsEvent{ID: "x", Type: models.EventVisit, StoreID: "s", Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSinkIsBestEffort(t *testing.T) {
	sink := new(MockSink)
	sink.On("Publish", mock.MatchedBy(func(e models.AnalyticsEvent) bool { return e.StoreID == "s1" })).
		Return(errors.New("broker down")).Once()

	s := New(Options{Logger: logging.Nop(), Sink: sink})
	s.LoadLog()

	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	// Ingested events are not re-published.
	require.NoError(t, s.Ingest(models.AnalyticsEvent{ID: "ext", Type: models.EventVisit, StoreID: "s1", Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}))

	s.Dispose()
	sink.AssertExpectations(t)
	sink.AssertNumberOfCalls(t, "Publish", 1)
}

// blockingSink holds every Publish until release is closed.
type blockingSink struct {
	entered   chan struct{}
	release   chan struct{}
	published chan string
}

func (b *blockingSink) Publish(event models.AnalyticsEvent) error {
	b.entered <- struct{}{}
	<-b.release
	b.published <- event.ID
	return nil
}

func TestSlowSinkDoesNotBlockRecording(t *testing.T) {
	sink := &blockingSink{
		entered:   make(chan struct{}, 8),
		release:   make(chan struct{}),
		published: make(chan string, 8),
	}
	var logs bytes.Buffer
	s := New(Options{Logger: logging.NewWriterLogger(&logs, "test"), Sink: sink, SinkQueue: 2})
	s.LoadLog()

	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("sink never received the first event")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordEvent waited on the sink")
	}
	assert.Equal(t, 5, s.Len())
	assert.Contains(t, logs.String(), "Analytics sink queue full")

	close(sink.release)
	s.Dispose()
	close(sink.published)

	var ids []string
	for id := range sink.published {
		ids = append(ids, id)
	}
	// One event was in flight and two were queued; the rest were dropped.
	assert.Len(t, ids, 3)
	assert.Equal(t, s.Events()[0].ID, ids[0])

	// Recording after Dispose keeps working and no longer publishes.
	_, err = s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)
}

func TestRecordOrder(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))
	order := models.Order{
		Items: []models.OrderItem{
			{Product: models.Product{ID: "p1", Name: "Alfajor", Price: 10}, Quantity: 2},
		},
		CustomerName: "Ana",
		DeliveryCost: 5,
		CurrencyCode: "EUR",
	}

	e, err := s.RecordOrder("s1", order)
	require.NoError(t, err)
	assert.Equal(t, models.EventOrder, e.Type)
	assert.Equal(t, 25.0, e.OrderValue())
	require.Len(t, e.Data.Items, 1)
	assert.Equal(t, 2, e.Data.Items[0].Quantity)
	assert.Equal(t, "Ana", e.Data.CustomerName)
	assert.Equal(t, "EUR", e.Data.Currency)
}

func TestEventsReturnsCopy(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))
	_, err := s.RecordEvent(RecordInput{Type: models.EventVisit, StoreID: "s1"})
	require.NoError(t, err)

	events := s.Events()
	events[0].StoreID = "mutated"

	assert.Equal(t, "s1", s.Events()[0].StoreID)
}

func TestConcurrentRecording(t *testing.T) {
	s := newTestStore(t, nil, newTestClock(day1))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, _ = s.RecordProductView("s1", "p")
				_ = s.Stats("s1", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, s.ProductViewCount("s1", nil))
}

func TestLoadLogCorrupted(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":  "{{{",
		"object":    `{"id":"x"}`,
		"truncated": `[{"id":"a","type":"visit"`,
	} {
		t.Run(name, func(t *testing.T) {
			local := kvstore.NewMemoryStore(0)
			require.NoError(t, local.Set(LogKey, raw))

			s := New(Options{Local: local, Logger: logging.Nop()})
			events := s.LoadLog()

			assert.Empty(t, events)
			assert.Equal(t, StateReady, s.State())
		})
	}
}

func TestLoadLogReadError(t *testing.T) {
	local := kvstore.NewFileStore(t.TempDir(), 0)
	s := New(Options{Local: local, Logger: logging.Nop()})

	assert.Empty(t, s.LoadLog())
	assert.Equal(t, StateReady, s.State())
}

func countEvents(raw string) int {
	return strings.Count(raw, `"id":`)
}
