/*
Package analytics keeps the per-store event log behind the merchant
dashboard: visits, orders and product views, persisted to a key-value store,
bounded by a retention horizon and queried by date range.

A Store is created with New, loaded with Init (or LoadLog) and released with
Dispose. All methods are safe for concurrent use.
*/
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/pkg/models"
)

// Storage keys.
const (
	LogKey           = "tutaviendo_analytics"
	VisitTrackingKey = "tutaviendo_visit_tracking"
	SessionKey       = "tutaviendo_session_id"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultRetention     = 90 * 24 * time.Hour
	DefaultMaxPersisted  = 1000
	DefaultQuotaFallback = 500
	DefaultDedupWindow   = 7 * 24 * time.Hour
	DefaultPruneInterval = 24 * time.Hour
	DefaultSinkQueue     = 256
)

var (
	// ErrNotReady is returned by writes before the log has been loaded.
	ErrNotReady = errors.New("analytics: log not loaded")
	// ErrDuplicateEvent is returned by Ingest for an id already in the log.
	ErrDuplicateEvent = errors.New("analytics: duplicate event id")
	// ErrExpiredEvent is returned by Ingest for events past the retention horizon.
	ErrExpiredEvent = errors.New("analytics: event older than retention horizon")
)

// State is the lifecycle state of a Store.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Logger is the logging surface the store needs.
type Logger interface {
	Log(level models.LogLevel, message string, metadata map[string]interface{})
	LogError(message string, err error, metadata map[string]interface{})
}

// Sink receives every event recorded locally, e.g. to forward it to Kafka.
// Publishing is best-effort and runs on a background goroutine: errors are
// logged and otherwise ignored.
type Sink interface {
	Publish(event models.AnalyticsEvent) error
}

// Options configures a Store.
type Options struct {
	// Local holds the event log and the visit dedup index.
	Local kvstore.Store
	// Session holds the session token. Defaults to a fresh MemoryStore.
	Session kvstore.Store
	Logger  Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// Location defines calendar days. Defaults to time.Local.
	Location *time.Location

	Retention     time.Duration
	MaxPersisted  int
	QuotaFallback int
	DedupWindow   time.Duration
	PruneInterval time.Duration

	Sink Sink
	// SinkQueue bounds the events waiting for the Sink. When full, new
	// events are not forwarded.
	SinkQueue int
}

// RecordInput is what callers provide to RecordEvent.
type RecordInput struct {
	Type    models.EventType
	StoreID string
	Data    *models.EventData
}

// Store owns one event log and its dedup index.
type Store struct {
	opts Options

	mu       sync.RWMutex
	state    State
	events   []models.AnalyticsEvent
	ids      map[string]struct{}
	session  string
	lastSave SaveOutcome

	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	outMu     sync.RWMutex
	outbox    chan models.AnalyticsEvent
	outClosed bool
	outWG     sync.WaitGroup
}

// New creates a Store. It does not touch storage until Init or LoadLog.
func New(opts Options) *Store {
	if opts.Local == nil {
		opts.Local = kvstore.NewMemoryStore(0)
	}
	if opts.Session == nil {
		opts.Session = kvstore.NewMemoryStore(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxPersisted <= 0 {
		opts.MaxPersisted = DefaultMaxPersisted
	}
	if opts.QuotaFallback <= 0 || opts.QuotaFallback > opts.MaxPersisted {
		opts.QuotaFallback = min(DefaultQuotaFallback, opts.MaxPersisted)
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.SinkQueue <= 0 {
		opts.SinkQueue = DefaultSinkQueue
	}
	s := &Store{
		opts:     opts,
		ids:      make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
	if opts.Sink != nil {
		s.outbox = make(chan models.AnalyticsEvent, opts.SinkQueue)
		s.outWG.Add(1)
		go s.forward()
	}
	return s
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Location returns the zone that defines calendar days.
func (s *Store) Location() *time.Location {
	return s.opts.Location
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.opts.Now()
}

// SessionID returns the session token, empty before Init.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Init loads the log, resolves the session token and starts the periodic
// prune. The prune loop stops on Dispose or when ctx is done. Calling Init on
// a store that is already loaded only starts what is missing.
func (s *Store) Init(ctx context.Context) error {
	if s.State() == StateUninitialized {
		s.LoadLog()
	}
	s.ensureSession()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopChan == nil {
		return nil
	}
	s.running = true
	s.wg.Add(1)
	go s.pruneLoop(ctx, s.stopChan)
	return nil
}

// Dispose stops the prune loop and waits for queued events to reach the
// Sink. Safe to call more than once, and before Init.
func (s *Store) Dispose() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		ch := s.stopChan
		s.stopChan = nil
		s.mu.Unlock()
		close(ch)

		s.outMu.Lock()
		s.outClosed = true
		if s.outbox != nil {
			close(s.outbox)
		}
		s.outMu.Unlock()
	})
	s.wg.Wait()
	s.outWG.Wait()
}

func (s *Store) pruneLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Prune(); removed > 0 {
				s.opts.Logger.Log(models.LogLevelINFO, "Periodic retention prune", map[string]interface{}{
					"removed": removed,
				})
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) ensureSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != "" {
		return
	}

	token, ok, err := s.opts.Session.Get(SessionKey)
	if err != nil {
		s.opts.Logger.LogError("Reading session token", err, nil)
	}
	if ok && token != "" {
		s.session = token
		return
	}

	s.session = uuid.NewString()
	if err := s.opts.Session.Set(SessionKey, s.session); err != nil {
		s.opts.Logger.LogError("Persisting session token", err, nil)
	}
}

// RecordEvent appends a new event with a fresh id and the current time, then
// persists the log. Storage failures are handled internally and never
// returned.
func (s *Store) RecordEvent(in RecordInput) (models.AnalyticsEvent, error) {
	if !in.Type.Valid() {
		return models.AnalyticsEvent{}, models.ErrInvalidEventType
	}
	if in.StoreID == "" {
		return models.AnalyticsEvent{}, models.ErrEmptyStoreID
	}

	event := models.AnalyticsEvent{
		ID:        uuid.NewString(),
		Type:      in.Type,
		StoreID:   in.StoreID,
		Timestamp: s.opts.Now().UTC().Format(time.RFC3339Nano),
		Data:      cloneData(in.Data),
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return models.AnalyticsEvent{}, ErrNotReady
	}
	s.appendLocked(event)
	s.persistLocked()
	s.mu.Unlock()

	s.publish(event)
	return event, nil
}

// RecordOrder records an order event with its value and line items.
func (s *Store) RecordOrder(storeID string, order models.Order) (models.AnalyticsEvent, error) {
	items := make([]models.EventItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.EventItem{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Quantity:  it.Quantity,
			Price:     it.Product.Price,
		})
	}
	return s.RecordEvent(RecordInput{
		Type:    models.EventOrder,
		StoreID: storeID,
		Data: &models.EventData{
			OrderValue:   models.Float64(order.Total()),
			CustomerName: order.CustomerName,
			Items:        items,
			Currency:     order.CurrencyCode,
		},
	})
}

// RecordProductView records that productID was opened.
func (s *Store) RecordProductView(storeID, productID string) (models.AnalyticsEvent, error) {
	return s.RecordEvent(RecordInput{
		Type:    models.EventProductView,
		StoreID: storeID,
		Data:    &models.EventData{ProductID: productID},
	})
}

// Ingest appends an event produced elsewhere, keeping its id and timestamp.
// It is not forwarded to the Sink.
func (s *Store) Ingest(event models.AnalyticsEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	t, _ := event.Time()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return ErrNotReady
	}
	if _, dup := s.ids[event.ID]; dup {
		return ErrDuplicateEvent
	}
	if t.Before(s.cutoff()) {
		return ErrExpiredEvent
	}

	event.Data = cloneData(event.Data)
	s.appendLocked(event)
	s.persistLocked()
	return nil
}

func (s *Store) appendLocked(event models.AnalyticsEvent) {
	s.events = append(s.events, event)
	s.ids[event.ID] = struct{}{}
}

// publish queues event for the Sink without waiting on it.
func (s *Store) publish(event models.AnalyticsEvent) {
	if s.outbox == nil {
		return
	}
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	if s.outClosed {
		return
	}
	select {
	case s.outbox <- event:
	default:
		s.opts.Logger.Log(models.LogLevelWARN, "Analytics sink queue full, event not published", map[string]interface{}{
			"event_id": event.ID,
			"store_id": event.StoreID,
		})
	}
}

func (s *Store) forward() {
	defer s.outWG.Done()
	for event := range s.outbox {
		if err := s.opts.Sink.Publish(event); err != nil {
			s.opts.Logger.LogError("Publishing analytics event", err, map[string]interface{}{
				"event_id": event.ID,
				"type":     string(event.Type),
				"store_id": event.StoreID,
			})
		}
	}
}

func (s *Store) cutoff() time.Time {
	return s.opts.Now().Add(-s.opts.Retention)
}

// Prune drops events older than the retention horizon and persists the
// result when anything was removed. It returns the number of events dropped.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.pruneLocked()
	if removed > 0 && s.state == StateReady {
		s.persistLocked()
	}
	return removed
}

// pruneLocked keeps events whose timestamp is at or after the cutoff.
// Events with unreadable timestamps cannot be aged and are dropped.
func (s *Store) pruneLocked() int {
	cutoff := s.cutoff()
	kept := make([]models.AnalyticsEvent, 0, len(s.events))
	for _, e := range s.events {
		if t, ok := e.Time(); ok && !t.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.events) - len(kept)
	if removed > 0 {
		s.replaceLocked(kept)
	}
	return removed
}

func (s *Store) replaceLocked(events []models.AnalyticsEvent) {
	s.events = events
	s.ids = make(map[string]struct{}, len(events))
	for _, e := range events {
		s.ids[e.ID] = struct{}{}
	}
}

// Events returns a copy of the log in append order.
func (s *Store) Events() []models.AnalyticsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AnalyticsEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func cloneData(d *models.EventData) *models.EventData {
	if d == nil {
		return nil
	}
	c := *d
	if d.OrderValue != nil {
		c.OrderValue = models.Float64(*d.OrderValue)
	}
	if d.Items != nil {
		c.Items = append([]models.EventItem(nil), d.Items...)
	}
	return &c
}

type nopLogger struct{}

func (nopLogger) Log(models.LogLevel, string, map[string]interface{}) {}
func (nopLogger) LogError(string, error, map[string]interface{}) {}
