package analytics

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/pkg/models"
)

// SaveOutcome is the result of one persistence cycle.
type SaveOutcome int

const (
	// NotSaved means no save has been attempted yet.
	NotSaved SaveOutcome = iota
	// Saved means the capped log was written on the first attempt.
	Saved
	// SavedAfterPrune means the first write hit the quota, the in-memory log
	// was cut to the quota fallback size and the second write succeeded.
	SavedAfterPrune
	// Abandoned means the cycle gave up. The in-memory log is kept.
	Abandoned
)

func (o SaveOutcome) String() string {
	switch o {
	case NotSaved:
		return "not_saved"
	case Saved:
		return "saved"
	case SavedAfterPrune:
		return "saved_after_prune"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// LoadLog reads the persisted log, drops events past the retention horizon
// and moves the store to StateReady. A missing, unreadable or malformed log
// yields an empty one; the problem is logged, never returned.
func (s *Store) LoadLog() []models.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateLoading
	s.replaceLocked(s.readLogLocked())

	if removed := s.pruneLocked(); removed > 0 {
		s.opts.Logger.Log(models.LogLevelINFO, "Expired analytics events pruned on load", map[string]interface{}{
			"removed": removed,
		})
		s.persistLocked()
	}

	s.state = StateReady
	out := make([]models.AnalyticsEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) readLogLocked() []models.AnalyticsEvent {
	raw, ok, err := s.opts.Local.Get(LogKey)
	if err != nil {
		s.opts.Logger.LogError("Reading analytics log, starting empty", err, nil)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var events []models.AnalyticsEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		s.opts.Logger.Log(models.LogLevelWARN, "Discarding corrupted analytics log", map[string]interface{}{
			"error": err.Error(),
			"bytes": len(raw),
		})
		return nil
	}
	return events
}

// Save persists the log now and returns the outcome.
func (s *Store) Save() SaveOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// LastSave returns the outcome of the most recent persistence cycle.
func (s *Store) LastSave() SaveOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSave
}

// persistLocked writes the most recent MaxPersisted events. On a quota error
// the in-memory log is cut to QuotaFallback events and the write is retried
// once.
func (s *Store) persistLocked() SaveOutcome {
	err := s.writeLocked()
	switch {
	case err == nil:
		s.lastSave = Saved
	case errors.Is(err, kvstore.ErrQuotaExceeded):
		if n := len(s.events); n > s.opts.QuotaFallback {
			kept := make([]models.AnalyticsEvent, s.opts.QuotaFallback)
			copy(kept, s.events[n-s.opts.QuotaFallback:])
			s.replaceLocked(kept)
		}
		if retryErr := s.writeLocked(); retryErr != nil {
			s.opts.Logger.LogError("Analytics log not persisted, quota still exceeded", retryErr, map[string]interface{}{
				"events": len(s.events),
			})
			s.lastSave = Abandoned
		} else {
			s.opts.Logger.Log(models.LogLevelWARN, "Analytics log pruned to fit storage quota", map[string]interface{}{
				"events": len(s.events),
			})
			s.lastSave = SavedAfterPrune
		}
	default:
		s.opts.Logger.LogError("Analytics log not persisted", err, nil)
		s.lastSave = Abandoned
	}
	return s.lastSave
}

func (s *Store) writeLocked() error {
	events := s.events
	if len(events) > s.opts.MaxPersisted {
		events = events[len(events)-s.opts.MaxPersisted:]
	}
	if events == nil {
		events = []models.AnalyticsEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return s.opts.Local.Set(LogKey, string(raw))
}

// visitMark is one entry of the dedup index, keyed "<storeID>_<day>". It
// holds every session that already visited the store that day.
type visitMark struct {
	Sessions []string `json:"sessions"`
	Day      string   `json:"day"`
}

func (m visitMark) has(sessionID string) bool {
	for _, s := range m.Sessions {
		if s == sessionID {
			return true
		}
	}
	return false
}

// RecordVisit records a visit to storeID for this store's own session token.
// It reports whether an event was recorded; a second call on the same
// calendar day is a no-op.
func (s *Store) RecordVisit(storeID string) (bool, error) {
	s.ensureSession()
	return s.RecordVisitForSession(storeID, s.SessionID())
}

// RecordVisitForSession is RecordVisit for an explicit session token, used
// when one store serves many browser sessions.
func (s *Store) RecordVisitForSession(storeID, sessionID string) (bool, error) {
	if storeID == "" {
		return false, models.ErrEmptyStoreID
	}
	if s.State() != StateReady {
		return false, ErrNotReady
	}

	now := s.opts.Now()
	day := dayKey(now, s.opts.Location)
	key := storeID + "_" + day

	s.mu.Lock()
	index := s.readVisitIndexLocked()
	mark := index[key]
	if mark.has(sessionID) {
		s.mu.Unlock()
		return false, nil
	}
	mark.Day = day
	mark.Sessions = append(mark.Sessions, sessionID)
	index[key] = mark
	s.pruneVisitIndex(index)
	s.writeVisitIndexLocked(index)
	s.mu.Unlock()

	_, err := s.RecordEvent(RecordInput{
		Type:    models.EventVisit,
		StoreID: storeID,
		Data:    &models.EventData{SessionID: sessionID},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) readVisitIndexLocked() map[string]visitMark {
	index := make(map[string]visitMark)
	raw, ok, err := s.opts.Local.Get(VisitTrackingKey)
	if err != nil || !ok || raw == "" {
		return index
	}
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		s.opts.Logger.Log(models.LogLevelWARN, "Discarding corrupted visit index", map[string]interface{}{
			"error": err.Error(),
		})
		return make(map[string]visitMark)
	}
	return index
}

// pruneVisitIndex keeps marks for the DedupWindow calendar days ending today.
func (s *Store) pruneVisitIndex(index map[string]visitMark) {
	back := max(s.opts.DedupWindow-24*time.Hour, 0)
	oldest := dayKey(s.opts.Now().Add(-back), s.opts.Location)
	for k, mark := range index {
		// Day keys are YYYY-MM-DD, so lexical order is chronological.
		if mark.Day < oldest {
			delete(index, k)
		}
	}
}

func (s *Store) writeVisitIndexLocked(index map[string]visitMark) {
	raw, err := json.Marshal(index)
	if err != nil {
		s.opts.Logger.LogError("Encoding visit index", err, nil)
		return
	}
	if err := s.opts.Local.Set(VisitTrackingKey, string(raw)); err != nil {
		s.opts.Logger.LogError("Visit index not persisted", err, nil)
	}
}
