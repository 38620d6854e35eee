package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/tutaviendo/storefront/internal/analytics"
	"github.com/tutaviendo/storefront/internal/kvstore"
	"github.com/tutaviendo/storefront/pkg/models"
)

// RangeCycle is the order in which the dashboard switches preset ranges.
var RangeCycle = []string{
	analytics.RangeToday,
	analytics.RangeLast7,
	analytics.RangeLast30,
	analytics.RangeThisMonth,
}

// readOnly keeps the monitor from ever writing the tracker's store file.
type readOnly struct {
	kvstore.Store
}

func (readOnly) Set(string, string) error { return nil }
func (readOnly) Remove(string) error      { return nil }

// StatsSnapshot is one computation of the store stats.
type StatsSnapshot struct {
	Range       models.DateRange
	Stores      []analytics.StoreStats
	Daily       []float64
	DailyLabels []string
	Events      int
	UpdatedAt   time.Time
}

// StatsView computes per-store stats from an analytics store file.
type StatsView struct {
	store    *analytics.Store
	mu       sync.RWMutex
	rangeIdx int
	limit    int
	snapshot StatsSnapshot
}

// NewStatsView reads local without ever writing to it. rangeName must be one
// of RangeCycle; unknown names fall back to the first preset.
func NewStatsView(local kvstore.Store, loc *time.Location, now func() time.Time, rangeName string, limit int) *StatsView {
	v := &StatsView{
		store: analytics.New(analytics.Options{
			Local:    readOnly{local},
			Location: loc,
			Now:      now,
		}),
		limit: limit,
	}
	for i, name := range RangeCycle {
		if name == rangeName {
			v.rangeIdx = i
		}
	}
	return v
}

// RangeName returns the preset currently shown.
func (v *StatsView) RangeName() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return RangeCycle[v.rangeIdx]
}

// NextRange switches to the next preset and returns its name.
func (v *StatsView) NextRange() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rangeIdx = (v.rangeIdx + 1) % len(RangeCycle)
	return RangeCycle[v.rangeIdx]
}

// Refresh reloads the event log and recomputes the snapshot.
func (v *StatsView) Refresh() (StatsSnapshot, error) {
	events := v.store.LoadLog()
	loc := v.store.Location()
	now := v.store.Now()

	rng, err := analytics.ParseRange(v.RangeName(), now, loc)
	if err != nil {
		return StatsSnapshot{}, err
	}

	snap := StatsSnapshot{
		Range:       rng,
		Events:      len(events),
		DailyLabels: analytics.Days(rng, loc),
		UpdatedAt:   now,
	}
	snap.Daily = make([]float64, len(snap.DailyLabels))

	for _, id := range v.store.StoreIDs() {
		stats := v.store.Stats(id, &rng)
		if stats.Visits == 0 && stats.Orders == 0 && stats.ProductViews == 0 {
			continue
		}
		snap.Stores = append(snap.Stores, stats)
		for i, value := range v.store.DailyOrderValues(id, rng) {
			if i < len(snap.Daily) {
				snap.Daily[i] += value
			}
		}
	}

	sort.SliceStable(snap.Stores, func(i, j int) bool {
		if snap.Stores[i].Revenue != snap.Stores[j].Revenue {
			return snap.Stores[i].Revenue > snap.Stores[j].Revenue
		}
		return snap.Stores[i].StoreID < snap.Stores[j].StoreID
	})
	if v.limit > 0 && len(snap.Stores) > v.limit {
		snap.Stores = snap.Stores[:v.limit]
	}

	v.mu.Lock()
	v.snapshot = snap
	v.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last computed snapshot.
func (v *StatsView) Snapshot() StatsSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot
}
