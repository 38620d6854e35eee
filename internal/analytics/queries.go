package analytics

import (
	"sort"
	"time"

	"github.com/tutaviendo/storefront/pkg/models"
)

// StoreStats is the dashboard summary of one store over a range.
type StoreStats struct {
	StoreID           string  `json:"store_id"`
	Range             string  `json:"range,omitempty"`
	Visits            int     `json:"visits"`
	Orders            int     `json:"orders"`
	Revenue           float64 `json:"revenue"`
	ProductViews      int     `json:"product_views"`
	AverageOrderValue float64 `json:"average_order_value"`
	// ConversionRate is orders per visited day, in percent.
	ConversionRate float64 `json:"conversion_rate"`
}

// ProductStat aggregates views and ordered units for one product.
type ProductStat struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name,omitempty"`
	Views        int    `json:"views"`
	UnitsOrdered int    `json:"units_ordered"`
}

// each calls fn for every event of storeID and type typ whose timestamp is
// in rng (nil means no bound).
func (s *Store) each(storeID string, typ models.EventType, rng *models.DateRange, fn func(e *models.AnalyticsEvent, t time.Time)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		e := &s.events[i]
		if e.StoreID != storeID || e.Type != typ {
			continue
		}
		t, ok := e.Time()
		if !ok {
			continue
		}
		if rng != nil && !rng.Contains(t) {
			continue
		}
		fn(e, t)
	}
}

// VisitCount returns the number of distinct calendar days with at least one
// visit, not the number of visit events.
func (s *Store) VisitCount(storeID string, rng *models.DateRange) int {
	days := make(map[string]struct{})
	s.each(storeID, models.EventVisit, rng, func(_ *models.AnalyticsEvent, t time.Time) {
		days[dayKey(t, s.opts.Location)] = struct{}{}
	})
	return len(days)
}

// OrderCount returns the raw number of order events.
func (s *Store) OrderCount(storeID string, rng *models.DateRange) int {
	n := 0
	s.each(storeID, models.EventOrder, rng, func(*models.AnalyticsEvent, time.Time) { n++ })
	return n
}

// OrderValueSum sums data.orderValue over order events; missing values count
// as zero.
func (s *Store) OrderValueSum(storeID string, rng *models.DateRange) float64 {
	var sum float64
	s.each(storeID, models.EventOrder, rng, func(e *models.AnalyticsEvent, _ time.Time) {
		sum += e.OrderValue()
	})
	return sum
}

// ProductViewCount returns the raw number of product_view events.
func (s *Store) ProductViewCount(storeID string, rng *models.DateRange) int {
	n := 0
	s.each(storeID, models.EventProductView, rng, func(*models.AnalyticsEvent, time.Time) { n++ })
	return n
}

// TopProducts ranks products by views, then units ordered. limit <= 0 returns
// all of them.
func (s *Store) TopProducts(storeID string, rng *models.DateRange, limit int) []ProductStat {
	byID := make(map[string]*ProductStat)
	get := func(id string) *ProductStat {
		p, ok := byID[id]
		if !ok {
			p = &ProductStat{ProductID: id}
			byID[id] = p
		}
		return p
	}

	s.each(storeID, models.EventProductView, rng, func(e *models.AnalyticsEvent, _ time.Time) {
		if e.Data == nil || e.Data.ProductID == "" {
			return
		}
		get(e.Data.ProductID).Views++
	})
	s.each(storeID, models.EventOrder, rng, func(e *models.AnalyticsEvent, _ time.Time) {
		if e.Data == nil {
			return
		}
		for _, it := range e.Data.Items {
			if it.ProductID == "" {
				continue
			}
			p := get(it.ProductID)
			p.UnitsOrdered += it.Quantity
			if it.Name != "" {
				p.Name = it.Name
			}
		}
	})

	out := make([]ProductStat, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		if out[i].UnitsOrdered != out[j].UnitsOrdered {
			return out[i].UnitsOrdered > out[j].UnitsOrdered
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats computes the dashboard summary for storeID.
func (s *Store) Stats(storeID string, rng *models.DateRange) StoreStats {
	st := StoreStats{
		StoreID:      storeID,
		Visits:       s.VisitCount(storeID, rng),
		Orders:       s.OrderCount(storeID, rng),
		Revenue:      s.OrderValueSum(storeID, rng),
		ProductViews: s.ProductViewCount(storeID, rng),
	}
	if rng != nil {
		st.Range = rng.Label
	}
	if st.Orders > 0 {
		st.AverageOrderValue = st.Revenue / float64(st.Orders)
	}
	if st.Visits > 0 {
		st.ConversionRate = float64(st.Orders) / float64(st.Visits) * 100
	}
	return st
}

// DailyOrderValues returns one revenue bucket per calendar day of rng, oldest
// first.
func (s *Store) DailyOrderValues(storeID string, rng models.DateRange) []float64 {
	days := Days(rng, s.opts.Location)
	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d] = i
	}

	values := make([]float64, len(days))
	s.each(storeID, models.EventOrder, &rng, func(e *models.AnalyticsEvent, t time.Time) {
		if i, ok := index[dayKey(t, s.opts.Location)]; ok {
			values[i] += e.OrderValue()
		}
	})
	return values
}

// StoreIDs lists the stores present in the log, sorted.
func (s *Store) StoreIDs() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, e := range s.events {
		seen[e.StoreID] = struct{}{}
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
