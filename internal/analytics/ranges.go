package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/tutaviendo/storefront/pkg/models"
)

const dayLayout = "2006-01-02"

// Preset range names accepted by ParseRange.
const (
	RangeToday     = "today"
	RangeLast7     = "7d"
	RangeLast30    = "30d"
	RangeThisMonth = "month"
)

// ErrUnknownRange is returned by ParseRange for unsupported names.
var ErrUnknownRange = errors.New("analytics: unknown range")

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DayRange covers the calendar days from..to inclusive.
func DayRange(from, to time.Time, loc *time.Location, label string) models.DateRange {
	return models.DateRange{
		Start: StartOfDay(from, loc),
		End:   EndOfDay(to, loc),
		Label: label,
	}
}

// PresetRanges returns the dashboard ranges, all ending today: Hoy, Últimos 7
// días, Últimos 30 días and Este mes.
func PresetRanges(now time.Time, loc *time.Location) []models.DateRange {
	names := []string{RangeToday, RangeLast7, RangeLast30, RangeThisMonth}
	out := make([]models.DateRange, 0, len(names))
	for _, name := range names {
		r, _ := ParseRange(name, now, loc)
		out = append(out, r)
	}
	return out
}

// ParseRange resolves a preset range name relative to now.
func ParseRange(name string, now time.Time, loc *time.Location) (models.DateRange, error) {
	switch name {
	case RangeToday:
		return DayRange(now, now, loc, "Hoy"), nil
	case RangeLast7:
		return DayRange(now.In(loc).AddDate(0, 0, -6), now, loc, "Últimos 7 días"), nil
	case RangeLast30:
		return DayRange(now.In(loc).AddDate(0, 0, -29), now, loc, "Últimos 30 días"), nil
	case RangeThisMonth:
		local := now.In(loc)
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return DayRange(first, now, loc, "Este mes"), nil
	}
	return models.DateRange{}, fmt.Errorf("%w: %q", ErrUnknownRange, name)
}

// ParseDays builds a range from two YYYY-MM-DD dates, both inclusive.
func ParseDays(start, end string, loc *time.Location) (models.DateRange, error) {
	from, err := time.ParseInLocation(dayLayout, start, loc)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid start date: %w", err)
	}
	to, err := time.ParseInLocation(dayLayout, end, loc)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid end date: %w", err)
	}
	if to.Before(from) {
		return models.DateRange{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return DayRange(from, to, loc, start+" / "+end), nil
}

// Days lists the calendar days covered by r as YYYY-MM-DD keys.
func Days(r models.DateRange, loc *time.Location) []string {
	var days []string
	end := dayKey(r.End, loc)
	for d := StartOfDay(r.Start, loc); ; d = d.AddDate(0, 0, 1) {
		key := dayKey(d, loc)
		if key > end {
			break
		}
		days = append(days, key)
	}
	return days
}
