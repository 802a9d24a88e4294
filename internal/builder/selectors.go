package builder

import (
	"time"

	"itinerary/internal/model"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// CurrentDay returns the day matching the active index, if it exists.
func (s *Store) CurrentDay() (Day, bool) {
	if pos := s.indexOfDay(s.activeDayIndex); pos >= 0 {
		return s.days[pos], true
	}
	return Day{}, false
}

// Day returns the day with the given index, if it exists.
func (s *Store) Day(dayIndex int) (Day, bool) {
	if pos := s.indexOfDay(dayIndex); pos >= 0 {
		return s.days[pos], true
	}
	return Day{}, false
}

// PlaceIndex builds a lookup from place id to place. It is rebuilt on every
// call.
func (s *Store) PlaceIndex() map[string]model.Place {
	out := make(map[string]model.Place, len(s.places))
	for _, p := range s.places {
		out[p.ID] = p
	}
	return out
}

// DateForDay resolves the date of dayIndex: the day's own date when the day
// exists, else the trip start date plus dayIndex days, else today plus
// dayIndex days.
func (s *Store) DateForDay(dayIndex int) string {
	if pos := s.indexOfDay(dayIndex); pos >= 0 {
		return s.days[pos].Date
	}
	if s.currentTrip != nil && s.currentTrip.StartDate != "" {
		if start, ok := parseDate(s.currentTrip.StartDate); ok {
			return formatISO(start.AddDate(0, 0, dayIndex))
		}
	}
	return formatISO(s.now().AddDate(0, 0, dayIndex))
}

func formatISO(t time.Time) string { return t.UTC().Format(isoLayout) }

// parseDate accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func parseDate(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
