package builder

import "itinerary/internal/model"

// Event is a scheduled visit to a place within a day. ClientID is assigned
// once and is the only identity used for removal and reordering.
type Event struct {
	ClientID string `json:"clientId"`
	model.TripEvent
}

// Day is one day of the trip draft. Events are ordered by Order, which is
// always 0..n-1.
type Day struct {
	DayIndex int     `json:"dayIndex"`
	Date     string  `json:"date"`
	Events   []Event `json:"events"`
}

// State is a read-only snapshot of a Store.
type State struct {
	CurrentTrip    *model.Trip   `json:"currentTrip"`
	Days           []Day         `json:"days"`
	Places         []model.Place `json:"places"`
	ActiveDayIndex int           `json:"activeDayIndex"`
	Loading        bool          `json:"loading"`
	Dirty          bool          `json:"dirty"`
}

// ToTripDays maps builder days back to the persisted shape, dropping client ids.
func ToTripDays(days []Day) []model.TripDay {
	out := make([]model.TripDay, len(days))
	for i, d := range days {
		events := make([]model.TripEvent, len(d.Events))
		for j, e := range d.Events {
			events[j] = e.TripEvent
		}
		out[i] = model.TripDay{DayIndex: d.DayIndex, Date: d.Date, Events: events}
	}
	return out
}

// ToTripEvents maps a day's events to the scheduling input shape.
func ToTripEvents(events []Event) []model.TripEvent {
	out := make([]model.TripEvent, len(events))
	for i, e := range events {
		out[i] = e.TripEvent
	}
	return out
}
