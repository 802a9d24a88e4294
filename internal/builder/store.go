package builder

import (
	"sort"
	"time"

	"itinerary/internal/model"
)

// Store is the in-memory trip draft for one editing session. It is not safe
// for concurrent use; callers serialise access.
type Store struct {
	currentTrip    *model.Trip
	days           []Day
	places         []model.Place
	activeDayIndex int
	loading        bool
	dirty          bool

	now       func() time.Time
	newID     func() string
	listeners []listener
	nextSub   int
}

type listener struct {
	id int
	fn func(State)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the source of "today" used to synthesise day dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides client id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now, newID: NewClientID}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to be called with the new state after every change.
// The returned func removes the registration.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.nextSub++
	id := s.nextSub
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	if len(s.listeners) == 0 {
		return
	}
	st := s.State()
	for _, l := range s.listeners {
		l.fn(st)
	}
}

// State returns a snapshot of the store.
func (s *Store) State() State {
	return State{
		CurrentTrip:    cloneTrip(s.currentTrip),
		Days:           s.days,
		Places:         s.places,
		ActiveDayIndex: s.activeDayIndex,
		Loading:        s.loading,
		Dirty:          s.dirty,
	}
}

func (s *Store) Days() []Day          { return s.days }
func (s *Store) Places() []model.Place { return s.places }
func (s *Store) ActiveDayIndex() int   { return s.activeDayIndex }
func (s *Store) Loading() bool         { return s.loading }
func (s *Store) Dirty() bool           { return s.dirty }

// CurrentTrip returns the last hydrated trip. It is not kept in sync with
// edits to Days.
func (s *Store) CurrentTrip() *model.Trip { return s.State().CurrentTrip }

// HydrateTrip replaces the draft with the days of trip, or clears it when
// trip is nil. Days are sorted by DayIndex and events by Order, then
// renumbered from 0. Events keep their server id as client id when they
// have one and it is not already taken by an earlier event.
func (s *Store) HydrateTrip(trip *model.Trip) {
	var days []Day
	snapshot := cloneTrip(trip)
	if trip != nil {
		taken := map[string]struct{}{}
		src := append([]model.TripDay(nil), snapshot.Days...)
		sort.SliceStable(src, func(i, j int) bool { return src[i].DayIndex < src[j].DayIndex })
		days = make([]Day, 0, len(src))
		for _, d := range src {
			evs := append([]model.TripEvent(nil), d.Events...)
			sort.SliceStable(evs, func(i, j int) bool { return evs[i].Order < evs[j].Order })
			events := make([]Event, len(evs))
			for i, ev := range evs {
				cid := s.pickClientID(taken, ev.ID)
				if ev.ValidationStatus == "" {
					ev.ValidationStatus = model.StatusValid
				}
				events[i] = Event{ClientID: cid, TripEvent: ev}
			}
			days = append(days, Day{DayIndex: d.DayIndex, Date: d.Date, Events: Renumber(events)})
		}
	}

	s.currentTrip = snapshot
	s.days = days
	s.activeDayIndex = 0
	if len(days) > 0 {
		s.activeDayIndex = days[0].DayIndex
	}
	s.dirty = false
	s.notify()
}

// AddDay appends an empty day after the highest existing index and makes it
// the active day.
func (s *Store) AddDay(date string) int {
	next := 0
	if len(s.days) > 0 {
		highest := s.days[0].DayIndex
		for _, d := range s.days[1:] {
			if d.DayIndex > highest {
				highest = d.DayIndex
			}
		}
		next = highest + 1
	}
	days := make([]Day, len(s.days), len(s.days)+1)
	copy(days, s.days)
	s.days = append(days, Day{DayIndex: next, Date: date, Events: []Event{}})
	s.activeDayIndex = next
	s.dirty = true
	s.notify()
	return next
}

// AddEvent appends a visit to placeID at the end of the given day, creating
// the day if it does not exist yet. It returns the new event's client id.
func (s *Store) AddEvent(dayIndex int, placeID string) string {
	days, pos := s.ensureDay(s.cloneDays(), dayIndex)
	day := days[pos]
	cid := s.newID()
	events := make([]Event, len(day.Events), len(day.Events)+1)
	copy(events, day.Events)
	events = append(events, Event{
		ClientID: cid,
		TripEvent: model.TripEvent{
			PlaceID:          placeID,
			Order:            len(day.Events),
			ValidationStatus: model.StatusValid,
		},
	})
	day.Events = Renumber(events)
	days[pos] = day
	sortDays(days)

	s.days = days
	s.dirty = true
	s.notify()
	return cid
}

// RemoveEvent drops the event with clientID from the day. Unknown days and
// ids leave the events untouched; the store is marked dirty either way.
func (s *Store) RemoveEvent(dayIndex int, clientID string) {
	if pos := s.indexOfDay(dayIndex); pos >= 0 {
		days := s.cloneDays()
		day := days[pos]
		kept := make([]Event, 0, len(day.Events))
		for _, e := range day.Events {
			if e.ClientID != clientID {
				kept = append(kept, e)
			}
		}
		day.Events = Renumber(kept)
		days[pos] = day
		s.days = days
	}
	s.dirty = true
	s.notify()
}

// ReorderEvents moves the event activeID into the slot held by overID.
// Other events shift to make room; it is a move, not a swap. Unknown ids or
// activeID == overID leave the order unchanged, but still mark the store
// dirty.
func (s *Store) ReorderEvents(dayIndex int, activeID, overID string) {
	if pos := s.indexOfDay(dayIndex); pos >= 0 {
		events := s.days[pos].Events
		from, to := indexOfEvent(events, activeID), indexOfEvent(events, overID)
		if from >= 0 && to >= 0 && from != to {
			days := s.cloneDays()
			day := days[pos]
			day.Events = Renumber(moveEvent(events, from, to))
			days[pos] = day
			s.days = days
		}
	}
	s.dirty = true
	s.notify()
}

// ApplyScheduledEvents merges scheduling results into a day. Results are
// sorted by Order and aligned by position with the day's current events:
// result i inherits the client id of the event at position i and overwrites
// its scheduling fields. The day ends up with exactly len(scheduled)
// events.
func (s *Store) ApplyScheduledEvents(dayIndex int, scheduled []model.TripEvent) {
	if pos := s.indexOfDay(dayIndex); pos >= 0 {
		sorted := append([]model.TripEvent(nil), scheduled...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

		days := s.cloneDays()
		day := days[pos]
		existing := day.Events
		taken := make(map[string]struct{}, len(sorted))
		events := make([]Event, len(sorted))
		for i, in := range sorted {
			var base Event
			if i < len(existing) {
				base = existing[i]
			}
			merged := mergeScheduled(base, in)
			merged.ClientID = s.pickClientID(taken, base.ClientID, in.ID)
			merged.Order = i
			events[i] = merged
		}
		day.Events = events
		days[pos] = day
		s.days = days
	}
	s.dirty = true
	s.notify()
}

// pickClientID returns the first candidate not already used in the day
// being rebuilt, or a fresh id.
func (s *Store) pickClientID(taken map[string]struct{}, candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := taken[c]; !dup {
			taken[c] = struct{}{}
			return c
		}
	}
	id := s.newID()
	taken[id] = struct{}{}
	return id
}

func mergeScheduled(base Event, in model.TripEvent) Event {
	out := base
	if in.ID != "" {
		out.ID = in.ID
	}
	if in.PlaceID != "" {
		out.PlaceID = in.PlaceID
	}
	out.StartTime = cloneString(in.StartTime)
	out.EndTime = cloneString(in.EndTime)
	out.TravelTimeMin = in.TravelTimeMin
	out.DistanceKm = in.DistanceKm
	switch {
	case in.ValidationStatus != "":
		out.ValidationStatus = in.ValidationStatus
	case out.ValidationStatus == "":
		out.ValidationStatus = model.StatusValid
	}
	out.ValidationReason = cloneString(in.ValidationReason)
	return out
}

// AdoptEventIDs copies server ids from saved days onto the draft's events,
// matching by day index and position. Client ids, times and the dirty flag
// are left alone; only events without a server id are updated.
func (s *Store) AdoptEventIDs(saved []model.TripDay) {
	days := s.cloneDays()
	changed := false
	for _, sd := range saved {
		pos := s.indexOfDay(sd.DayIndex)
		if pos < 0 {
			continue
		}
		day := days[pos]
		var events []Event
		for i, e := range day.Events {
			if i >= len(sd.Events) || e.ID != "" || sd.Events[i].ID == "" {
				continue
			}
			if events == nil {
				events = append([]Event(nil), day.Events...)
			}
			events[i].ID = sd.Events[i].ID
		}
		if events != nil {
			day.Events = events
			days[pos] = day
			changed = true
		}
	}
	if !changed {
		return
	}
	s.days = days
	s.notify()
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(loading bool) {
	if s.loading == loading {
		return
	}
	s.loading = loading
	s.notify()
}

// SetPlaces replaces the cached place list. Passing the list already held
// is a no-op.
func (s *Store) SetPlaces(places []model.Place) {
	if samePlaces(s.places, places) {
		return
	}
	s.places = places
	s.notify()
}

// SetActiveDayIndex selects the current day. The day does not need to exist.
func (s *Store) SetActiveDayIndex(index int) {
	if s.activeDayIndex == index {
		return
	}
	s.activeDayIndex = index
	s.notify()
}

// MarkClean clears the dirty flag after a successful save.
func (s *Store) MarkClean() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.notify()
}

// Reset returns the store to its initial empty state.
func (s *Store) Reset() {
	s.currentTrip = nil
	s.days = nil
	s.places = nil
	s.activeDayIndex = 0
	s.loading = false
	s.dirty = false
	s.notify()
}

// ensureDay returns days with a day for dayIndex present and its position.
// A missing day is appended with a date of today + dayIndex days.
func (s *Store) ensureDay(days []Day, dayIndex int) ([]Day, int) {
	for i, d := range days {
		if d.DayIndex == dayIndex {
			return days, i
		}
	}
	days = append(days, Day{
		DayIndex: dayIndex,
		Date:     formatISO(s.now().AddDate(0, 0, dayIndex)),
		Events:   []Event{},
	})
	return days, len(days) - 1
}

func (s *Store) indexOfDay(dayIndex int) int {
	for i, d := range s.days {
		if d.DayIndex == dayIndex {
			return i
		}
	}
	return -1
}

func (s *Store) cloneDays() []Day {
	days := make([]Day, len(s.days), len(s.days)+1)
	copy(days, s.days)
	return days
}

func sortDays(days []Day) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].DayIndex < days[j].DayIndex })
}

func samePlaces(a, b []model.Place) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// cloneTrip deep-copies trip so later changes by the caller do not reach
// the stored snapshot.
func cloneTrip(trip *model.Trip) *model.Trip {
	if trip == nil {
		return nil
	}
	t := *trip
	if trip.Days != nil {
		t.Days = make([]model.TripDay, len(trip.Days))
		for i, d := range trip.Days {
			events := make([]model.TripEvent, len(d.Events))
			for j, e := range d.Events {
				e.StartTime = cloneString(e.StartTime)
				e.EndTime = cloneString(e.EndTime)
				e.ValidationReason = cloneString(e.ValidationReason)
				events[j] = e
			}
			d.Events = events
			t.Days[i] = d
		}
	}
	return &t
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
