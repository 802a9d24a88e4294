// Package schedule computes visit times, travel metrics and feasibility for
// the events of one trip day.
package schedule

import (
    "context"
    "fmt"
    "math"
    "time"

    "itinerary/internal/model"
)

// Options tune a scheduling run. Zero fields fall back to the scheduler defaults.
type Options struct {
    DayStart        string  `json:"dayStart,omitempty" yaml:"dayStart"` // HH:MM
    DayEnd          string  `json:"dayEnd,omitempty" yaml:"dayEnd"`     // HH:MM
    SpeedKph        float64 `json:"speedKph,omitempty" yaml:"speedKph"`
    DefaultVisitMin int     `json:"defaultVisitMin,omitempty" yaml:"defaultVisitMin"`
    // Optimize reorders visits with 2-opt. Results still merge by position,
    // so a client id may end up on a different place.
    Optimize        bool    `json:"optimize,omitempty" yaml:"optimize"`
}

// DefaultOptions are used when neither the scheduler nor the caller set a value.
var DefaultOptions = Options{DayStart: "09:00", DayEnd: "21:00", SpeedKph: 30, DefaultVisitMin: 60}

type Scheduler struct {
    Defaults Options
}

func New(defaults Options) *Scheduler {
    return &Scheduler{Defaults: merge(DefaultOptions, defaults)}
}

// ScheduleDay walks events in order (or in a 2-opt improved order when
// opts.Optimize is set) starting at DayStart on date. Each result carries the
// input event's ID and PlaceID, with Order set to its position in the walk.
// Unknown places are reported invalid and do not advance the clock.
func (s *Scheduler) ScheduleDay(ctx context.Context, date string, events []model.TripEvent, places map[string]model.Place, opts Options) ([]model.TripEvent, error) {
    o := merge(merge(DefaultOptions, s.Defaults), opts)
    base, err := dayBase(date)
    if err != nil { return nil, err }
    dayStart, err := parseClock(o.DayStart)
    if err != nil { return nil, fmt.Errorf("dayStart: %w", err) }
    dayEnd, err := parseClock(o.DayEnd)
    if err != nil { return nil, fmt.Errorf("dayEnd: %w", err) }
    if dayEnd <= dayStart { return nil, fmt.Errorf("dayEnd %s must be after dayStart %s", o.DayEnd, o.DayStart) }

    order := make([]int, len(events))
    for i := range order { order[i] = i }
    if o.Optimize {
        order = optimizeOrder(events, places, order)
    }

    out := make([]model.TripEvent, 0, len(events))
    cursor := float64(dayStart)
    var prev *model.Place
    for pos, idx := range order {
        if err := ctx.Err(); err != nil { return nil, err }
        ev := events[idx]
        res := model.TripEvent{ID: ev.ID, PlaceID: ev.PlaceID, Order: pos, ValidationStatus: model.StatusValid}
        p, ok := places[ev.PlaceID]
        if !ok {
            res.ValidationStatus = model.StatusInvalid
            res.ValidationReason = strPtr("unknown place")
            out = append(out, res)
            continue
        }
        dist := 0.0
        if prev != nil { dist = haversineKm(prev.Lat, prev.Lng, p.Lat, p.Lng) }
        travel := dist / o.SpeedKph * 60
        start := cursor + travel
        if p.OpenTime != "" {
            if open, err := parseClock(p.OpenTime); err == nil && start < float64(open) { start = float64(open) }
        }
        visit := p.VisitMin
        if visit <= 0 { visit = o.DefaultVisitMin }
        end := start + float64(visit)

        if p.CloseTime != "" {
            if closeAt, err := parseClock(p.CloseTime); err == nil && end > float64(closeAt) {
                res.ValidationStatus = model.StatusInvalid
                res.ValidationReason = strPtr("closes at " + p.CloseTime)
            }
        }
        if res.ValidationStatus == model.StatusValid && end > float64(dayEnd) {
            res.ValidationStatus = model.StatusInvalid
            res.ValidationReason = strPtr("ends after day end " + o.DayEnd)
        }
        res.StartTime = strPtr(clockTime(base, start))
        res.EndTime = strPtr(clockTime(base, end))
        res.TravelTimeMin = round(travel, 1)
        res.DistanceKm = round(dist, 2)
        out = append(out, res)

        cursor = end
        pp := p
        prev = &pp
    }
    return out, nil
}

// optimizeOrder reorders visits to known places with 2-opt. Unknown places
// keep the order as given.
func optimizeOrder(events []model.TripEvent, places map[string]model.Place, order []int) []int {
    if len(events) < 4 { return order }
    pts := make([]Point, len(events))
    for i, ev := range events {
        p, ok := places[ev.PlaceID]
        if !ok { return order }
        pts[i] = Point{Lat: p.Lat, Lng: p.Lng}
    }
    return ImproveOrder2Opt(pts, order, 50)
}

func merge(base, over Options) Options {
    if over.DayStart != "" { base.DayStart = over.DayStart }
    if over.DayEnd != "" { base.DayEnd = over.DayEnd }
    if over.SpeedKph > 0 { base.SpeedKph = over.SpeedKph }
    if over.DefaultVisitMin > 0 { base.DefaultVisitMin = over.DefaultVisitMin }
    base.Optimize = base.Optimize || over.Optimize
    return base
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(v string) (int, error) { return parseClock(v) }

func parseClock(v string) (int, error) {
    t, err := time.Parse("15:04", v)
    if err != nil { return 0, fmt.Errorf("invalid clock time %q", v) }
    return t.Hour()*60 + t.Minute(), nil
}

// dayBase returns UTC midnight of the calendar day named by date.
func dayBase(date string) (time.Time, error) {
    for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
        if t, err := time.Parse(layout, date); err == nil {
            t = t.UTC()
            return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
        }
    }
    return time.Time{}, fmt.Errorf("invalid day date %q", date)
}

func clockTime(base time.Time, minutes float64) string {
    return base.Add(time.Duration(math.Round(minutes)) * time.Minute).Format(time.RFC3339)
}

func round(v float64, places int) float64 {
    p := math.Pow(10, float64(places))
    return math.Round(v*p) / p
}

func strPtr(s string) *string { return &s }
