package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "itinerary/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    places    map[string]model.Place // id -> place
    placeIDs  []string               // insertion order
    trips     map[string]model.Trip  // id -> trip
    tripIDs   []string               // insertion order
}

func NewMemory() *Memory {
    return &Memory{
        places: map[string]model.Place{},
        trips:  map[string]model.Trip{},
    }
}

func (m *Memory) ListPlaces(ctx context.Context) ([]model.Place, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Place, 0, len(m.placeIDs))
    for _, id := range m.placeIDs { out = append(out, m.places[id]) }
    return out, nil
}

func (m *Memory) GetPlace(ctx context.Context, id string) (model.Place, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p, ok := m.places[id]
    if !ok { return model.Place{}, ErrNotFound }
    return p, nil
}

func (m *Memory) CreatePlace(ctx context.Context, in model.PlaceInput) (model.Place, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p := placeFromInput(uuid.New().String(), in)
    m.places[p.ID] = p
    m.placeIDs = append(m.placeIDs, p.ID)
    return p, nil
}

func (m *Memory) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.tripIDs
    start := 0
    if cursor != "" {
        for i, id := range ids { if id == cursor { start = i + 1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    items := make([]model.Trip, 0, end-start)
    for _, id := range ids[start:end] { items = append(items, m.trips[id]) }
    next := ""
    if end < len(ids) { next = ids[end-1] }
    return items, next, nil
}

func (m *Memory) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.trips[id]
    if !ok { return model.Trip{}, ErrNotFound }
    return t, nil
}

func (m *Memory) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t := model.Trip{
        ID:        uuid.New().String(),
        Name:      in.Name,
        StartDate: in.StartDate,
        Days:      withEventIDs(in.Days),
        Version:   1,
        UpdatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    m.trips[t.ID] = t
    m.tripIDs = append(m.tripIDs, t.ID)
    return t, nil
}

func (m *Memory) SaveTripDays(ctx context.Context, id string, days []model.TripDay) (model.Trip, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.trips[id]
    if !ok { return model.Trip{}, ErrNotFound }
    t.Days = withEventIDs(days)
    t.Version++
    t.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
    m.trips[id] = t
    return t, nil
}
