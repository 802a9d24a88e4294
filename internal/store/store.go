package store

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "itinerary/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Places
    ListPlaces(ctx context.Context) ([]model.Place, error)
    GetPlace(ctx context.Context, id string) (model.Place, error)
    CreatePlace(ctx context.Context, in model.PlaceInput) (model.Place, error)

    // Trips
    ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error)
    GetTrip(ctx context.Context, id string) (model.Trip, error)
    CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error)
    // SaveTripDays replaces the days of a trip, assigning ids to events that
    // have none, and bumps its version.
    SaveTripDays(ctx context.Context, id string, days []model.TripDay) (model.Trip, error)
}

var ErrNotFound = errors.New("not found")

// withEventIDs returns a deep copy of days where every event has an id.
func withEventIDs(days []model.TripDay) []model.TripDay {
    out := make([]model.TripDay, len(days))
    for i, d := range days {
        events := make([]model.TripEvent, len(d.Events))
        for j, e := range d.Events {
            if e.ID == "" { e.ID = uuid.New().String() }
            events[j] = e
        }
        out[i] = model.TripDay{DayIndex: d.DayIndex, Date: d.Date, Events: events}
    }
    return out
}

func placeFromInput(id string, in model.PlaceInput) model.Place {
    return model.Place{
        ID: id, Name: in.Name, Category: in.Category, Lat: in.Lat, Lng: in.Lng,
        VisitMin: in.VisitMin, OpenTime: in.OpenTime, CloseTime: in.CloseTime,
    }
}
