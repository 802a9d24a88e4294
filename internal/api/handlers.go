package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "go.uber.org/zap"

    "itinerary/internal/model"
    "itinerary/internal/store"
)

// PlacesHandler handles GET/POST /v1/places
func (s *Server) PlacesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        items, err := s.Store.ListPlaces(r.Context())
        if err != nil {
            s.internalError(w, r, "List places failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        var in model.PlaceInput
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateStruct(in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid place", err.Error(), r.URL.Path)
            return
        }
        pl, err := s.Store.CreatePlace(r.Context(), in)
        if err != nil {
            s.internalError(w, r, "Create place failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, pl)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TripsHandler handles GET/POST /v1/trips
func (s *Server) TripsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListTrips(r.Context(), cursor, limit)
        if err != nil {
            s.internalError(w, r, "List trips failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    case http.MethodPost:
        var in model.TripInput
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateStruct(in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid trip", err.Error(), r.URL.Path)
            return
        }
        t, err := s.Store.CreateTrip(r.Context(), in)
        if err != nil {
            s.internalError(w, r, "Create trip failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, t)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TripByIDHandler handles GET /v1/trips/{id}
func (s *Server) TripByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    t, err := s.Store.GetTrip(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Trip not found", id, r.URL.Path)
        return
    }
    if err != nil {
        s.internalError(w, r, "Get trip failed", err)
        return
    }
    writeJSON(w, http.StatusOK, t)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// internalError logs err and answers 500 (503 while the store breaker is
// open) without leaking details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, title string, err error) {
    s.Log.Error(title, zap.String("path", r.URL.Path), zap.Error(err))
    if errors.Is(err, store.ErrUnavailable) {
        w.Header().Set("Retry-After", "30")
        writeProblem(w, http.StatusServiceUnavailable, title, "store unavailable", r.URL.Path)
        return
    }
    writeProblem(w, http.StatusInternalServerError, title, "", r.URL.Path)
}
