package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"

    "itinerary/internal/builder"
    "itinerary/internal/metrics"
    "itinerary/internal/model"
    "itinerary/internal/schedule"
    "itinerary/internal/store"
)

type sessionView struct {
    ID     string `json:"id"`
    TripID string `json:"tripId,omitempty"`
    builder.State
    CurrentDay *builder.Day `json:"currentDay"`
    ActiveDate string       `json:"activeDate"`
}

func viewOf(sess *Session, b *builder.Store) sessionView {
    v := sessionView{ID: sess.ID, TripID: sess.TripID, State: b.State(), ActiveDate: b.DateForDay(b.ActiveDayIndex())}
    if d, ok := b.CurrentDay(); ok { v.CurrentDay = &d }
    return v
}

type addDayRequest struct {
    Date string `json:"date,omitempty" validate:"omitempty,isodate"`
}

type activeDayRequest struct {
    DayIndex *int `json:"dayIndex" validate:"required,gte=0"`
}

type addEventRequest struct {
    PlaceID string `json:"placeId" validate:"required"`
}

type reorderRequest struct {
    ActiveID string `json:"activeId" validate:"required"`
    OverID   string `json:"overId" validate:"required"`
}

// SessionsHandler handles POST /v1/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        TripID string `json:"tripId,omitempty"`
    }
    if err := decodeOptional(r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    sess := s.Sessions.Create(req.TripID)
    sess.Do(func(b *builder.Store) { b.SetLoading(true) })

    var trip *model.Trip
    if req.TripID != "" {
        t, err := s.Store.GetTrip(r.Context(), req.TripID)
        if err != nil {
            _ = s.Sessions.Close(sess.ID)
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusNotFound, "Trip not found", req.TripID, r.URL.Path)
                return
            }
            s.internalError(w, r, "Load trip failed", err)
            return
        }
        trip = &t
    }
    places, err := s.Store.ListPlaces(r.Context())
    if err != nil {
        _ = s.Sessions.Close(sess.ID)
        s.internalError(w, r, "Load places failed", err)
        return
    }

    var view sessionView
    sess.Do(func(b *builder.Store) {
        b.HydrateTrip(trip)
        b.SetLoading(false)
        b.SetPlaces(places)
        view = viewOf(sess, b)
    })
    metrics.BuilderMutations.WithLabelValues("hydrateTrip").Inc()
    s.Log.Info("session opened", zap.String("sessionId", sess.ID), zap.String("tripId", req.TripID))
    writeJSON(w, http.StatusCreated, view)
}

// SessionByIDHandler handles everything under /v1/sessions/{id}
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
    path := r.URL.Path
    rest := strings.TrimPrefix(path, "/v1/sessions/")
    if rest == path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
        return
    }
    parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
    sess, err := s.Sessions.Get(parts[0])
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Session not found", parts[0], path)
        return
    }

    switch {
    case len(parts) == 1:
        s.sessionRoot(w, r, sess)
    case len(parts) == 2 && parts[1] == "days":
        s.addDay(w, r, sess)
    case len(parts) == 2 && parts[1] == "active-day":
        s.setActiveDay(w, r, sess)
    case len(parts) == 2 && parts[1] == "save":
        s.saveSession(w, r, sess)
    case len(parts) == 2 && parts[1] == "ws":
        s.SessionWSHandler(w, r, sess)
    case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
        s.streamSession(w, r, sess)
    case len(parts) >= 4 && parts[1] == "days":
        dayIndex, err := strconv.Atoi(parts[2])
        if err != nil || dayIndex < 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid day index", parts[2], path)
            return
        }
        switch {
        case len(parts) == 4 && parts[3] == "events":
            s.addEvent(w, r, sess, dayIndex)
        case len(parts) == 5 && parts[3] == "events":
            s.removeEvent(w, r, sess, dayIndex, parts[4])
        case len(parts) == 4 && parts[3] == "reorder":
            s.reorderEvents(w, r, sess, dayIndex)
        case len(parts) == 4 && parts[3] == "schedule":
            s.scheduleDay(w, r, sess, dayIndex)
        default:
            writeProblem(w, http.StatusNotFound, "Not Found", "", path)
        }
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", path)
    }
}

func (s *Server) sessionRoot(w http.ResponseWriter, r *http.Request, sess *Session) {
    switch r.Method {
    case http.MethodGet:
        var view sessionView
        sess.Do(func(b *builder.Store) { view = viewOf(sess, b) })
        writeJSON(w, http.StatusOK, view)
    case http.MethodDelete:
        if err := s.Sessions.Close(sess.ID); err != nil {
            writeProblem(w, http.StatusNotFound, "Session not found", sess.ID, r.URL.Path)
            return
        }
        metrics.BuilderMutations.WithLabelValues("reset").Inc()
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) addDay(w http.ResponseWriter, r *http.Request, sess *Session) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req addDayRequest
    if !s.decodeValid(w, r, &req, true) { return }
    var view sessionView
    var idx int
    sess.Do(func(b *builder.Store) {
        date := req.Date
        if date == "" { date = b.DateForDay(nextDayIndex(b.Days())) }
        idx = b.AddDay(date)
        view = viewOf(sess, b)
    })
    metrics.BuilderMutations.WithLabelValues("addDay").Inc()
    writeJSON(w, http.StatusCreated, map[string]any{"dayIndex": idx, "session": view})
}

func (s *Server) setActiveDay(w http.ResponseWriter, r *http.Request, sess *Session) {
    if r.Method != http.MethodPut { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req activeDayRequest
    if !s.decodeValid(w, r, &req, false) { return }
    var view sessionView
    sess.Do(func(b *builder.Store) {
        b.SetActiveDayIndex(*req.DayIndex)
        view = viewOf(sess, b)
    })
    metrics.BuilderMutations.WithLabelValues("setActiveDayIndex").Inc()
    writeJSON(w, http.StatusOK, view)
}

func (s *Server) addEvent(w http.ResponseWriter, r *http.Request, sess *Session, dayIndex int) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req addEventRequest
    if !s.decodeValid(w, r, &req, false) { return }

    var known bool
    sess.Do(func(b *builder.Store) { _, known = b.PlaceIndex()[req.PlaceID] })
    if !known {
        // The place may have been created after the session loaded its catalog.
        if _, err := s.Store.GetPlace(r.Context(), req.PlaceID); err != nil {
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusBadRequest, "Unknown place", req.PlaceID, r.URL.Path)
                return
            }
            s.internalError(w, r, "Get place failed", err)
            return
        }
        places, err := s.Store.ListPlaces(r.Context())
        if err != nil {
            s.internalError(w, r, "Load places failed", err)
            return
        }
        sess.Do(func(b *builder.Store) { b.SetPlaces(places) })
    }

    var cid string
    var day builder.Day
    sess.Do(func(b *builder.Store) {
        cid = b.AddEvent(dayIndex, req.PlaceID)
        day, _ = b.Day(dayIndex)
    })
    metrics.BuilderMutations.WithLabelValues("addEvent").Inc()
    writeJSON(w, http.StatusCreated, map[string]any{"clientId": cid, "day": day})
}

func (s *Server) removeEvent(w http.ResponseWriter, r *http.Request, sess *Session, dayIndex int, clientID string) {
    if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var day builder.Day
    var ok bool
    sess.Do(func(b *builder.Store) {
        b.RemoveEvent(dayIndex, clientID)
        day, ok = b.Day(dayIndex)
    })
    metrics.BuilderMutations.WithLabelValues("removeEvent").Inc()
    if !ok { day = builder.Day{DayIndex: dayIndex, Events: []builder.Event{}} }
    writeJSON(w, http.StatusOK, map[string]any{"day": day})
}

func (s *Server) reorderEvents(w http.ResponseWriter, r *http.Request, sess *Session, dayIndex int) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req reorderRequest
    if !s.decodeValid(w, r, &req, false) { return }
    var day builder.Day
    var ok bool
    sess.Do(func(b *builder.Store) {
        b.ReorderEvents(dayIndex, req.ActiveID, req.OverID)
        day, ok = b.Day(dayIndex)
    })
    metrics.BuilderMutations.WithLabelValues("reorderEvents").Inc()
    if !ok { day = builder.Day{DayIndex: dayIndex, Events: []builder.Event{}} }
    writeJSON(w, http.StatusOK, map[string]any{"day": day})
}

// scheduleDay runs the scheduler on a snapshot of the day and merges the
// results back. Edits made while the scheduler runs are overwritten
// positionally by the merge. With optimize set, client ids keep their slots
// while places move between them; the merge publishes a fresh state to
// watchers so they can drop stale drag targets.
func (s *Server) scheduleDay(w http.ResponseWriter, r *http.Request, sess *Session, dayIndex int) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var opts schedule.Options
    if err := decodeOptional(r, &opts); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }

    var (
        found  bool
        date   string
        events []model.TripEvent
        places map[string]model.Place
    )
    sess.Do(func(b *builder.Store) {
        var day builder.Day
        day, found = b.Day(dayIndex)
        date = b.DateForDay(dayIndex)
        events = builder.ToTripEvents(day.Events)
        places = b.PlaceIndex()
    })
    if !found {
        writeProblem(w, http.StatusNotFound, "Day not found", strconv.Itoa(dayIndex), r.URL.Path)
        return
    }

    start := time.Now()
    scheduled, err := s.Scheduler.ScheduleDay(r.Context(), date, events, places, opts)
    if err != nil {
        metrics.ScheduleDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
        writeProblem(w, http.StatusBadRequest, "Schedule failed", err.Error(), r.URL.Path)
        return
    }
    metrics.ScheduleDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

    var day builder.Day
    sess.Do(func(b *builder.Store) {
        b.ApplyScheduledEvents(dayIndex, scheduled)
        day, _ = b.Day(dayIndex)
    })
    metrics.BuilderMutations.WithLabelValues("applyScheduledEvents").Inc()
    writeJSON(w, http.StatusOK, map[string]any{"day": day})
}

// saveSession persists the draft to its trip. When the draft did not change
// while the save was in flight, the server ids assigned by the store are
// copied back onto the events and the dirty flag is cleared.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *Session) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var snapshot []builder.Day
    var tripID string
    sess.Do(func(b *builder.Store) {
        snapshot = b.Days()
        if t := b.CurrentTrip(); t != nil { tripID = t.ID }
    })
    if tripID == "" {
        writeProblem(w, http.StatusConflict, "Session has no trip", "open the session with a tripId to save", r.URL.Path)
        return
    }
    saved, err := s.Store.SaveTripDays(r.Context(), tripID, builder.ToTripDays(snapshot))
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Trip not found", tripID, r.URL.Path)
        return
    }
    if err != nil {
        s.internalError(w, r, "Save trip failed", err)
        return
    }
    var view sessionView
    sess.Do(func(b *builder.Store) {
        if sameDays(b.Days(), snapshot) {
            b.AdoptEventIDs(saved.Days)
            b.MarkClean()
        }
        view = viewOf(sess, b)
    })
    metrics.BuilderMutations.WithLabelValues("markClean").Inc()
    s.Log.Info("trip saved", zap.String("sessionId", sess.ID), zap.String("tripId", tripID), zap.Int("version", saved.Version))
    writeJSON(w, http.StatusOK, map[string]any{"trip": saved, "session": view})
}

// streamSession streams session changes as server-sent events.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *Session) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(sess.ID)
    defer s.Broker.Unsubscribe(sess.ID, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"sessionId\":\"%s\",\"ts\":\"%s\"}\n\n", sess.ID, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}

// decodeValid decodes and validates the request body, writing a problem on
// failure. An empty body is accepted when optional is set.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
    var err error
    if optional {
        err = decodeOptional(r, v)
    } else {
        err = json.NewDecoder(r.Body).Decode(v)
    }
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return false
    }
    if err := validateStruct(v); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
        return false
    }
    return true
}

func decodeOptional(r *http.Request, v any) error {
    if r.Body == nil { return nil }
    if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
        return err
    }
    return nil
}

func nextDayIndex(days []builder.Day) int {
    next := 0
    for _, d := range days {
        if d.DayIndex >= next { next = d.DayIndex + 1 }
    }
    return next
}

func sameDays(a, b []builder.Day) bool {
    if len(a) != len(b) { return false }
    return len(a) == 0 || &a[0] == &b[0]
}
