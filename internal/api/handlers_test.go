package api

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "itinerary/internal/config"
    "itinerary/internal/model"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    return newTestServerWith(t, config.Default())
}

func newTestServerWith(t *testing.T, cfg config.Config) *Server {
    t.Helper()
    s, err := NewServer(context.Background(), cfg, zap.NewNop())
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
    t.Helper()
    var rd *bytes.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { t.Fatalf("marshal: %v", err) }
        rd = bytes.NewReader(b)
    } else {
        rd = bytes.NewReader(nil)
    }
    req := httptest.NewRequest(method, path, rd)
    req.Header.Set("Content-Type", "application/json")
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
    t.Helper()
    var v T
    if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil { t.Fatalf("decode %q: %v", rr.Body.String(), err) }
    return v
}

type eventJSON struct {
    ClientID         string  `json:"clientId"`
    ID               string  `json:"_id"`
    PlaceID          string  `json:"placeId"`
    Order            int     `json:"order"`
    StartTime        *string `json:"startTime"`
    ValidationStatus string  `json:"validationStatus"`
}

type dayJSON struct {
    DayIndex int         `json:"dayIndex"`
    Date     string      `json:"date"`
    Events   []eventJSON `json:"events"`
}

type sessionJSON struct {
    ID             string        `json:"id"`
    TripID         string        `json:"tripId"`
    Days           []dayJSON     `json:"days"`
    Places         []model.Place `json:"places"`
    ActiveDayIndex int           `json:"activeDayIndex"`
    Loading        bool          `json:"loading"`
    Dirty          bool          `json:"dirty"`
    CurrentDay     *dayJSON      `json:"currentDay"`
    ActiveDate     string        `json:"activeDate"`
}

// seed creates three places and a trip, then opens a session on the trip.
func seed(t *testing.T, h http.Handler) (sessionJSON, []model.Place, model.Trip) {
    t.Helper()
    var places []model.Place
    for i, name := range []string{"Louvre", "Orsay", "Pompidou"} {
        rr := do(t, h, http.MethodPost, "/v1/places", model.PlaceInput{Name: name, Lat: 48.86 + float64(i)*0.01, Lng: 2.33})
        if rr.Code != http.StatusCreated { t.Fatalf("create place: %d %s", rr.Code, rr.Body.String()) }
        places = append(places, decode[model.Place](t, rr))
    }
    rr := do(t, h, http.MethodPost, "/v1/trips", model.TripInput{Name: "Paris", StartDate: "2025-03-10"})
    if rr.Code != http.StatusCreated { t.Fatalf("create trip: %d %s", rr.Code, rr.Body.String()) }
    trip := decode[model.Trip](t, rr)

    rr = do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"tripId": trip.ID})
    if rr.Code != http.StatusCreated { t.Fatalf("open session: %d %s", rr.Code, rr.Body.String()) }
    return decode[sessionJSON](t, rr), places, trip
}

// fillDay adds a day and one event per place, returning the client ids.
func fillDay(t *testing.T, h http.Handler, sid string, places []model.Place) []string {
    t.Helper()
    rr := do(t, h, http.MethodPost, "/v1/sessions/"+sid+"/days", nil)
    if rr.Code != http.StatusCreated { t.Fatalf("add day: %d %s", rr.Code, rr.Body.String()) }
    var ids []string
    for _, p := range places {
        rr = do(t, h, http.MethodPost, "/v1/sessions/"+sid+"/days/0/events", map[string]string{"placeId": p.ID})
        if rr.Code != http.StatusCreated { t.Fatalf("add event: %d %s", rr.Code, rr.Body.String()) }
        ids = append(ids, decode[struct{ ClientID string `json:"clientId"` }](t, rr).ClientID)
    }
    return ids
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestPlacesCreateList(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/places", model.PlaceInput{Name: "Louvre", Lat: 48.86, Lng: 2.33, OpenTime: "09:00"})
    if rr.Code != http.StatusCreated { t.Fatalf("create: got %d", rr.Code) }
    rr = do(t, h, http.MethodPost, "/v1/places", model.PlaceInput{Name: "Bad", OpenTime: "25:00"})
    if rr.Code != http.StatusBadRequest { t.Fatalf("invalid place: got %d", rr.Code) }
    p := decode[Problem](t, rr)
    if !strings.Contains(p.Detail, "openTime") { t.Fatalf("detail: %q", p.Detail) }

    rr = do(t, h, http.MethodGet, "/v1/places", nil)
    if rr.Code != 200 { t.Fatalf("list: got %d", rr.Code) }
    list := decode[struct{ Items []model.Place `json:"items"` }](t, rr)
    if len(list.Items) != 1 || list.Items[0].Name != "Louvre" { t.Fatalf("items: %+v", list.Items) }
}

func TestTripsCreateGet(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/trips", model.TripInput{Name: "Rome"})
    if rr.Code != http.StatusCreated { t.Fatalf("create: got %d", rr.Code) }
    trip := decode[model.Trip](t, rr)

    rr = do(t, h, http.MethodGet, "/v1/trips/"+trip.ID, nil)
    if rr.Code != 200 { t.Fatalf("get: got %d", rr.Code) }
    rr = do(t, h, http.MethodGet, "/v1/trips/nope", nil)
    if rr.Code != http.StatusNotFound { t.Fatalf("missing trip: got %d", rr.Code) }
    rr = do(t, h, http.MethodGet, "/v1/trips?limit=1", nil)
    if rr.Code != 200 { t.Fatalf("list: got %d", rr.Code) }
    rr = do(t, h, http.MethodPost, "/v1/trips", map[string]any{"name": ""})
    if rr.Code != http.StatusBadRequest { t.Fatalf("invalid trip: got %d", rr.Code) }
}

func TestSessionLifecycle(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, places, trip := seed(t, h)
    if sess.Loading || sess.Dirty { t.Fatalf("fresh session flags: %+v", sess) }
    if len(sess.Places) != 3 { t.Fatalf("places: got %d", len(sess.Places)) }
    if sess.TripID != trip.ID { t.Fatalf("tripId: got %q", sess.TripID) }

    ids := fillDay(t, h, sess.ID, places)
    base := "/v1/sessions/" + sess.ID

    rr := do(t, h, http.MethodGet, base, nil)
    got := decode[sessionJSON](t, rr)
    if !got.Dirty { t.Fatal("expected dirty after edits") }
    if got.CurrentDay == nil || len(got.CurrentDay.Events) != 3 { t.Fatalf("current day: %+v", got.CurrentDay) }
    if got.CurrentDay.Date != "2025-03-10T00:00:00.000Z" { t.Fatalf("day date: %q", got.CurrentDay.Date) }

    // move the last event onto the first slot
    rr = do(t, h, http.MethodPost, base+"/days/0/reorder", map[string]string{"activeId": ids[2], "overId": ids[0]})
    if rr.Code != 200 { t.Fatalf("reorder: got %d", rr.Code) }
    day := decode[struct{ Day dayJSON `json:"day"` }](t, rr).Day
    want := []string{ids[2], ids[0], ids[1]}
    for i, e := range day.Events {
        if e.ClientID != want[i] || e.Order != i { t.Fatalf("event %d: %+v", i, e) }
    }

    rr = do(t, h, http.MethodPost, base+"/days/0/schedule", nil)
    if rr.Code != 200 { t.Fatalf("schedule: got %d %s", rr.Code, rr.Body.String()) }
    day = decode[struct{ Day dayJSON `json:"day"` }](t, rr).Day
    if len(day.Events) != 3 { t.Fatalf("scheduled events: %d", len(day.Events)) }
    first := day.Events[0]
    if first.ClientID != ids[2] { t.Fatalf("client id changed: %q", first.ClientID) }
    if first.StartTime == nil || *first.StartTime != "2025-03-10T09:00:00Z" { t.Fatalf("start: %v", first.StartTime) }
    if first.ValidationStatus != "valid" { t.Fatalf("status: %q", first.ValidationStatus) }

    rr = do(t, h, http.MethodDelete, base+"/days/0/events/"+ids[0], nil)
    if rr.Code != 200 { t.Fatalf("remove: got %d", rr.Code) }

    rr = do(t, h, http.MethodPost, base+"/save", nil)
    if rr.Code != 200 { t.Fatalf("save: got %d %s", rr.Code, rr.Body.String()) }
    saved := decode[struct {
        Trip    model.Trip  `json:"trip"`
        Session sessionJSON `json:"session"`
    }](t, rr)
    if saved.Session.Dirty { t.Fatal("expected clean after save") }
    if saved.Trip.Version != 2 { t.Fatalf("version: got %d", saved.Trip.Version) }
    if len(saved.Trip.Days) != 1 || len(saved.Trip.Days[0].Events) != 2 { t.Fatalf("saved days: %+v", saved.Trip.Days) }

    rr = do(t, h, http.MethodDelete, base, nil)
    if rr.Code != http.StatusNoContent { t.Fatalf("close: got %d", rr.Code) }
    rr = do(t, h, http.MethodGet, base, nil)
    if rr.Code != http.StatusNotFound { t.Fatalf("closed session: got %d", rr.Code) }
}

func TestReopenSessionHydratesSavedDays(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, places, trip := seed(t, h)
    fillDay(t, h, sess.ID, places)
    if rr := do(t, h, http.MethodPost, "/v1/sessions/"+sess.ID+"/save", nil); rr.Code != 200 { t.Fatalf("save: %d", rr.Code) }

    rr := do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"tripId": trip.ID})
    again := decode[sessionJSON](t, rr)
    if again.Dirty { t.Fatal("hydrated session should be clean") }
    if len(again.Days) != 1 || len(again.Days[0].Events) != 3 { t.Fatalf("days: %+v", again.Days) }
    for _, e := range again.Days[0].Events {
        if e.ID == "" || e.ClientID != e.ID { t.Fatalf("server id should be the client id: %+v", e) }
    }
}

func TestSetActiveDay(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, _, _ := seed(t, h)
    base := "/v1/sessions/" + sess.ID
    rr := do(t, h, http.MethodPut, base+"/active-day", map[string]int{"dayIndex": 2})
    if rr.Code != 200 { t.Fatalf("active day: got %d", rr.Code) }
    got := decode[sessionJSON](t, rr)
    if got.ActiveDayIndex != 2 || got.CurrentDay != nil { t.Fatalf("view: %+v", got) }
    if got.ActiveDate != "2025-03-12T00:00:00.000Z" { t.Fatalf("active date: %q", got.ActiveDate) }
    if got.Dirty { t.Fatal("selecting a day must not mark dirty") }

    rr = do(t, h, http.MethodPut, base+"/active-day", map[string]any{})
    if rr.Code != http.StatusBadRequest { t.Fatalf("missing dayIndex: got %d", rr.Code) }
}

func TestAddEventUnknownPlace(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, _, _ := seed(t, h)
    rr := do(t, h, http.MethodPost, "/v1/sessions/"+sess.ID+"/days/0/events", map[string]string{"placeId": "nope"})
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d", rr.Code) }
}

func TestAddEventPlaceCreatedAfterOpen(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, _, _ := seed(t, h)
    rr := do(t, h, http.MethodPost, "/v1/places", model.PlaceInput{Name: "Late", Lat: 1, Lng: 1})
    p := decode[model.Place](t, rr)
    rr = do(t, h, http.MethodPost, "/v1/sessions/"+sess.ID+"/days/4/events", map[string]string{"placeId": p.ID})
    if rr.Code != http.StatusCreated { t.Fatalf("got %d %s", rr.Code, rr.Body.String()) }
    got := decode[sessionJSON](t, do(t, h, http.MethodGet, "/v1/sessions/"+sess.ID, nil))
    if len(got.Places) != 4 { t.Fatalf("catalog not refreshed: %d", len(got.Places)) }
    if len(got.Days) != 1 || got.Days[0].DayIndex != 4 { t.Fatalf("days: %+v", got.Days) }
}

func TestSessionErrors(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"tripId": "missing"})
    if rr.Code != http.StatusNotFound { t.Fatalf("unknown trip: got %d", rr.Code) }

    rr = do(t, h, http.MethodPost, "/v1/sessions", nil)
    if rr.Code != http.StatusCreated { t.Fatalf("blank session: got %d", rr.Code) }
    sess := decode[sessionJSON](t, rr)
    base := "/v1/sessions/" + sess.ID

    if rr = do(t, h, http.MethodPost, base+"/save", nil); rr.Code != http.StatusConflict { t.Fatalf("save without trip: got %d", rr.Code) }
    if rr = do(t, h, http.MethodPost, base+"/days/3/schedule", nil); rr.Code != http.StatusNotFound { t.Fatalf("schedule missing day: got %d", rr.Code) }
    if rr = do(t, h, http.MethodPost, base+"/days/x/events", map[string]string{"placeId": "p"}); rr.Code != http.StatusBadRequest { t.Fatalf("bad day index: got %d", rr.Code) }
    if rr = do(t, h, http.MethodPost, base+"/days/0/reorder", map[string]string{"activeId": "a"}); rr.Code != http.StatusBadRequest { t.Fatalf("reorder without overId: got %d", rr.Code) }
    if rr = do(t, h, http.MethodGet, base+"/nope", nil); rr.Code != http.StatusNotFound { t.Fatalf("unknown path: got %d", rr.Code) }
    if rr = do(t, h, http.MethodGet, "/v1/sessions/unknown", nil); rr.Code != http.StatusNotFound { t.Fatalf("unknown session: got %d", rr.Code) }
    if rr = do(t, h, http.MethodGet, "/v1/sessions", nil); rr.Code != http.StatusMethodNotAllowed { t.Fatalf("list sessions: got %d", rr.Code) }
}

func TestNoOpEditsStillMarkDirty(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, _, _ := seed(t, h)
    rr := do(t, h, http.MethodDelete, "/v1/sessions/"+sess.ID+"/days/9/events/ghost", nil)
    if rr.Code != 200 { t.Fatalf("remove: got %d", rr.Code) }
    got := decode[sessionJSON](t, do(t, h, http.MethodGet, "/v1/sessions/"+sess.ID, nil))
    if !got.Dirty { t.Fatal("expected dirty") }
}

func TestScheduleRejectsBadOptions(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, places, _ := seed(t, h)
    fillDay(t, h, sess.ID, places)
    rr := do(t, h, http.MethodPost, "/v1/sessions/"+sess.ID+"/days/0/schedule", map[string]string{"dayStart": "18:00", "dayEnd": "08:00"})
    if rr.Code != http.StatusBadRequest { t.Fatalf("got %d", rr.Code) }
}

func TestRateLimit(t *testing.T) {
    cfg := config.Default()
    cfg.RateRPS = 0.001
    cfg.RateBurst = 1
    h := newTestServerWith(t, cfg).Routes()
    if rr := do(t, h, http.MethodGet, "/healthz", nil); rr.Code != 200 { t.Fatalf("first: got %d", rr.Code) }
    rr := do(t, h, http.MethodGet, "/healthz", nil)
    if rr.Code != http.StatusTooManyRequests { t.Fatalf("second: got %d", rr.Code) }
    if rr.Header().Get("Retry-After") == "" { t.Fatal("missing Retry-After") }
}

func TestDebugAndMetrics(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/debug/config", nil)
    if rr.Code != 200 { t.Fatalf("debug: got %d", rr.Code) }
    info := decode[map[string]any](t, rr)
    if _, ok := info["build"]; !ok { t.Fatalf("missing build: %v", info) }
    cfg := info["config"].(map[string]any)
    if _, leaked := cfg["databaseUrl"]; leaked { t.Fatal("database url exposed") }

    rr = do(t, h, http.MethodGet, "/metrics", nil)
    if rr.Code != 200 { t.Fatalf("metrics: got %d", rr.Code) }
    if !strings.Contains(rr.Body.String(), "http_requests_total") { t.Fatal("missing http_requests_total") }
}

func TestRouteLabel(t *testing.T) {
    cases := map[string]string{
        "/v1/places":                          "/v1/places",
        "/v1/trips/abc":                       "/v1/trips/{id}",
        "/v1/sessions/s1/days/2/events/c9":    "/v1/sessions/{id}/days/{day}/events/{clientId}",
        "/v1/sessions/s1/days/0/schedule":     "/v1/sessions/{id}/days/{day}/schedule",
        "/v1/sessions/s1/events/stream":       "/v1/sessions/{id}/events/stream",
        "/healthz":                            "/healthz",
    }
    for in, want := range cases {
        if got := routeLabel(in); got != want { t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want) }
    }
}

func TestSessionStream(t *testing.T) {
    ts := httptest.NewServer(newTestServer(t).Routes())
    defer ts.Close()
    resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", nil)
    if err != nil { t.Fatal(err) }
    var sess sessionJSON
    _ = json.NewDecoder(resp.Body).Decode(&sess)
    _ = resp.Body.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/sessions/"+sess.ID+"/events/stream", nil)
    stream, err := http.DefaultClient.Do(req)
    if err != nil { t.Fatal(err) }
    defer func() { _ = stream.Body.Close() }()
    if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" { t.Fatalf("content type: %q", ct) }

    rd := bufio.NewReader(stream.Body)
    line, err := rd.ReadString('\n')
    if err != nil || line != "event: heartbeat\n" { t.Fatalf("first line: %q %v", line, err) }

    resp, err = http.Post(ts.URL+"/v1/sessions/"+sess.ID+"/days", "application/json", nil)
    if err != nil { t.Fatal(err) }
    _ = resp.Body.Close()

    for {
        line, err = rd.ReadString('\n')
        if err != nil { t.Fatalf("read: %v", err) }
        if line == "event: session.changed\n" { break }
    }
    data, _ := rd.ReadString('\n')
    if !strings.Contains(data, `"dirty":true`) { t.Fatalf("data: %q", data) }
}

func TestSessionWebsocket(t *testing.T) {
    srv := newTestServer(t)
    ts := httptest.NewServer(srv.Routes())
    defer ts.Close()
    sess, places, _ := seed(t, srv.Routes())
    ids := fillDay(t, srv.Routes(), sess.ID, places)

    u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess.ID + "/ws"
    c, _, err := websocket.DefaultDialer.Dial(u, nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer func() { _ = c.Close() }()
    _ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

    var msg wsMessage
    if err := c.ReadJSON(&msg); err != nil || msg.Type != "state" { t.Fatalf("initial: %+v %v", msg, err) }

    if err := c.WriteJSON(wsMessage{Type: "ping"}); err != nil { t.Fatal(err) }
    if err := c.ReadJSON(&msg); err != nil || msg.Type != "pong" { t.Fatalf("pong: %+v %v", msg, err) }

    payload, _ := json.Marshal(wsReorderPayload{DayIndex: 0, ActiveID: ids[0], OverID: ids[2]})
    if err := c.WriteJSON(wsMessage{Type: "reorder", Payload: payload}); err != nil { t.Fatal(err) }
    if err := c.ReadJSON(&msg); err != nil || msg.Type != "state" { t.Fatalf("state: %+v %v", msg, err) }
    var st struct{ Days []dayJSON `json:"days"` }
    if err := json.Unmarshal(msg.Payload, &st); err != nil { t.Fatal(err) }
    got := st.Days[0].Events
    want := []string{ids[1], ids[2], ids[0]}
    for i := range want {
        if got[i].ClientID != want[i] { t.Fatalf("order after reorder: %+v", got) }
    }

    bad, _ := json.Marshal(map[string]string{"activeId": "a"})
    if err := c.WriteJSON(wsMessage{Type: "reorder", Payload: bad}); err != nil { t.Fatal(err) }
    if err := c.ReadJSON(&msg); err != nil || msg.Type != "error" { t.Fatalf("error: %+v %v", msg, err) }
}

func TestSaveKeepsServerEventIDs(t *testing.T) {
    h := newTestServer(t).Routes()
    sess, places, trip := seed(t, h)
    fillDay(t, h, sess.ID, places)
    base := "/v1/sessions/" + sess.ID

    type saveResp struct {
        Trip    model.Trip  `json:"trip"`
        Session sessionJSON `json:"session"`
    }
    rr := do(t, h, http.MethodPost, base+"/save", nil)
    if rr.Code != 200 { t.Fatalf("first save: %d", rr.Code) }
    first := decode[saveResp](t, rr)
    for i, e := range first.Session.Days[0].Events {
        if e.ID == "" || e.ID != first.Trip.Days[0].Events[i].ID { t.Fatalf("event %d id not adopted: %+v", i, e) }
    }

    rr = do(t, h, http.MethodPost, base+"/save", nil)
    if rr.Code != 200 { t.Fatalf("second save: %d", rr.Code) }
    second := decode[saveResp](t, rr)
    for i, e := range second.Trip.Days[0].Events {
        if e.ID != first.Trip.Days[0].Events[i].ID { t.Fatalf("event %d id changed: %q -> %q", i, first.Trip.Days[0].Events[i].ID, e.ID) }
    }

    // client ids survive a save, and a reopened session sees the same ids
    if first.Session.Days[0].Events[0].ClientID == first.Session.Days[0].Events[0].ID { t.Fatal("client id should not be replaced by the server id") }
    rr = do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"tripId": trip.ID})
    again := decode[sessionJSON](t, rr)
    for i, e := range again.Days[0].Events {
        if e.ClientID != second.Trip.Days[0].Events[i].ID { t.Fatalf("reopened client id %d: %q", i, e.ClientID) }
    }
}

func TestOptimizedSchedulePublishesState(t *testing.T) {
    s := newTestServer(t)
    h := s.Routes()
    var places []model.Place
    for i, lat := range []float64{48.00, 48.02, 48.01, 48.03} {
        rr := do(t, h, http.MethodPost, "/v1/places", model.PlaceInput{Name: string(rune('A' + i)), Lat: lat, Lng: 2.3})
        places = append(places, decode[model.Place](t, rr))
    }
    rr := do(t, h, http.MethodPost, "/v1/sessions", nil)
    sess := decode[sessionJSON](t, rr)
    ids := fillDay(t, h, sess.ID, places)

    ch := s.Broker.Subscribe(sess.ID)
    defer s.Broker.Unsubscribe(sess.ID, ch)
    rr = do(t, h, http.MethodPost, "/v1/sessions/"+sess.ID+"/days/0/schedule", map[string]bool{"optimize": true})
    if rr.Code != 200 { t.Fatalf("schedule: %d %s", rr.Code, rr.Body.String()) }
    day := decode[struct{ Day dayJSON `json:"day"` }](t, rr).Day
    for i, e := range day.Events {
        if e.ClientID != ids[i] { t.Fatalf("slot %d client id: %q", i, e.ClientID) }
    }
    if day.Events[1].PlaceID != places[2].ID || day.Events[2].PlaceID != places[1].ID {
        t.Fatalf("expected B and C to swap places: %+v", day.Events)
    }

    select {
    case evt := <-ch:
        if evt.Type != "session.changed" { t.Fatalf("event: %s", evt.Type) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("no state pushed after scheduling")
    }
}
