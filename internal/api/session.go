package api

import (
    "errors"
    "sync"
    "time"

    "itinerary/internal/builder"
    "itinerary/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one client's trip draft. The builder store is not safe for
// concurrent use, so every access goes through Do.
type Session struct {
    ID     string
    TripID string

    mu      sync.Mutex
    store   *builder.Store
    touched time.Time
    now     func() time.Time
}

// Do runs fn with exclusive access to the session's builder store.
func (s *Session) Do(fn func(b *builder.Store)) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.touched = s.now()
    fn(s.store)
}

// IdleSince reports when the session was last used.
func (s *Session) IdleSince() time.Time {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.touched
}

// SessionManager owns the open editing sessions.
type SessionManager struct {
    Broker EventBroker

    mu       sync.Mutex
    sessions map[string]*Session
    now      func() time.Time
    opts     []builder.Option
}

func NewSessionManager(broker EventBroker, opts ...builder.Option) *SessionManager {
    return &SessionManager{Broker: broker, sessions: map[string]*Session{}, now: time.Now, opts: opts}
}

// Create opens a session whose every state change is published to the
// session's watchers.
func (m *SessionManager) Create(tripID string) *Session {
    sess := &Session{
        ID:      builder.NewClientID(),
        TripID:  tripID,
        store:   builder.New(m.opts...),
        touched: m.now(),
        now:     m.now,
    }
    sess.store.Subscribe(func(st builder.State) {
        if m.Broker != nil {
            m.Broker.Publish(sess.ID, SSEEvent{Type: "session.changed", Data: stateEvent(sess.ID, st)})
        }
    })
    m.mu.Lock()
    m.sessions[sess.ID] = sess
    n := len(m.sessions)
    m.mu.Unlock()
    metrics.SessionsActive.Set(float64(n))
    return sess
}

func (m *SessionManager) Get(id string) (*Session, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    sess, ok := m.sessions[id]
    if !ok { return nil, ErrSessionNotFound }
    return sess, nil
}

// Close resets the session's store and forgets it.
func (m *SessionManager) Close(id string) error {
    m.mu.Lock()
    sess, ok := m.sessions[id]
    delete(m.sessions, id)
    n := len(m.sessions)
    m.mu.Unlock()
    if !ok { return ErrSessionNotFound }
    metrics.SessionsActive.Set(float64(n))
    sess.Do(func(b *builder.Store) { b.Reset() })
    return nil
}

// Len is the number of open sessions.
func (m *SessionManager) Len() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns their ids.
func (m *SessionManager) Sweep(ttl time.Duration) []string {
    cutoff := m.now().Add(-ttl)
    m.mu.Lock()
    var stale []string
    for id, sess := range m.sessions {
        if sess.IdleSince().Before(cutoff) { stale = append(stale, id) }
    }
    m.mu.Unlock()
    var closed []string
    for _, id := range stale {
        if err := m.Close(id); err == nil { closed = append(closed, id) }
    }
    return closed
}

// stateEvent is the payload pushed to watchers after a change.
func stateEvent(sessionID string, st builder.State) map[string]any {
    return map[string]any{
        "sessionId":      sessionID,
        "days":           st.Days,
        "activeDayIndex": st.ActiveDayIndex,
        "loading":        st.Loading,
        "dirty":          st.Dirty,
        "ts":             time.Now().UTC().Format(time.RFC3339),
    }
}
