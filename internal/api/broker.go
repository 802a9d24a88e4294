package api

import (
    "sync"
)

// SSEEvent is a change notification fanned out to the watchers of a session.
type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // sessionId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(sessionID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[sessionID] == nil { b.subs[sessionID] = map[chan SSEEvent]struct{}{} }
    b.subs[sessionID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[sessionID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, sessionID) }
    close(ch)
}

// Publish delivers evt to every watcher of the session. Slow watchers drop events.
func (b *Broker) Publish(sessionID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[sessionID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Watchers reports how many channels are subscribed to the session.
func (b *Broker) Watchers(sessionID string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[sessionID])
}
