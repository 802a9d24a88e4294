package api

import (
    "time"

    "go.uber.org/zap"
)

// Janitor evicts editing sessions that have been idle longer than TTL.
type Janitor struct {
    Sessions *SessionManager
    TTL      time.Duration
    Interval time.Duration
    Stop     chan struct{}
    Log      *zap.Logger
}

func NewJanitor(sessions *SessionManager, ttl time.Duration, log *zap.Logger) *Janitor {
    interval := ttl / 4
    if interval < time.Second { interval = time.Second }
    if interval > time.Minute { interval = time.Minute }
    if log == nil { log = zap.NewNop() }
    return &Janitor{Sessions: sessions, TTL: ttl, Interval: interval, Stop: make(chan struct{}), Log: log}
}

func (j *Janitor) Start() {
    go func() {
        ticker := time.NewTicker(j.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-j.Stop:
                return
            case <-ticker.C:
                j.processOnce()
            }
        }
    }()
}

func (j *Janitor) processOnce() {
    closed := j.Sessions.Sweep(j.TTL)
    if len(closed) > 0 {
        j.Log.Info("evicted idle sessions", zap.Int("count", len(closed)), zap.Strings("sessionIds", closed))
    }
}
