package api

import (
    "context"
    "errors"
    "net/http"

    "go.uber.org/zap"

    "itinerary/internal/config"
    "itinerary/internal/schedule"
    "itinerary/internal/store"
)

type Server struct {
    Store     store.Store
    Sessions  *SessionManager
    Broker    EventBroker
    Scheduler *schedule.Scheduler
    Log       *zap.Logger
    Config    config.Config
}

// NewServer creates a Server. If DatabaseURL is unset, uses in-memory store.
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
    var s store.Store
    if cfg.DatabaseURL == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        if cfg.DBMigrate {
            if err := sp.Migrate(ctx); err != nil {
                _ = sp.Close()
                return nil, err
            }
        }
        s = store.NewGuarded(sp, store.DefaultBreakerConfig("postgres"), log)
    }
    // Broker selection
    var broker EventBroker = NewBroker()
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Warn("redis broker unavailable, using in-process broker", zap.Error(err))
        }
    }
    return &Server{
        Store:     s,
        Sessions:  NewSessionManager(broker),
        Broker:    broker,
        Scheduler: schedule.New(cfg.Schedule),
        Log:       log,
        Config:    cfg,
    }, nil
}

// Routes registers all handlers on a new mux wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Catalog
    mux.HandleFunc("/v1/places", s.PlacesHandler)
    mux.HandleFunc("/v1/trips", s.TripsHandler)
    mux.HandleFunc("/v1/trips/", s.TripByIDHandler)

    // Editing sessions
    mux.HandleFunc("/v1/sessions", s.SessionsHandler)
    mux.HandleFunc("/v1/sessions/", s.SessionByIDHandler) // includes /days, /save, /events/stream, /ws

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", metricsHandler())
    mux.HandleFunc("/debug/config", s.DebugJSON)

    return s.logMiddleware(s.metricsMiddleware(s.rateLimit(mux)))
}

// NewJanitor creates a background worker that evicts idle sessions.
func (s *Server) NewJanitor() *Janitor {
    return NewJanitor(s.Sessions, s.Config.SessionIdleTTL, s.Log)
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
    type closer interface{ Close() error }
    var errs []error
    if c, ok := s.Store.(closer); ok { errs = append(errs, c.Close()) }
    if c, ok := s.Broker.(closer); ok { errs = append(errs, c.Close()) }
    return errors.Join(errs...)
}

