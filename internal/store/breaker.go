package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/sony/gobreaker"
    "go.uber.org/zap"

    "itinerary/internal/model"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("store unavailable")

// BreakerConfig tunes the circuit breaker around a Store.
type BreakerConfig struct {
    Name                string
    MaxRequests         uint32        // allowed through while half-open
    Interval            time.Duration // closed-state counter reset
    Timeout             time.Duration // open duration before half-open
    ConsecutiveFailures uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
    return BreakerConfig{Name: name, MaxRequests: 3, Interval: 30 * time.Second, Timeout: 30 * time.Second, ConsecutiveFailures: 5}
}

// Guarded wraps a Store with a circuit breaker. ErrNotFound does not count
// as a failure.
type Guarded struct {
    next Store
    cb   *gobreaker.CircuitBreaker
}

func NewGuarded(next Store, cfg BreakerConfig, log *zap.Logger) *Guarded {
    if log == nil { log = zap.NewNop() }
    cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
        Name:        cfg.Name,
        MaxRequests: cfg.MaxRequests,
        Interval:    cfg.Interval,
        Timeout:     cfg.Timeout,
        ReadyToTrip: func(counts gobreaker.Counts) bool {
            return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
        },
        OnStateChange: func(name string, from, to gobreaker.State) {
            log.Warn("store circuit breaker state changed", zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
        },
        IsSuccessful: func(err error) bool {
            return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
        },
    })
    return &Guarded{next: next, cb: cb}
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func guard[T any](g *Guarded, fn func() (T, error)) (T, error) {
    v, err := g.cb.Execute(func() (interface{}, error) { return fn() })
    if err != nil {
        var zero T
        if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
            return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
        }
        return zero, err
    }
    return v.(T), nil
}

func (g *Guarded) ListPlaces(ctx context.Context) ([]model.Place, error) {
    return guard(g, func() ([]model.Place, error) { return g.next.ListPlaces(ctx) })
}

func (g *Guarded) GetPlace(ctx context.Context, id string) (model.Place, error) {
    return guard(g, func() (model.Place, error) { return g.next.GetPlace(ctx, id) })
}

func (g *Guarded) CreatePlace(ctx context.Context, in model.PlaceInput) (model.Place, error) {
    return guard(g, func() (model.Place, error) { return g.next.CreatePlace(ctx, in) })
}

type tripPage struct {
    items []model.Trip
    next  string
}

func (g *Guarded) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    page, err := guard(g, func() (tripPage, error) {
        items, next, err := g.next.ListTrips(ctx, cursor, limit)
        return tripPage{items: items, next: next}, err
    })
    return page.items, page.next, err
}

func (g *Guarded) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    return guard(g, func() (model.Trip, error) { return g.next.GetTrip(ctx, id) })
}

func (g *Guarded) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
    return guard(g, func() (model.Trip, error) { return g.next.CreateTrip(ctx, in) })
}

func (g *Guarded) SaveTripDays(ctx context.Context, id string, days []model.TripDay) (model.Trip, error) {
    return guard(g, func() (model.Trip, error) { return g.next.SaveTripDays(ctx, id, days) })
}

// Ping bypasses the breaker so readiness reflects the database itself.
func (g *Guarded) Ping(ctx context.Context) error {
    if p, ok := g.next.(interface{ Ping(context.Context) error }); ok { return p.Ping(ctx) }
    return nil
}

func (g *Guarded) Close() error {
    if c, ok := g.next.(interface{ Close() error }); ok { return c.Close() }
    return nil
}
