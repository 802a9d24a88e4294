package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "itinerary/internal/model"
)

// schema is applied by Migrate; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS places (
    id         uuid PRIMARY KEY,
    name       text NOT NULL,
    category   text,
    lat        double precision NOT NULL DEFAULT 0,
    lng        double precision NOT NULL DEFAULT 0,
    visit_min  integer NOT NULL DEFAULT 0,
    open_time  text,
    close_time text,
    created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS trips (
    id         uuid PRIMARY KEY,
    name       text NOT NULL,
    start_date text,
    days       jsonb NOT NULL DEFAULT '[]'::jsonb,
    version    integer NOT NULL DEFAULT 1,
    updated_at timestamptz NOT NULL DEFAULT now()
);
`

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate creates the tables used by the store.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, schema); err != nil {
        return fmt.Errorf("migrate: %w", err)
    }
    return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ListPlaces(ctx context.Context) ([]model.Place, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, category, lat, lng, visit_min, open_time, close_time FROM places ORDER BY created_at, id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Place{}
    for rows.Next() {
        pl, err := scanPlace(rows)
        if err != nil { return nil, err }
        out = append(out, pl)
    }
    return out, rows.Err()
}

func (p *Postgres) GetPlace(ctx context.Context, id string) (model.Place, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, name, category, lat, lng, visit_min, open_time, close_time FROM places WHERE id::text=$1`, id)
    pl, err := scanPlace(row)
    if errors.Is(err, sql.ErrNoRows) { return pl, ErrNotFound }
    return pl, err
}

func (p *Postgres) CreatePlace(ctx context.Context, in model.PlaceInput) (model.Place, error) {
    pl := placeFromInput(uuid.New().String(), in)
    _, err := p.db.ExecContext(ctx, `INSERT INTO places (id, name, category, lat, lng, visit_min, open_time, close_time) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        pl.ID, pl.Name, nullIfEmpty(pl.Category), pl.Lat, pl.Lng, pl.VisitMin, nullIfEmpty(pl.OpenTime), nullIfEmpty(pl.CloseTime))
    if err != nil { return model.Place{}, err }
    return pl, nil
}

func (p *Postgres) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, start_date, days, version, updated_at FROM trips WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, start_date, days, version, updated_at FROM trips ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Trip{}
    var last string
    for rows.Next() {
        t, err := scanTrip(rows)
        if err != nil { return nil, "", err }
        out = append(out, t)
        last = t.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, name, start_date, days, version, updated_at FROM trips WHERE id::text=$1`, id)
    t, err := scanTrip(row)
    if errors.Is(err, sql.ErrNoRows) { return t, ErrNotFound }
    return t, err
}

func (p *Postgres) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
    id := uuid.New().String()
    days, err := json.Marshal(withEventIDs(in.Days))
    if err != nil { return model.Trip{}, err }
    row := p.db.QueryRowContext(ctx, `INSERT INTO trips (id, name, start_date, days) VALUES ($1,$2,$3,$4::jsonb) RETURNING id::text, name, start_date, days, version, updated_at`,
        id, in.Name, nullIfEmpty(in.StartDate), string(days))
    return scanTrip(row)
}

func (p *Postgres) SaveTripDays(ctx context.Context, id string, days []model.TripDay) (model.Trip, error) {
    b, err := json.Marshal(withEventIDs(days))
    if err != nil { return model.Trip{}, err }
    row := p.db.QueryRowContext(ctx, `UPDATE trips SET days=$1::jsonb, version=version+1, updated_at=now() WHERE id::text=$2 RETURNING id::text, name, start_date, days, version, updated_at`, string(b), id)
    t, err := scanTrip(row)
    if errors.Is(err, sql.ErrNoRows) { return t, ErrNotFound }
    return t, err
}

type scanner interface{ Scan(dest ...any) error }

func scanPlace(row scanner) (model.Place, error) {
    var pl model.Place
    var category, open, closeAt sql.NullString
    if err := row.Scan(&pl.ID, &pl.Name, &category, &pl.Lat, &pl.Lng, &pl.VisitMin, &open, &closeAt); err != nil {
        return model.Place{}, err
    }
    pl.Category = category.String
    pl.OpenTime = open.String
    pl.CloseTime = closeAt.String
    return pl, nil
}

func scanTrip(row scanner) (model.Trip, error) {
    var t model.Trip
    var start sql.NullString
    var days []byte
    var updated time.Time
    if err := row.Scan(&t.ID, &t.Name, &start, &days, &t.Version, &updated); err != nil {
        return model.Trip{}, err
    }
    t.StartDate = start.String
    t.UpdatedAt = updated.UTC().Format(time.RFC3339)
    if err := decodeDays(days, &t); err != nil { return model.Trip{}, err }
    return t, nil
}

func decodeDays(raw []byte, t *model.Trip) error {
    t.Days = []model.TripDay{}
    if len(raw) == 0 { return nil }
    if err := json.Unmarshal(raw, &t.Days); err != nil {
        return fmt.Errorf("decode days of trip %s: %w", t.ID, err)
    }
    return nil
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
