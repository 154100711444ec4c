package segments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saferoads/server/internal/lib/geo"
)

// PostgresBackend persists rated segments in a single table keyed by segment
// id, with the bounding area denormalized into columns for range queries.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects a pgx pool to databaseURL and ensures the
// schema exists.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	b := &PostgresBackend{pool: pool}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS road_segments (
			id         text PRIMARY KEY,
			data       jsonb NOT NULL,
			north      double precision NOT NULL,
			south      double precision NOT NULL,
			east       double precision NOT NULL,
			west       double precision NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Get returns the persisted segment for key, or nil when absent.
func (b *PostgresBackend) Get(ctx context.Context, key string) (*RoadSegment, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM road_segments WHERE id = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment %s: %w", key, err)
	}

	var seg RoadSegment
	if err := json.Unmarshal(raw, &seg); err != nil {
		return nil, fmt.Errorf("decode segment %s: %w", key, err)
	}
	return &seg, nil
}

// Put upserts a segment snapshot.
func (b *PostgresBackend) Put(ctx context.Context, key string, seg RoadSegment) error {
	raw, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("encode segment %s: %w", key, err)
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO road_segments (id, data, north, south, east, west, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data,
		    north = EXCLUDED.north, south = EXCLUDED.south,
		    east = EXCLUDED.east, west = EXCLUDED.west,
		    updated_at = now()`,
		key, raw,
		seg.BoundingArea.North, seg.BoundingArea.South,
		seg.BoundingArea.East, seg.BoundingArea.West)
	if err != nil {
		return fmt.Errorf("put segment %s: %w", key, err)
	}
	return nil
}

// QueryByBounds returns all segments whose bounding area intersects b.
func (b *PostgresBackend) QueryByBounds(ctx context.Context, bounds geo.Bounds) ([]RoadSegment, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT data FROM road_segments
		WHERE south <= $1 AND north >= $2 AND west <= $3 AND east >= $4`,
		bounds.North, bounds.South, bounds.East, bounds.West)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []RoadSegment
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		var seg RoadSegment
		if err := json.Unmarshal(raw, &seg); err != nil {
			return nil, fmt.Errorf("decode segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
