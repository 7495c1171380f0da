// Package postgis stores raw point features in PostGIS and reads them back in
// insertion order, so a clustering pass over the store matches one over the
// source file.
package postgis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/1F47E/geo-marker-cluster/pkg/features"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

const batchSize = 10000

type Store struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Open connects to PostGIS using a lib/pq connection string
func Open(ctx context.Context, connStr, table string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newStore(db, table, logger), nil
}

func newStore(db *sql.DB, table string, logger *slog.Logger) *Store {
	if table == "" {
		table = "features"
	}
	return &Store{db: db, table: table, logger: logger}
}

func (s *Store) String() string { return "postgis:" + s.table }

func (s *Store) ident() string { return pq.QuoteIdentifier(s.table) }

func (s *Store) indexIdent() string { return pq.QuoteIdentifier("idx_" + s.table + "_location") }

// InitSchema recreates the feature table. seq keeps the dataset order.
func (s *Store) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, s.ident()),
		fmt.Sprintf(`CREATE TABLE %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			properties JSONB NOT NULL DEFAULT '{}'::jsonb,
			location GEOMETRY(POINT, 4326) NOT NULL
		);`, s.ident()),
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// CreateSpatialIndex creates a GIST index on the geometry column
func (s *Store) CreateSpatialIndex(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIST(location);`, s.indexIdent(), s.ident())

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ANALYZE %s;", s.ident())); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	s.logger.Info("created spatial index", "table", s.table, "elapsed", time.Since(start))
	return nil
}

// BulkInsert appends features in input order, committing every batchSize rows
func (s *Store) BulkInsert(ctx context.Context, fs []*models.Feature) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, properties, location)
		VALUES ($1, $2::jsonb, ST_SetSRID(ST_MakePoint($3, $4), 4326))
	`, s.ident())

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStmt := tx.StmtContext(ctx, stmt)

	for i, f := range fs {
		r, err := toRow(f)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := txStmt.ExecContext(ctx, r.id, string(r.properties), r.lon, r.lat); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert feature %s: %w", f.ID, err)
		}

		if (i+1)%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit batch: %w", err)
			}
			s.logger.Debug("committed batch", "table", s.table, "rows", i+1)

			tx, err = s.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to begin new transaction: %w", err)
			}
			txStmt = tx.StmtContext(ctx, stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final batch: %w", err)
	}
	return nil
}

// Load reads every stored feature in insertion order
func (s *Store) Load(ctx context.Context) (features.DecodeResult, error) {
	query := fmt.Sprintf(`
		SELECT id, properties, ST_X(location) AS lon, ST_Y(location) AS lat
		FROM %s
		ORDER BY seq
	`, s.ident())
	return s.query(ctx, query)
}

// QueryBox reads the features inside box, in insertion order. The envelope
// test is inclusive; the pipeline filter applies the strict edge rule.
func (s *Store) QueryBox(ctx context.Context, box models.BoundingBox) (features.DecodeResult, error) {
	query := fmt.Sprintf(`
		SELECT id, properties, ST_X(location) AS lon, ST_Y(location) AS lat
		FROM %s
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY seq
	`, s.ident())
	return s.query(ctx, query,
		box.BottomLeft.Lon, box.BottomLeft.Lat,
		box.TopRight.Lon, box.TopRight.Lat)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (features.DecodeResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return features.DecodeResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var fc []*geojson.Feature
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.properties, &r.lon, &r.lat); err != nil {
			return features.DecodeResult{}, fmt.Errorf("failed to scan row: %w", err)
		}
		gf, err := r.feature()
		if err != nil {
			return features.DecodeResult{}, err
		}
		fc = append(fc, gf)
	}
	if err := rows.Err(); err != nil {
		return features.DecodeResult{}, fmt.Errorf("rows error: %w", err)
	}

	return features.FromCollection(&geojson.FeatureCollection{Type: "FeatureCollection", Features: fc}), nil
}

// Count returns the number of stored features
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.ident())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return count, nil
}

// Stats returns table and index sizes plus the row count
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var tableSize, indexSize string
	err := s.db.QueryRowContext(ctx, `
		SELECT
			pg_size_pretty(pg_total_relation_size($1::regclass)),
			pg_size_pretty(pg_indexes_size($1::regclass))
	`, s.table).Scan(&tableSize, &indexSize)
	if err != nil {
		// table might not exist yet
		stats["table_size"] = "0 bytes"
		stats["index_size"] = "0 bytes"
	} else {
		stats["table_size"] = tableSize
		stats["index_size"] = indexSize
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats["row_count"] = count
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type row struct {
	id         string
	properties []byte
	lon, lat   float64
}

func toRow(f *models.Feature) (row, error) {
	props := f.Properties
	if props == nil {
		props = map[string]any{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return row{}, fmt.Errorf("failed to encode properties of %s: %w", f.ID, err)
	}
	return row{id: f.ID, properties: data, lon: f.Location.Lon, lat: f.Location.Lat}, nil
}

// feature rebuilds the GeoJSON feature so stored rows pass the same
// validation as file input. The id column fills in a missing properties.id.
func (r row) feature() (*geojson.Feature, error) {
	gf := geojson.NewFeature(orb.Point{r.lon, r.lat})
	if len(r.properties) > 0 {
		if err := json.Unmarshal(r.properties, &gf.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties of %s: %w", r.id, err)
		}
		if gf.Properties == nil {
			gf.Properties = geojson.Properties{}
		}
	}
	if _, ok := gf.Properties["id"]; !ok {
		gf.Properties["id"] = r.id
	}
	return gf, nil
}
