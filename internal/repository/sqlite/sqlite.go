// Package sqlite implements domain.DataRepository on an embedded SQLite database
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// fixed width so text comparison orders like time
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Repository wraps a single SQLite connection with write serialization
type Repository struct {
	conn    *sql.DB
	writeMu sync.Mutex
	flight  repository.Flight
	log     logrus.FieldLogger
	now     func() time.Time
}

// Open connects to the database file at path and ensures the schema
func Open(ctx context.Context, path string, log logrus.FieldLogger) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// one writer at a time; also keeps a :memory: database alive for the process
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: failed to ping database: %w", err)
	}

	r := &Repository{conn: conn, log: log, now: time.Now}
	if err := r.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.WithField("path", path).Info("connected to SQLite")
	return r, nil
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	if err := r.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() {
	if err := r.conn.Close(); err != nil {
		r.log.WithError(err).Warn("sqlite: close failed")
	}
}

// SeedRegistry inserts the catalogue when the segment table is empty
func (r *Repository) SeedRegistry(ctx context.Context, segments []domain.Segment, routes []domain.CandidateRoute) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM segmentos").Scan(&count); err != nil {
		return fmt.Errorf("sqlite: failed to count segments: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, s := range segments {
		path, err := json.Marshal(s.Path)
		if err != nil {
			return fmt.Errorf("sqlite: failed to encode path of segment %d: %w", s.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segmentos (segmento_id, nombre, geometria, longitud_km, paradas_cercanas,
				construccion_vial, transporte_colectivo, tipos_vehiculo)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Name, string(path), s.LengthKM, s.StopCount,
			s.Construction, s.TransitHeavy, domain.EncodeVehicleClasses(s.VehicleClasses),
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert segment %d: %w", s.ID, err)
		}
	}

	for _, rt := range routes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rutas_alternas (id, nombre, descripcion, activa, segmento_inicio, segmento_fin)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rt.ID, rt.Name, rt.Description, rt.Active, nullInt(rt.StartSegment), nullInt(rt.EndSegment),
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert route %d: %w", rt.ID, err)
		}
		for i, segID := range rt.SegmentIDs {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO rutas_alternas_segmentos (ruta_id, segmento_id, orden) VALUES (?, ?, ?)",
				rt.ID, segID, i+1,
			)
			if err != nil {
				return fmt.Errorf("sqlite: failed to insert tramo %d of route %d: %w", i+1, rt.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit seed: %w", err)
	}
	r.log.WithFields(logrus.Fields{"segments": len(segments), "routes": len(routes)}).Info("registry seeded")
	return nil
}

// ListSegments returns all segments ordered by id
func (r *Repository) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT segmento_id, nombre, geometria, longitud_km, paradas_cercanas,
			construccion_vial, transporte_colectivo, tipos_vehiculo
		FROM segmentos ORDER BY segmento_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []domain.Segment
	for rows.Next() {
		var (
			s       domain.Segment
			path    string
			classes string
		)
		if err := rows.Scan(&s.ID, &s.Name, &path, &s.LengthKM, &s.StopCount,
			&s.Construction, &s.TransitHeavy, &classes); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan segment row: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &s.Path); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode path of segment %d: %w", s.ID, err)
		}
		s.VehicleClasses = domain.DecodeVehicleClasses(classes)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRoutes returns all routes with their ordered tramos
func (r *Repository) ListRoutes(ctx context.Context) ([]domain.CandidateRoute, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, nombre, descripcion, activa, segmento_inicio, segmento_fin
		FROM rutas_alternas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query routes: %w", err)
	}

	var out []domain.CandidateRoute
	index := make(map[int]int)
	for rows.Next() {
		var (
			rt         domain.CandidateRoute
			start, end sql.NullInt64
		)
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.Active, &start, &end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: failed to scan route row: %w", err)
		}
		rt.StartSegment = intFromNull(start)
		rt.EndSegment = intFromNull(end)
		index[rt.ID] = len(out)
		out = append(out, rt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read routes: %w", err)
	}

	tramos, err := r.conn.QueryContext(ctx,
		"SELECT ruta_id, segmento_id FROM rutas_alternas_segmentos ORDER BY ruta_id, orden")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query tramos: %w", err)
	}
	defer tramos.Close()
	for tramos.Next() {
		var routeID, segID int
		if err := tramos.Scan(&routeID, &segID); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan tramo row: %w", err)
		}
		if i, ok := index[routeID]; ok {
			out[i].SegmentIDs = append(out[i].SegmentIDs, segID)
		}
	}
	return out, tramos.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ domain.DataRepository = (*Repository)(nil)
