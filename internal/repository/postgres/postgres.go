package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
	now  func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool, log logrus.FieldLogger) *PostgresRepository {
	return &PostgresRepository{pool: pool, log: log, now: time.Now}
}

// minPoolConns covers nested get-or-compute: a recommendation lock, the day locks
// it fans out to, and the reads each day computation makes outside its lock.
const minPoolConns = 16

// Connect opens a pool and verifies connectivity
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse dsn: %w", err)
	}
	if cfg.MaxConns < minPoolConns {
		cfg.MaxConns = minPoolConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema; every statement is idempotent
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// Close closes the pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// lockKey maps a namespaced key onto the bigint space of pg_advisory_xact_lock
func lockKey(namespace, key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(namespace))
	h.Write([]byte{':'})
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// withLockedTx runs fn in a transaction holding the advisory lock of (namespace, key).
// The lock is released when the transaction ends.
func (r *PostgresRepository) withLockedTx(ctx context.Context, namespace, key string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(namespace, key)); err != nil {
		return fmt.Errorf("postgres: failed to acquire %s lock: %w", namespace, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit: %w", err)
	}
	return nil
}

// SeedRegistry inserts the catalogue when the segment table is empty
func (r *PostgresRepository) SeedRegistry(ctx context.Context, segments []domain.Segment, routes []domain.CandidateRoute) error {
	return r.withLockedTx(ctx, "seed", "registry", func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM segmentos").Scan(&count); err != nil {
			return fmt.Errorf("postgres: failed to count segments: %w", err)
		}
		if count > 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, s := range segments {
			classes := make([]string, len(s.VehicleClasses))
			for i, c := range s.VehicleClasses {
				classes[i] = string(c)
			}
			batch.Queue(`
				INSERT INTO segmentos (segmento_id, nombre, geometria, longitud_km, paradas_cercanas,
					construccion_vial, transporte_colectivo, tipos_vehiculo)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				s.ID, s.Name, s.Path, s.LengthKM, s.StopCount, s.Construction, s.TransitHeavy, classes,
			)
		}
		for _, rt := range routes {
			batch.Queue(`
				INSERT INTO rutas_alternas (id, nombre, descripcion, activa, segmento_inicio, segmento_fin)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				rt.ID, rt.Name, rt.Description, rt.Active, rt.StartSegment, rt.EndSegment,
			)
			for i, segID := range rt.SegmentIDs {
				batch.Queue(
					"INSERT INTO rutas_alternas_segmentos (ruta_id, segmento_id, orden) VALUES ($1, $2, $3)",
					rt.ID, segID, i+1,
				)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: failed to seed registry: %w", err)
		}

		r.log.WithFields(logrus.Fields{"segments": len(segments), "routes": len(routes)}).Info("registry seeded")
		return nil
	})
}

// ListSegments returns all segments ordered by id
func (r *PostgresRepository) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT segmento_id, nombre, geometria, longitud_km, paradas_cercanas,
			construccion_vial, transporte_colectivo, tipos_vehiculo
		FROM segmentos ORDER BY segmento_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query segments: %w", err)
	}
	defer rows.Close()

	var results []domain.Segment
	for rows.Next() {
		var (
			s       domain.Segment
			classes []string
		)
		err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.LengthKM, &s.StopCount,
			&s.Construction, &s.TransitHeavy, &classes)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan segment row: %w", err)
		}
		for _, c := range classes {
			if vc, err := domain.ParseVehicleClass(c); err == nil {
				s.VehicleClasses = append(s.VehicleClasses, vc)
			}
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read segments: %w", err)
	}
	return results, nil
}

// ListRoutes returns all routes with their ordered tramos
func (r *PostgresRepository) ListRoutes(ctx context.Context) ([]domain.CandidateRoute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.nombre, r.descripcion, r.activa, r.segmento_inicio, r.segmento_fin,
			COALESCE(array_agg(t.segmento_id ORDER BY t.orden) FILTER (WHERE t.segmento_id IS NOT NULL), '{}')
		FROM rutas_alternas r
		LEFT JOIN rutas_alternas_segmentos t ON t.ruta_id = r.id
		GROUP BY r.id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query routes: %w", err)
	}
	defer rows.Close()

	var results []domain.CandidateRoute
	for rows.Next() {
		var rt domain.CandidateRoute
		err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.Active,
			&rt.StartSegment, &rt.EndSegment, &rt.SegmentIDs)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan route row: %w", err)
		}
		if len(rt.SegmentIDs) == 0 {
			rt.SegmentIDs = nil
		}
		results = append(results, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read routes: %w", err)
	}
	return results, nil
}

var _ domain.DataRepository = (*PostgresRepository)(nil)
