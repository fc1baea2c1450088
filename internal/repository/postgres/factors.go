package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/loschorros/backend/internal/domain"
)

const factorColumns = `id, nombre, tipo, fecha_inicio, fecha_fin, latitud, longitud, segmento_id,
	nivel_impacto, descripcion, activo, fecha_creacion`

// ActiveFactors returns active factors overlapping [from, to)
func (r *PostgresRepository) ActiveFactors(ctx context.Context, from, to time.Time) ([]domain.ExternalFactor, error) {
	return r.queryFactors(ctx, `
		SELECT `+factorColumns+` FROM factores_externos
		WHERE activo AND fecha_inicio < $1 AND fecha_fin > $2
		ORDER BY id`,
		to, from)
}

// ListFactors returns factors newest first
func (r *PostgresRepository) ListFactors(ctx context.Context, activeOnly bool) ([]domain.ExternalFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM factores_externos`
	if activeOnly {
		query += ` WHERE activo`
	}
	return r.queryFactors(ctx, query+` ORDER BY id DESC`)
}

// LatestFactor returns the newest factor of a kind created at or after since
func (r *PostgresRepository) LatestFactor(ctx context.Context, kind domain.FactorKind, since time.Time) (*domain.ExternalFactor, error) {
	factors, err := r.queryFactors(ctx, `
		SELECT `+factorColumns+` FROM factores_externos
		WHERE tipo = $1 AND fecha_creacion >= $2
		ORDER BY fecha_creacion DESC, id DESC LIMIT 1`,
		string(kind), since)
	if err != nil || len(factors) == 0 {
		return nil, err
	}
	return &factors[0], nil
}

// SaveFactor inserts a factor (assigning its ID) or updates it
func (r *PostgresRepository) SaveFactor(ctx context.Context, f *domain.ExternalFactor) error {
	if f.ID == 0 {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = r.now().UTC()
		}
		err := r.pool.QueryRow(ctx, `
			INSERT INTO factores_externos (nombre, tipo, fecha_inicio, fecha_fin, latitud, longitud,
				segmento_id, nivel_impacto, descripcion, activo, fecha_creacion)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			f.Name, string(f.Kind), f.Start, f.End, f.Lat, f.Lng,
			f.SegmentID, f.Impact, f.Description, f.Active, f.CreatedAt,
		).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("postgres: failed to insert factor: %w", err)
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE factores_externos SET nombre = $1, tipo = $2, fecha_inicio = $3, fecha_fin = $4,
			latitud = $5, longitud = $6, segmento_id = $7, nivel_impacto = $8, descripcion = $9, activo = $10
		WHERE id = $11`,
		f.Name, string(f.Kind), f.Start, f.End, f.Lat, f.Lng,
		f.SegmentID, f.Impact, f.Description, f.Active, f.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update factor %d: %w", f.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: factor %d not found", f.ID)
	}
	return nil
}

func (r *PostgresRepository) queryFactors(ctx context.Context, query string, args ...any) ([]domain.ExternalFactor, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query factors: %w", err)
	}
	defer rows.Close()

	var out []domain.ExternalFactor
	for rows.Next() {
		var (
			f    domain.ExternalFactor
			kind string
		)
		err := rows.Scan(&f.ID, &f.Name, &kind, &f.Start, &f.End, &f.Lat, &f.Lng, &f.SegmentID,
			&f.Impact, &f.Description, &f.Active, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan factor row: %w", err)
		}
		f.Kind = domain.FactorKind(kind)
		f.Start, f.End, f.CreatedAt = f.Start.UTC(), f.End.UTC(), f.CreatedAt.UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read factors: %w", err)
	}
	return out, nil
}
