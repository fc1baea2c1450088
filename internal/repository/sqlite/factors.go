package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loschorros/backend/internal/domain"
)

const factorColumns = `id, nombre, tipo, fecha_inicio, fecha_fin, latitud, longitud, segmento_id,
	nivel_impacto, descripcion, activo, fecha_creacion`

// ActiveFactors returns active factors overlapping [from, to)
func (r *Repository) ActiveFactors(ctx context.Context, from, to time.Time) ([]domain.ExternalFactor, error) {
	return r.queryFactors(ctx, `
		SELECT `+factorColumns+` FROM factores_externos
		WHERE activo = 1 AND fecha_inicio < ? AND fecha_fin > ?
		ORDER BY id`,
		formatTime(to), formatTime(from))
}

// ListFactors returns factors newest first
func (r *Repository) ListFactors(ctx context.Context, activeOnly bool) ([]domain.ExternalFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM factores_externos`
	if activeOnly {
		query += ` WHERE activo = 1`
	}
	return r.queryFactors(ctx, query+` ORDER BY id DESC`)
}

// LatestFactor returns the newest factor of a kind created at or after since
func (r *Repository) LatestFactor(ctx context.Context, kind domain.FactorKind, since time.Time) (*domain.ExternalFactor, error) {
	factors, err := r.queryFactors(ctx, `
		SELECT `+factorColumns+` FROM factores_externos
		WHERE tipo = ? AND fecha_creacion >= ?
		ORDER BY fecha_creacion DESC, id DESC LIMIT 1`,
		string(kind), formatTime(since))
	if err != nil || len(factors) == 0 {
		return nil, err
	}
	return &factors[0], nil
}

// SaveFactor inserts a factor (assigning its ID) or updates it
func (r *Repository) SaveFactor(ctx context.Context, f *domain.ExternalFactor) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if f.ID == 0 {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = r.now().UTC()
		}
		res, err := r.conn.ExecContext(ctx, `
			INSERT INTO factores_externos (nombre, tipo, fecha_inicio, fecha_fin, latitud, longitud,
				segmento_id, nivel_impacto, descripcion, activo, fecha_creacion)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Name, string(f.Kind), formatTime(f.Start), formatTime(f.End), nullFloat(f.Lat), nullFloat(f.Lng),
			nullInt(f.SegmentID), f.Impact, f.Description, f.Active, formatTime(f.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert factor: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: failed to read factor id: %w", err)
		}
		f.ID = id
		return nil
	}

	res, err := r.conn.ExecContext(ctx, `
		UPDATE factores_externos SET nombre = ?, tipo = ?, fecha_inicio = ?, fecha_fin = ?,
			latitud = ?, longitud = ?, segmento_id = ?, nivel_impacto = ?, descripcion = ?, activo = ?
		WHERE id = ?`,
		f.Name, string(f.Kind), formatTime(f.Start), formatTime(f.End), nullFloat(f.Lat), nullFloat(f.Lng),
		nullInt(f.SegmentID), f.Impact, f.Description, f.Active, f.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update factor %d: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: factor %d not found", f.ID)
	}
	return nil
}

func (r *Repository) queryFactors(ctx context.Context, query string, args ...interface{}) ([]domain.ExternalFactor, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query factors: %w", err)
	}
	defer rows.Close()

	var out []domain.ExternalFactor
	for rows.Next() {
		var (
			f                   domain.ExternalFactor
			kind                string
			start, end, created string
			lat, lng            sql.NullFloat64
			segmentID           sql.NullInt64
		)
		err := rows.Scan(&f.ID, &f.Name, &kind, &start, &end, &lat, &lng, &segmentID,
			&f.Impact, &f.Description, &f.Active, &created)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan factor row: %w", err)
		}
		f.Kind = domain.FactorKind(kind)
		f.Lat, f.Lng, f.SegmentID = floatFromNull(lat), floatFromNull(lng), intFromNull(segmentID)
		if f.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if f.End, err = parseTime(end); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
