package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

const predictionColumns = `segmento_id, fecha_hora, congestion_predicha, congestion_min, congestion_max,
	velocidad_estimada, carga_vehicular, tiempo_estimado_min, congestion_base, congestion_modelo,
	tendencia, modelo_version, fecha_creacion, fecha_actualizacion`

// QueryPredictions returns rows of a segment with timestamps in [from, to)
func (r *Repository) QueryPredictions(ctx context.Context, segmentID int, from, to time.Time) ([]domain.CongestionPrediction, error) {
	return r.queryPredictions(ctx, `
		SELECT `+predictionColumns+` FROM predicciones_segmento
		WHERE segmento_id = ? AND fecha_hora >= ? AND fecha_hora < ?
		ORDER BY fecha_hora`,
		segmentID, formatTime(from), formatTime(to))
}

// DayPredictions returns the rows stored for a civil day
func (r *Repository) DayPredictions(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error) {
	return r.queryPredictions(ctx, `
		SELECT `+predictionColumns+` FROM predicciones_segmento
		WHERE segmento_id = ? AND fecha = ?
		ORDER BY fecha_hora`,
		segmentID, day)
}

func (r *Repository) queryPredictions(ctx context.Context, query string, args ...interface{}) ([]domain.CongestionPrediction, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.CongestionPrediction
	for rows.Next() {
		var (
			p                    domain.CongestionPrediction
			ts, created, updated string
		)
		err := rows.Scan(&p.SegmentID, &ts, &p.Congestion, &p.CongestionLower, &p.CongestionUpper,
			&p.SpeedKMH, &p.Load, &p.TravelMinutes, &p.BaseCongestion, &p.ModelEstimate,
			&p.Trend, &p.ModelVersion, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan prediction row: %w", err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ForecastDay returns the marker of a day or nil
func (r *Repository) ForecastDay(ctx context.Context, segmentID int, day string) (*domain.ForecastDay, error) {
	var (
		m        domain.ForecastDay
		computed string
	)
	err := r.conn.QueryRowContext(ctx, `
		SELECT segmento_id, fecha, version, filas, calculado_en
		FROM dias_pronostico WHERE segmento_id = ? AND fecha = ?`,
		segmentID, day,
	).Scan(&m.SegmentID, &m.Day, &m.Version, &m.Rows, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read forecast day: %w", err)
	}
	if m.ComputedAt, err = parseTime(computed); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReplaceDay deletes the day's rows, inserts the new batch and upserts the marker in one transaction
func (r *Repository) ReplaceDay(ctx context.Context, segmentID int, day string, records []domain.CongestionPrediction) (*domain.ForecastDay, error) {
	if err := repository.ValidateDay(segmentID, records); err != nil {
		return nil, err
	}
	marker := &domain.ForecastDay{
		SegmentID:  segmentID,
		Day:        day,
		Version:    uuid.NewString(),
		Rows:       len(records),
		ComputedAt: r.now().UTC(),
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM predicciones_segmento WHERE segmento_id = ? AND fecha = ?", segmentID, day); err != nil {
		return nil, fmt.Errorf("sqlite: failed to delete stale predictions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predicciones_segmento (fecha, `+predictionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (segmento_id, fecha_hora) DO UPDATE SET
			fecha = excluded.fecha,
			congestion_predicha = excluded.congestion_predicha,
			congestion_min = excluded.congestion_min,
			congestion_max = excluded.congestion_max,
			velocidad_estimada = excluded.velocidad_estimada,
			carga_vehicular = excluded.carga_vehicular,
			tiempo_estimado_min = excluded.tiempo_estimado_min,
			congestion_base = excluded.congestion_base,
			congestion_modelo = excluded.congestion_modelo,
			tendencia = excluded.tendencia,
			modelo_version = excluded.modelo_version,
			fecha_actualizacion = excluded.fecha_actualizacion`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range records {
		_, err := stmt.ExecContext(ctx, day,
			p.SegmentID, formatTime(p.Timestamp), p.Congestion, p.CongestionLower, p.CongestionUpper,
			p.SpeedKMH, p.Load, p.TravelMinutes, p.BaseCongestion, p.ModelEstimate,
			p.Trend, p.ModelVersion, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to insert prediction: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dias_pronostico (segmento_id, fecha, version, filas, calculado_en)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (segmento_id, fecha) DO UPDATE SET
			version = excluded.version,
			filas = excluded.filas,
			calculado_en = excluded.calculado_en`,
		segmentID, day, marker.Version, marker.Rows, formatTime(marker.ComputedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to upsert forecast day: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to commit predictions: %w", err)
	}
	return marker, nil
}

// EnsureDay runs get-or-compute for a day
func (r *Repository) EnsureDay(ctx context.Context, segmentID int, day string, compute domain.ComputeDayFunc) ([]domain.CongestionPrediction, bool, error) {
	return r.flight.EnsureDay(ctx, r, segmentID, day, compute)
}

// InvalidateDay drops the marker of a day
func (r *Repository) InvalidateDay(ctx context.Context, segmentID int, day string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.conn.ExecContext(ctx,
		"DELETE FROM dias_pronostico WHERE segmento_id = ? AND fecha = ?", segmentID, day); err != nil {
		return fmt.Errorf("sqlite: failed to invalidate forecast day: %w", err)
	}
	return nil
}

// GetRecommendation returns the stored recommendation or nil
func (r *Repository) GetRecommendation(ctx context.Context, key domain.RecommendationKey) (*domain.RouteRecommendation, error) {
	var (
		rec            domain.RouteRecommendation
		mode           string
		slot, computed string
		details        string
	)
	err := r.conn.QueryRowContext(ctx, `
		SELECT modo, fecha_hora, ganador_id, ganador_nombre, tiempo_estimado_min,
			congestion_promedio, detalles, fecha_calculo
		FROM recomendaciones WHERE modo = ? AND fecha_hora = ?`,
		string(key.Mode), formatTime(key.Slot),
	).Scan(&mode, &slot, &rec.WinnerID, &rec.WinnerName, &rec.TravelMinutes,
		&rec.Congestion, &details, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read recommendation: %w", err)
	}

	rec.Mode = domain.RecommendationMode(mode)
	if rec.Slot, err = parseTime(slot); err != nil {
		return nil, err
	}
	if rec.ComputedAt, err = parseTime(computed); err != nil {
		return nil, err
	}
	var d domain.RecommendationDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return nil, fmt.Errorf("sqlite: failed to decode recommendation details: %w", err)
	}
	rec.Alternatives, rec.SkippedRoutes = d.Alternatives, d.SkippedRoutes
	return &rec, nil
}

// SaveRecommendation upserts a recommendation by (mode, slot)
func (r *Repository) SaveRecommendation(ctx context.Context, rec *domain.RouteRecommendation) error {
	details, err := json.Marshal(domain.RecommendationDetails{
		Alternatives:  rec.Alternatives,
		SkippedRoutes: rec.SkippedRoutes,
	})
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode recommendation details: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO recomendaciones (modo, fecha_hora, ganador_id, ganador_nombre,
			tiempo_estimado_min, congestion_promedio, detalles, fecha_calculo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (modo, fecha_hora) DO UPDATE SET
			ganador_id = excluded.ganador_id,
			ganador_nombre = excluded.ganador_nombre,
			tiempo_estimado_min = excluded.tiempo_estimado_min,
			congestion_promedio = excluded.congestion_promedio,
			detalles = excluded.detalles,
			fecha_calculo = excluded.fecha_calculo`,
		string(rec.Mode), formatTime(rec.Slot), rec.WinnerID, rec.WinnerName,
		rec.TravelMinutes, rec.Congestion, string(details), formatTime(rec.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save recommendation: %w", err)
	}
	return nil
}

// EnsureRecommendation runs get-or-compute for a recommendation slot
func (r *Repository) EnsureRecommendation(ctx context.Context, key domain.RecommendationKey, compute domain.ComputeRecommendationFunc) (*domain.RouteRecommendation, bool, error) {
	return r.flight.EnsureRecommendation(ctx, r, key, compute)
}
