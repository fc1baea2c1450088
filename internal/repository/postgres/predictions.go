package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

const predictionColumns = `segmento_id, fecha_hora, congestion_predicha, congestion_min, congestion_max,
	velocidad_estimada, carga_vehicular, tiempo_estimado_min, congestion_base, congestion_modelo,
	tendencia, modelo_version, fecha_creacion, fecha_actualizacion`

// dayDate converts a civil day key into the value bound to DATE columns
func dayDate(day string) (time.Time, error) {
	d, err := time.Parse(domain.DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDateFormat, day)
	}
	return d, nil
}

// QueryPredictions returns rows of a segment with timestamps in [from, to)
func (r *PostgresRepository) QueryPredictions(ctx context.Context, segmentID int, from, to time.Time) ([]domain.CongestionPrediction, error) {
	return queryPredictions(ctx, r.pool, `
		SELECT `+predictionColumns+` FROM predicciones_segmento
		WHERE segmento_id = $1 AND fecha_hora >= $2 AND fecha_hora < $3
		ORDER BY fecha_hora`,
		segmentID, from, to)
}

// DayPredictions returns the rows stored for a civil day
func (r *PostgresRepository) DayPredictions(ctx context.Context, segmentID int, day string) ([]domain.CongestionPrediction, error) {
	return dayPredictions(ctx, r.pool, segmentID, day)
}

func dayPredictions(ctx context.Context, q querier, segmentID int, day string) ([]domain.CongestionPrediction, error) {
	d, err := dayDate(day)
	if err != nil {
		return nil, err
	}
	return queryPredictions(ctx, q, `
		SELECT `+predictionColumns+` FROM predicciones_segmento
		WHERE segmento_id = $1 AND fecha = $2
		ORDER BY fecha_hora`,
		segmentID, d)
}

func queryPredictions(ctx context.Context, q querier, query string, args ...any) ([]domain.CongestionPrediction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []domain.CongestionPrediction
	for rows.Next() {
		var p domain.CongestionPrediction
		err := rows.Scan(&p.SegmentID, &p.Timestamp, &p.Congestion, &p.CongestionLower, &p.CongestionUpper,
			&p.SpeedKMH, &p.Load, &p.TravelMinutes, &p.BaseCongestion, &p.ModelEstimate,
			&p.Trend, &p.ModelVersion, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan prediction row: %w", err)
		}
		p.Timestamp, p.CreatedAt, p.UpdatedAt = p.Timestamp.UTC(), p.CreatedAt.UTC(), p.UpdatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read predictions: %w", err)
	}
	return out, nil
}

// ForecastDay returns the marker of a day or nil
func (r *PostgresRepository) ForecastDay(ctx context.Context, segmentID int, day string) (*domain.ForecastDay, error) {
	return forecastDay(ctx, r.pool, segmentID, day)
}

func forecastDay(ctx context.Context, q querier, segmentID int, day string) (*domain.ForecastDay, error) {
	d, err := dayDate(day)
	if err != nil {
		return nil, err
	}
	var (
		m       domain.ForecastDay
		version uuid.UUID
	)
	err = q.QueryRow(ctx, `
		SELECT segmento_id, version, filas, calculado_en
		FROM dias_pronostico WHERE segmento_id = $1 AND fecha = $2`,
		segmentID, d,
	).Scan(&m.SegmentID, &version, &m.Rows, &m.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read forecast day: %w", err)
	}
	m.Day, m.Version, m.ComputedAt = day, version.String(), m.ComputedAt.UTC()
	return &m, nil
}

// ReplaceDay deletes the day's rows, batch-inserts the new ones and upserts the marker in one transaction
func (r *PostgresRepository) ReplaceDay(ctx context.Context, segmentID int, day string, records []domain.CongestionPrediction) (*domain.ForecastDay, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	marker, err := r.replaceDay(ctx, tx, segmentID, day, records)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: failed to commit predictions: %w", err)
	}
	return marker, nil
}

func (r *PostgresRepository) replaceDay(ctx context.Context, q querier, segmentID int, day string, records []domain.CongestionPrediction) (*domain.ForecastDay, error) {
	if err := repository.ValidateDay(segmentID, records); err != nil {
		return nil, err
	}
	d, err := dayDate(day)
	if err != nil {
		return nil, err
	}
	version := uuid.New()
	marker := &domain.ForecastDay{
		SegmentID:  segmentID,
		Day:        day,
		Version:    version.String(),
		Rows:       len(records),
		ComputedAt: r.now().UTC(),
	}

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM predicciones_segmento WHERE segmento_id = $1 AND fecha = $2", segmentID, d)
	for _, p := range records {
		batch.Queue(`
			INSERT INTO predicciones_segmento (fecha, `+predictionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (segmento_id, fecha_hora) DO UPDATE SET
				fecha = EXCLUDED.fecha,
				congestion_predicha = EXCLUDED.congestion_predicha,
				congestion_min = EXCLUDED.congestion_min,
				congestion_max = EXCLUDED.congestion_max,
				velocidad_estimada = EXCLUDED.velocidad_estimada,
				carga_vehicular = EXCLUDED.carga_vehicular,
				tiempo_estimado_min = EXCLUDED.tiempo_estimado_min,
				congestion_base = EXCLUDED.congestion_base,
				congestion_modelo = EXCLUDED.congestion_modelo,
				tendencia = EXCLUDED.tendencia,
				modelo_version = EXCLUDED.modelo_version,
				fecha_actualizacion = EXCLUDED.fecha_actualizacion`,
			d, p.SegmentID, p.Timestamp, p.Congestion, p.CongestionLower, p.CongestionUpper,
			p.SpeedKMH, p.Load, p.TravelMinutes, p.BaseCongestion, p.ModelEstimate,
			p.Trend, p.ModelVersion, p.CreatedAt, p.UpdatedAt,
		)
	}
	batch.Queue(`
		INSERT INTO dias_pronostico (segmento_id, fecha, version, filas, calculado_en)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (segmento_id, fecha) DO UPDATE SET
			version = EXCLUDED.version,
			filas = EXCLUDED.filas,
			calculado_en = EXCLUDED.calculado_en`,
		segmentID, d, version, marker.Rows, marker.ComputedAt,
	)

	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("postgres: failed to replace forecast day: %w", err)
	}
	return marker, nil
}

// EnsureDay runs get-or-compute for a day under an advisory lock, so concurrent
// processes sharing the database compute each day at most once
func (r *PostgresRepository) EnsureDay(ctx context.Context, segmentID int, day string, compute domain.ComputeDayFunc) ([]domain.CongestionPrediction, bool, error) {
	var (
		rows     []domain.CongestionPrediction
		computed bool
	)
	err := r.withLockedTx(ctx, "day", repository.DayKey(segmentID, day), func(tx pgx.Tx) error {
		marker, err := forecastDay(ctx, tx, segmentID, day)
		if err != nil {
			return err
		}
		if marker != nil {
			stored, err := dayPredictions(ctx, tx, segmentID, day)
			if err != nil {
				return err
			}
			if len(stored) == marker.Rows {
				rows = stored
				return nil
			}
		}

		fresh, err := compute(ctx)
		if err != nil {
			return err
		}
		if _, err := r.replaceDay(ctx, tx, segmentID, day, fresh); err != nil {
			return err
		}
		rows, computed = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return repository.CopyPredictions(rows), computed, nil
}

// InvalidateDay drops the marker of a day
func (r *PostgresRepository) InvalidateDay(ctx context.Context, segmentID int, day string) error {
	d, err := dayDate(day)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx,
		"DELETE FROM dias_pronostico WHERE segmento_id = $1 AND fecha = $2", segmentID, d); err != nil {
		return fmt.Errorf("postgres: failed to invalidate forecast day: %w", err)
	}
	return nil
}

// GetRecommendation returns the stored recommendation or nil
func (r *PostgresRepository) GetRecommendation(ctx context.Context, key domain.RecommendationKey) (*domain.RouteRecommendation, error) {
	return getRecommendation(ctx, r.pool, key)
}

func getRecommendation(ctx context.Context, q querier, key domain.RecommendationKey) (*domain.RouteRecommendation, error) {
	var (
		rec     domain.RouteRecommendation
		mode    string
		details domain.RecommendationDetails
	)
	err := q.QueryRow(ctx, `
		SELECT modo, fecha_hora, ganador_id, ganador_nombre, tiempo_estimado_min,
			congestion_promedio, detalles, fecha_calculo
		FROM recomendaciones WHERE modo = $1 AND fecha_hora = $2`,
		string(key.Mode), key.Slot,
	).Scan(&mode, &rec.Slot, &rec.WinnerID, &rec.WinnerName, &rec.TravelMinutes,
		&rec.Congestion, &details, &rec.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read recommendation: %w", err)
	}
	rec.Mode = domain.RecommendationMode(mode)
	rec.Slot, rec.ComputedAt = rec.Slot.UTC(), rec.ComputedAt.UTC()
	rec.Alternatives, rec.SkippedRoutes = details.Alternatives, details.SkippedRoutes
	return &rec, nil
}

// SaveRecommendation upserts a recommendation by (mode, slot)
func (r *PostgresRepository) SaveRecommendation(ctx context.Context, rec *domain.RouteRecommendation) error {
	return saveRecommendation(ctx, r.pool, rec)
}

func saveRecommendation(ctx context.Context, q querier, rec *domain.RouteRecommendation) error {
	details := domain.RecommendationDetails{
		Alternatives:  rec.Alternatives,
		SkippedRoutes: rec.SkippedRoutes,
	}
	_, err := q.Exec(ctx, `
		INSERT INTO recomendaciones (modo, fecha_hora, ganador_id, ganador_nombre,
			tiempo_estimado_min, congestion_promedio, detalles, fecha_calculo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (modo, fecha_hora) DO UPDATE SET
			ganador_id = EXCLUDED.ganador_id,
			ganador_nombre = EXCLUDED.ganador_nombre,
			tiempo_estimado_min = EXCLUDED.tiempo_estimado_min,
			congestion_promedio = EXCLUDED.congestion_promedio,
			detalles = EXCLUDED.detalles,
			fecha_calculo = EXCLUDED.fecha_calculo`,
		string(rec.Mode), rec.Slot, rec.WinnerID, rec.WinnerName,
		rec.TravelMinutes, rec.Congestion, details, rec.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save recommendation: %w", err)
	}
	return nil
}

// EnsureRecommendation runs get-or-compute for a slot under an advisory lock
func (r *PostgresRepository) EnsureRecommendation(ctx context.Context, key domain.RecommendationKey, compute domain.ComputeRecommendationFunc) (*domain.RouteRecommendation, bool, error) {
	var (
		rec      *domain.RouteRecommendation
		computed bool
	)
	err := r.withLockedTx(ctx, "recommendation", key.String(), func(tx pgx.Tx) error {
		existing, err := getRecommendation(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			rec = existing
			return nil
		}

		fresh, err := compute(ctx)
		if err != nil {
			return err
		}
		fresh.Mode, fresh.Slot = key.Mode, key.Slot
		if err := saveRecommendation(ctx, tx, fresh); err != nil {
			return err
		}
		rec, computed = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return repository.CopyRecommendation(rec), computed, nil
}
