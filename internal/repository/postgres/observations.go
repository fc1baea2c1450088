package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

const observationColumns = `segmento_id, fecha_hora, hora, tipo_dia, es_fin, precipitacion,
	entrada_estudiantes, salida_estudiantes, entrada_trabajadores, salida_trabajadores, hora_pico,
	construccion_vial, longitud_km, paradas_cercanas, velocidad_kmh, carga_vehicular,
	congestion_base, nivel_congestion`

// observationBatchSize bounds the statements queued per round trip
const observationBatchSize = 1000

// SaveObservations upserts observations by (segment, timestamp) in one transaction
func (r *PostgresRepository) SaveObservations(ctx context.Context, obs []domain.Observation) (int, error) {
	if err := repository.ValidateObservations(obs); err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(obs); start += observationBatchSize {
		end := start + observationBatchSize
		if end > len(obs) {
			end = len(obs)
		}
		batch := &pgx.Batch{}
		for _, o := range obs[start:end] {
			batch.Queue(`
				INSERT INTO mediciones_trafico (`+observationColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
				ON CONFLICT (segmento_id, fecha_hora) DO UPDATE SET
					hora = EXCLUDED.hora,
					tipo_dia = EXCLUDED.tipo_dia,
					es_fin = EXCLUDED.es_fin,
					precipitacion = EXCLUDED.precipitacion,
					entrada_estudiantes = EXCLUDED.entrada_estudiantes,
					salida_estudiantes = EXCLUDED.salida_estudiantes,
					entrada_trabajadores = EXCLUDED.entrada_trabajadores,
					salida_trabajadores = EXCLUDED.salida_trabajadores,
					hora_pico = EXCLUDED.hora_pico,
					construccion_vial = EXCLUDED.construccion_vial,
					longitud_km = EXCLUDED.longitud_km,
					paradas_cercanas = EXCLUDED.paradas_cercanas,
					velocidad_kmh = EXCLUDED.velocidad_kmh,
					carga_vehicular = EXCLUDED.carga_vehicular,
					congestion_base = EXCLUDED.congestion_base,
					nivel_congestion = EXCLUDED.nivel_congestion`,
				o.SegmentID, o.Timestamp.UTC(), o.Hour, o.DayType, o.Weekend, o.Precipitation,
				o.StudentsIn, o.StudentsOut, o.WorkersIn, o.WorkersOut, o.Peak,
				o.Construction, o.LengthKM, o.StopCount, o.SpeedKMH, o.Load,
				o.BaseCongestion, o.Congestion,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("postgres: failed to store observations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit observations: %w", err)
	}
	return len(obs), nil
}

// QueryObservations returns observations in [from, to), all segments when segmentID is 0
func (r *PostgresRepository) QueryObservations(ctx context.Context, segmentID int, from, to time.Time) ([]domain.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM mediciones_trafico
		WHERE fecha_hora >= $1 AND fecha_hora < $2`
	args := []any{from, to}
	if segmentID != 0 {
		query += ` AND segmento_id = $3`
		args = append(args, segmentID)
	}

	rows, err := r.pool.Query(ctx, query+` ORDER BY segmento_id, fecha_hora`, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		err := rows.Scan(&o.SegmentID, &o.Timestamp, &o.Hour, &o.DayType, &o.Weekend, &o.Precipitation,
			&o.StudentsIn, &o.StudentsOut, &o.WorkersIn, &o.WorkersOut, &o.Peak,
			&o.Construction, &o.LengthKM, &o.StopCount, &o.SpeedKMH, &o.Load,
			&o.BaseCongestion, &o.Congestion)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan observation row: %w", err)
		}
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read observations: %w", err)
	}
	return out, nil
}
