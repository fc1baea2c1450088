package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository"
)

const observationColumns = `segmento_id, fecha_hora, hora, tipo_dia, es_fin, precipitacion,
	entrada_estudiantes, salida_estudiantes, entrada_trabajadores, salida_trabajadores, hora_pico,
	construccion_vial, longitud_km, paradas_cercanas, velocidad_kmh, carga_vehicular,
	congestion_base, nivel_congestion`

// SaveObservations upserts observations by (segment, timestamp) in one transaction
func (r *Repository) SaveObservations(ctx context.Context, obs []domain.Observation) (int, error) {
	if err := repository.ValidateObservations(obs); err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		return 0, nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mediciones_trafico (`+observationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (segmento_id, fecha_hora) DO UPDATE SET
			hora = excluded.hora,
			tipo_dia = excluded.tipo_dia,
			es_fin = excluded.es_fin,
			precipitacion = excluded.precipitacion,
			entrada_estudiantes = excluded.entrada_estudiantes,
			salida_estudiantes = excluded.salida_estudiantes,
			entrada_trabajadores = excluded.entrada_trabajadores,
			salida_trabajadores = excluded.salida_trabajadores,
			hora_pico = excluded.hora_pico,
			construccion_vial = excluded.construccion_vial,
			longitud_km = excluded.longitud_km,
			paradas_cercanas = excluded.paradas_cercanas,
			velocidad_kmh = excluded.velocidad_kmh,
			carga_vehicular = excluded.carga_vehicular,
			congestion_base = excluded.congestion_base,
			nivel_congestion = excluded.nivel_congestion`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to prepare observation upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		_, err := stmt.ExecContext(ctx,
			o.SegmentID, formatTime(o.Timestamp), o.Hour, o.DayType, o.Weekend, o.Precipitation,
			o.StudentsIn, o.StudentsOut, o.WorkersIn, o.WorkersOut, o.Peak,
			o.Construction, o.LengthKM, o.StopCount, o.SpeedKMH, o.Load,
			o.BaseCongestion, o.Congestion,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: failed to store observation of segment %d at %s: %w",
				o.SegmentID, o.Timestamp.UTC().Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: failed to commit observations: %w", err)
	}
	return len(obs), nil
}

// QueryObservations returns observations in [from, to), all segments when segmentID is 0
func (r *Repository) QueryObservations(ctx context.Context, segmentID int, from, to time.Time) ([]domain.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM mediciones_trafico
		WHERE fecha_hora >= ? AND fecha_hora < ?`
	args := []interface{}{formatTime(from), formatTime(to)}
	if segmentID != 0 {
		query += ` AND segmento_id = ?`
		args = append(args, segmentID)
	}

	rows, err := r.conn.QueryContext(ctx, query+` ORDER BY segmento_id, fecha_hora`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var (
			o  domain.Observation
			ts string
		)
		err := rows.Scan(&o.SegmentID, &ts, &o.Hour, &o.DayType, &o.Weekend, &o.Precipitation,
			&o.StudentsIn, &o.StudentsOut, &o.WorkersIn, &o.WorkersOut, &o.Peak,
			&o.Construction, &o.LengthKM, &o.StopCount, &o.SpeedKMH, &o.Load,
			&o.BaseCongestion, &o.Congestion)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan observation row: %w", err)
		}
		if o.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
