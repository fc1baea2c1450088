// Package training builds per-segment model artifacts from historical or simulated observations
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/loschorros/backend/internal/domain"
)

// Columns is the dataset header, in file order
var Columns = []string{
	"segmento_id", "fecha", "hora", "tipo_dia", "es_fin",
	"precipitacion", "entrada_estudiantes", "salida_estudiantes",
	"entrada_trabajadores", "salida_trabajadores", "hora_pico",
	"longitud_km", "paradas_cercanas",
	"nivel_congestion", "velocidad_kmh",
	"carga_vehicular", "construccion_vial",
}

var requiredColumns = []string{"segmento_id", "fecha", "hora", "nivel_congestion"}

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing column")

// WriteCSV writes observations with a header row
func WriteCSV(w io.Writer, obs []domain.Observation, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("training: failed to write header: %w", err)
	}
	for _, o := range obs {
		ts := o.Timestamp.In(loc)
		record := []string{
			strconv.Itoa(o.SegmentID),
			ts.Format(domain.DayLayout),
			fmt.Sprintf("%02d:00", o.Hour),
			o.DayType,
			flag(o.Weekend),
			formatFloat(o.Precipitation),
			flag(o.StudentsIn),
			flag(o.StudentsOut),
			flag(o.WorkersIn),
			flag(o.WorkersOut),
			flag(o.Peak),
			formatFloat(o.LengthKM),
			strconv.Itoa(o.StopCount),
			formatFloat(o.Congestion),
			formatFloat(o.SpeedKMH),
			strconv.Itoa(o.Load),
			flag(o.Construction),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("training: failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a dataset. Columns are matched by header name; optional columns that are
// absent read as zero. fecha + hora are interpreted in loc.
func ReadCSV(r io.Reader, loc *time.Location) ([]domain.Observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("training: failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("training: %w %q", ErrMissingColumn, name)
		}
	}

	var out []domain.Observation
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("training: line %d: %w", line, err)
		}
		o, err := parseRecord(record, index, loc)
		if err != nil {
			return nil, fmt.Errorf("training: line %d: %w", line, err)
		}
		out = append(out, o)
	}
	return out, nil
}

type rowReader struct {
	record []string
	index  map[string]int
	err    error
}

func (r *rowReader) str(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func (r *rowReader) floatCol(name string) float64 {
	s := r.str(name)
	if s == "" || r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (r *rowReader) intCol(name string) int {
	return int(r.floatCol(name))
}

// boolCol accepts 0/1 as well as true/false
func (r *rowReader) boolCol(name string) bool {
	switch strings.ToLower(r.str(name)) {
	case "1", "true", "1.0":
		return true
	default:
		return false
	}
}

func parseRecord(record []string, index map[string]int, loc *time.Location) (domain.Observation, error) {
	r := &rowReader{record: record, index: index}

	day, err := domain.ParseDay(r.str("fecha"), loc)
	if err != nil {
		return domain.Observation{}, err
	}
	hour, err := domain.ParseHour(r.str("hora"))
	if err != nil {
		return domain.Observation{}, err
	}
	ts := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)

	dayType := r.str("tipo_dia")
	if dayType == "" {
		dayType = domain.WeekdayName(ts.Weekday())
	}

	o := domain.Observation{
		HourlyFeatureRow: domain.HourlyFeatureRow{
			Timestamp:     ts,
			Hour:          hour,
			DayType:       dayType,
			Weekend:       r.boolCol("es_fin"),
			Precipitation: r.floatCol("precipitacion"),
			StudentsIn:    r.boolCol("entrada_estudiantes"),
			StudentsOut:   r.boolCol("salida_estudiantes"),
			WorkersIn:     r.boolCol("entrada_trabajadores"),
			WorkersOut:    r.boolCol("salida_trabajadores"),
			Peak:          r.boolCol("hora_pico"),
			Construction:  r.boolCol("construccion_vial"),
			LengthKM:      r.floatCol("longitud_km"),
			StopCount:     r.intCol("paradas_cercanas"),
			SpeedKMH:      r.floatCol("velocidad_kmh"),
			Load:          r.intCol("carga_vehicular"),
			SegmentID:     r.intCol("segmento_id"),
		},
		Congestion: r.floatCol("nivel_congestion"),
	}
	if r.err != nil {
		return domain.Observation{}, r.err
	}
	if o.SegmentID <= 0 {
		return domain.Observation{}, fmt.Errorf("%w: %d", domain.ErrInvalidSegment, o.SegmentID)
	}
	return o, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
