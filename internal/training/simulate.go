package training

import (
	"time"

	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/traffic"
	"github.com/loschorros/backend/pkg/utils"
)

// Commute and transit pressure added to the diurnal curve when simulating history
const (
	studentShift = 0.3
	workerShift  = 0.4
	transitShift = 0.5
)

// Simulate generates days of hourly observations for every segment starting at start's civil day.
// Feature synthesis is shared with the online forecast; the target adds commute and transit
// pressure on top of the diurnal curve.
func Simulate(segments []domain.Segment, start time.Time, days int, rng traffic.Rand) []domain.Observation {
	out := make([]domain.Observation, 0, days*domain.HoursPerDay*len(segments))
	first := domain.DayStart(start, start.Location())
	for d := 0; d < days; d++ {
		day := first.AddDate(0, 0, d)
		for h := 0; h < domain.HoursPerDay; h++ {
			for _, seg := range segments {
				out = append(out, simulateHour(seg, day, h, rng))
			}
		}
	}
	return out
}

func simulateHour(seg domain.Segment, day time.Time, hour int, rng traffic.Rand) domain.Observation {
	row := traffic.BuildHourRow(seg, day, hour, rng)

	level := row.BaseCongestion
	level += float64(count(row.StudentsIn, row.StudentsOut)) * studentShift
	level += float64(count(row.WorkersIn, row.WorkersOut)) * workerShift
	if seg.TransitHeavy {
		level += transitShift
	}
	level = traffic.AdjustCongestion(level, row.Precipitation)

	row.SpeedKMH = utils.RoundTo(traffic.AdjustSpeed(traffic.SpeedFromCongestion(level, rng), seg.Construction, row.Precipitation), 2)
	row.Load = traffic.LoadFromCongestion(level, traffic.LoadConditions{
		TransitHeavy: seg.TransitHeavy,
		Raining:      row.Precipitation > 0,
		Weekend:      row.Weekend,
	})

	return domain.Observation{HourlyFeatureRow: row, Congestion: utils.RoundTo(level, 3)}
}

func count(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
