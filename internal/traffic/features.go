package traffic

import (
	"time"

	"github.com/loschorros/backend/internal/domain"
)

var afternoonRain = []float64{0, 0, 0.5, 1.0, 2.0}

// DrawPrecipitation synthesizes rainfall (mm) for an hour; only 16:00-20:00 can rain
func DrawPrecipitation(hour int, rng Rand) float64 {
	if hour < 16 || hour > 20 {
		return 0
	}
	i := int(rng.Float64() * float64(len(afternoonRain)))
	if i >= len(afternoonRain) {
		i = len(afternoonRain) - 1
	}
	return afternoonRain[i]
}

// CommuteFlags returns student and worker ingress/egress flags for an hour
func CommuteFlags(hour int) (studentsIn, studentsOut, workersIn, workersOut bool) {
	studentsIn = hour == 7 || hour == 8
	studentsOut = hour == 12 || hour == 17 || hour == 18
	workersIn = hour == 7 || hour == 8
	workersOut = hour == 17 || hour == 18
	return
}

// IsWeekend reports Saturday or Sunday
func IsWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// BuildHourRow synthesizes the feature row of one hour for a segment
func BuildHourRow(seg domain.Segment, day time.Time, hour int, rng Rand) domain.HourlyFeatureRow {
	hour = NormalizeHour(hour)
	ts := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
	weekend := IsWeekend(ts.Weekday())
	base := BaseCongestion(hour, rng)
	precip := DrawPrecipitation(hour, rng)
	sIn, sOut, wIn, wOut := CommuteFlags(hour)

	level := AdjustCongestion(base, precip)
	speed := AdjustSpeed(SpeedFromCongestion(level, rng), seg.Construction, precip)
	load := LoadFromCongestion(level, LoadConditions{
		TransitHeavy: seg.TransitHeavy,
		Raining:      precip > 0,
		Weekend:      weekend,
	})

	return domain.HourlyFeatureRow{
		Timestamp:      ts,
		Hour:           hour,
		DayType:        domain.WeekdayName(ts.Weekday()),
		Weekend:        weekend,
		Precipitation:  precip,
		StudentsIn:     sIn,
		StudentsOut:    sOut,
		WorkersIn:      wIn,
		WorkersOut:     wOut,
		Peak:           base >= 4,
		Construction:   seg.Construction,
		LengthKM:       seg.LengthKM,
		StopCount:      seg.StopCount,
		SpeedKMH:       speed,
		Load:           load,
		BaseCongestion: base,
		SegmentID:      seg.ID,
		TransitHeavy:   seg.TransitHeavy,
	}
}

// BuildDayFrame synthesizes the 24 hourly rows of a civil day for a segment.
// day may be any instant of the day; its location defines the civil day.
func BuildDayFrame(seg domain.Segment, day time.Time, rng Rand) []domain.HourlyFeatureRow {
	rows := make([]domain.HourlyFeatureRow, 0, domain.HoursPerDay)
	for h := 0; h < domain.HoursPerDay; h++ {
		rows = append(rows, BuildHourRow(seg, day, h, rng))
	}
	return rows
}
