package domain

// HourlyMetric aggregates the predictions of one hour across the selected segments
type HourlyMetric struct {
	Hour               int     `json:"hora"`
	AvgCongestion      float64 `json:"congestion_promedio"`
	AvgSpeedKMH        float64 `json:"velocidad_promedio"`
	AvgLoad            float64 `json:"carga_promedio"`
	TotalTravelMinutes float64 `json:"tiempo_total_min"`
	Peak               bool    `json:"hora_pico"`
}

// DailyMetrics summarizes a forecast day
type DailyMetrics struct {
	Day           string         `json:"fecha"`
	SegmentID     *int           `json:"segmento_id,omitempty"`
	Segments      int            `json:"segmentos"`
	Hours         []HourlyMetric `json:"horas"`
	MorningPeak   int            `json:"pico_principal"`
	AfternoonPeak int            `json:"pico_secundario"`
	TopHours      []int          `json:"horas_mas_congestionadas"`
	AvgCongestion float64        `json:"congestion_promedio"`
	Label         string         `json:"nivel"`
}
