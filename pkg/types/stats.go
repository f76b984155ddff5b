package types

// HourlyStat aggregates the readings of one local hour-of-day.
type HourlyStat struct {
	Hour      int     `json:"hour"`
	AvgWatts  float64 `json:"avgWatts"`
	MaxWatts  float64 `json:"maxWatts"`
	TotalKWh  float64 `json:"totalKWh"`
	TotalCost float64 `json:"totalCost"`
	Count     int     `json:"count"`
}

// DailyStat aggregates the readings of one local calendar day.
type DailyStat struct {
	Year      int     `json:"year"`
	Month     int     `json:"month"`
	Day       int     `json:"day"`
	AvgWatts  float64 `json:"avgWatts"`
	MaxWatts  float64 `json:"maxWatts"`
	TotalKWh  float64 `json:"totalKWh"`
	TotalCost float64 `json:"totalCost"`
	Count     int     `json:"count"`
}

// Stats summarises every reading in a time range.
type Stats struct {
	TotalKWh     float64 `json:"totalKWh"`
	TotalCost    float64 `json:"totalCost"`
	AvgWatts     float64 `json:"avgWatts"`
	MaxWatts     float64 `json:"maxWatts"`
	ReadingCount int     `json:"readingCount"`
}

// CostProjection is the instantaneous cost view of a single power reading.
type CostProjection struct {
	KW                 float64 `json:"kW"`
	RatePerKWh         float64 `json:"ratePerKWh"`
	HourlyCost         float64 `json:"hourlyCost"`
	ProjectedDailyCost float64 `json:"projectedDailyCost"`
}

// ProjectCost returns what watts would cost per hour and per day at rate.
func ProjectCost(watts, rate float64) CostProjection {
	kw := watts / 1000
	hourly := kw * rate
	return CostProjection{
		KW:                 kw,
		RatePerKWh:         rate,
		HourlyCost:         hourly,
		ProjectedDailyCost: hourly * 24,
	}
}
