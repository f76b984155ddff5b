package efficiency

// TipID identifies which rule produced a tip.
type TipID string

const (
	TipPeakOffPeak      TipID = "peak_off_peak"
	TipPeakConsistent   TipID = "peak_consistent"
	TipPeakTemporary    TipID = "peak_temporary"
	TipStandbyNight     TipID = "standby_night"
	TipStandbyCostly    TipID = "standby_costly"
	TipStandbyMinor     TipID = "standby_minor"
	TipScoreLow         TipID = "score_low"
	TipScoreModerate    TipID = "score_moderate"
	TipHighDailyCost    TipID = "high_daily_cost"
	TipNightScheduler   TipID = "night_scheduler"
	TipAfternoonPattern TipID = "afternoon_pattern"
	TipAboveYesterday   TipID = "above_yesterday"
)

// Tip is one piece of advice.
type Tip struct {
	ID      TipID  `json:"id"`
	Message string `json:"message"`
}

var tipMessages = map[TipID]string{
	TipPeakOffPeak:      "Critical: high power usage during off-peak hours. Consider rescheduling these activities for daytime.",
	TipPeakConsistent:   "Consistently high power usage. Spread device usage throughout the day and check for energy-intensive appliances.",
	TipPeakTemporary:    "Temporary high power usage detected. This might increase your peak demand charges.",
	TipStandbyNight:     "Night-time standby power detected. Use a timer or smart plug to cut power to non-essential devices.",
	TipStandbyCostly:    "Standby power is adding to your daily cost. A smart power strip can eliminate phantom loads.",
	TipStandbyMinor:     "Minor standby power detected. Group similar devices on a single switchable outlet.",
	TipScoreLow:         "Low efficiency score. Schedule an energy audit to find the major power drains.",
	TipScoreModerate:    "Moderate efficiency. Small changes like LED bulbs and regular maintenance can improve your score.",
	TipHighDailyCost:    "High daily cost projected. Run energy-intensive devices during off-peak rate hours.",
	TipNightScheduler:   "Use scheduler features or timers to manage device power during night hours.",
	TipAfternoonPattern: "Peak afternoon usage detected. Shift non-essential tasks to morning or evening.",
	TipAboveYesterday:   "Usage is 20% higher than yesterday. Review recent changes in device usage.",
}

func newTip(id TipID) Tip {
	return Tip{ID: id, Message: tipMessages[id]}
}

const (
	// costlyStandbyDailyCost is the daily cost above which standby is called out as costly.
	costlyStandbyDailyCost = 5
	// highProjectedDailyCost triggers the projected cost tip.
	highProjectedDailyCost = 10
	// aboveYesterdayFactor is how much higher today's average must be.
	aboveYesterdayFactor = 1.2
)

// Advise evaluates every rule in a fixed order. Each rule adds at most one tip.
func (t Thresholds) Advise(watts float64, score int, d Day) []Tip {
	hour := d.Hour()
	offPeak := OffPeak(hour)
	var tips []Tip

	if t.Peak(watts) {
		switch {
		case offPeak:
			tips = append(tips, newTip(TipPeakOffPeak))
		case d.AverageWatts > t.HighDailyAverageWatts:
			tips = append(tips, newTip(TipPeakConsistent))
		default:
			tips = append(tips, newTip(TipPeakTemporary))
		}
	}

	if t.Standby(watts) {
		switch {
		case offPeak:
			tips = append(tips, newTip(TipStandbyNight))
		case d.TotalCost > costlyStandbyDailyCost:
			tips = append(tips, newTip(TipStandbyCostly))
		default:
			tips = append(tips, newTip(TipStandbyMinor))
		}
	}

	switch {
	case score < 60:
		tips = append(tips, newTip(TipScoreLow))
	case score < 75:
		tips = append(tips, newTip(TipScoreModerate))
	}

	if Insights(d).ProjectedDailyCost > highProjectedDailyCost {
		tips = append(tips, newTip(TipHighDailyCost))
	}

	if offPeak && watts > t.BaselineWatts*2 {
		tips = append(tips, newTip(TipNightScheduler))
	}

	if d.AverageWatts > t.HighDailyAverageWatts && hour > 12 && hour < 18 {
		tips = append(tips, newTip(TipAfternoonPattern))
	}

	if d.Yesterday != nil && d.AverageWatts > d.Yesterday.AverageWatts*aboveYesterdayFactor {
		tips = append(tips, newTip(TipAboveYesterday))
	}

	return tips
}
