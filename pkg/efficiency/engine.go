package efficiency

import (
	"github.com/levenlabs/go-lflag"
)

// Engine evaluates readings against a set of thresholds.
type Engine struct {
	Thresholds Thresholds
}

// Configured registers the thresholds flag and returns an Engine that uses
// them once flags are parsed.
func Configured() *Engine {
	thresholds := DefaultThresholds()
	lflag.JSON(&thresholds, "efficiency-thresholds", thresholds, "JSON object overriding baselineWatts, peakWatts, phantomCeilingWatts and highDailyAverageWatts")

	e := &Engine{Thresholds: DefaultThresholds()}
	lflag.Do(func() {
		e.Thresholds = thresholds
	})
	return e
}

// NewEngine returns an Engine with the default thresholds.
func NewEngine() *Engine {
	return &Engine{Thresholds: DefaultThresholds()}
}

// Score rates a reading. dailyAverageWatts does not change the score today
// and is accepted so callers always pass the full reading context.
func (e *Engine) Score(watts float64, hour int, dailyAverageWatts float64) int {
	return e.Thresholds.Score(watts, hour)
}

// Report is everything derived from one reading.
type Report struct {
	Score    int           `json:"score"`
	Label    string        `json:"label"`
	Analysis UsageAnalysis `json:"analysis"`
	Tips     []Tip         `json:"tips"`
	Insights CostInsights  `json:"insights"`
}

// Evaluate scores watts and derives the analysis, tips and cost insights.
func (e *Engine) Evaluate(watts float64, d Day) Report {
	score := e.Score(watts, d.Hour(), d.AverageWatts)
	return Report{
		Score:    score,
		Label:    Label(score),
		Analysis: e.Thresholds.Analyze(watts, d),
		Tips:     e.Thresholds.Advise(watts, score, d),
		Insights: Insights(d),
	}
}
