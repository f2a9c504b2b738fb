package models

// RunsSummary - агрегаты /api/analytics/pattern-runs/summary.
type RunsSummary struct {
	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	FailedRuns     int     `json:"failed_runs"`
	AvgDurationMS  float64 `json:"avg_duration_ms"`
	TotalTokens    int     `json:"total_tokens"`
	TotalCost      float64 `json:"total_cost"`
	// ByStep - средняя длительность стадии в мс.
	ByStep map[string]float64 `json:"by_step,omitempty"`
}

// SuccessRate in percent; 0 without runs.
func (s RunsSummary) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessfulRuns) * 100 / float64(s.TotalRuns)
}
