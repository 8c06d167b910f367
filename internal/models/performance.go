package models

// ── Performance Analytics ───────────────────────────────

type OverallSummary struct {
	SolvedQuestions int     `json:"solved_questions"`
	TotalQuestions  int     `json:"total_questions"`
	SuccessRate     float64 `json:"success_rate"`
	TotalAttempts   int     `json:"total_attempts"`
}

type TimeAnalysis struct {
	AvgTimeSolved   float64 `json:"avg_time_solved"`
	AvgTimeUnsolved float64 `json:"avg_time_unsolved"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
}

// BreakdownRow is one bar of a skill, difficulty, category or score band
// breakdown. Only the label field matching the breakdown kind is set.
type BreakdownRow struct {
	SkillDesc        string  `json:"skill_desc,omitempty"`
	Difficulty       string  `json:"difficulty,omitempty"`
	PrimaryClassDesc string  `json:"primary_class_cd_desc,omitempty"`
	ScoreBand        string  `json:"score_band,omitempty"`
	TotalQuestions   int     `json:"total_questions"`
	Solved           int     `json:"solved"`
	SuccessRate      float64 `json:"success_rate"`
	AvgTimeTaken     float64 `json:"avg_time_taken"`
}

func (b BreakdownRow) Label() string {
	switch {
	case b.SkillDesc != "":
		return b.SkillDesc
	case b.Difficulty != "":
		return b.Difficulty
	case b.PrimaryClassDesc != "":
		return b.PrimaryClassDesc
	case b.ScoreBand != "":
		return b.ScoreBand
	}
	return "Unknown"
}

type ProgressPoint struct {
	Day            string  `json:"day,omitempty"`
	Week           string  `json:"week,omitempty"`
	Month          string  `json:"month,omitempty"`
	TotalQuestions int     `json:"total_questions"`
	Solved         int     `json:"solved"`
	SuccessRate    float64 `json:"success_rate"`
}

func (p ProgressPoint) Period() string {
	switch {
	case p.Day != "":
		return p.Day
	case p.Week != "":
		return p.Week
	case p.Month != "":
		return p.Month
	}
	return "Unknown"
}

type ProgressSeries struct {
	Daily   []ProgressPoint `json:"daily"`
	Weekly  []ProgressPoint `json:"weekly"`
	Monthly []ProgressPoint `json:"monthly"`
}

type Performance struct {
	OverallSummary        OverallSummary `json:"overall_summary"`
	TimeAnalysis          TimeAnalysis   `json:"time_analysis"`
	SkillPerformance      []BreakdownRow `json:"skill_performance"`
	DifficultyPerformance []BreakdownRow `json:"difficulty_performance"`
	CategoryPerformance   []BreakdownRow `json:"category_performance"`
	ScoreBandPerformance  []BreakdownRow `json:"score_band_performance"`
	Progress              ProgressSeries `json:"progress"`
}
