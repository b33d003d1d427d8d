package mohs

import (
	"context"
	"math"
	"strings"
)

// Stats summarises a practice's Mohs outcomes.
type Stats struct {
	TotalCases               int            `json:"total_cases"`
	AverageStages            float64        `json:"average_stages"`
	FirstStageClearanceRate  float64        `json:"first_stage_clearance_rate"`
	AverageTurnaroundMinutes float64        `json:"average_turnaround_minutes"`
	ByTumorType              map[string]int `json:"by_tumor_type"`
	ByLocation               map[string]int `json:"by_location"`
	ByClosureType            map[string]int `json:"by_closure_type"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func countInto(m map[string]int, v *string) {
	if v == nil {
		return
	}
	if k := strings.TrimSpace(*v); k != "" {
		m[k]++
	}
}

// ComputeStats aggregates case rows. Totals, stage averages, clearance and
// turnaround consider post_op and completed cases only; the distribution
// maps cover every row. Empty input yields zeros.
func ComputeStats(rows []StatsRow) *Stats {
	st := &Stats{
		ByTumorType:   map[string]int{},
		ByLocation:    map[string]int{},
		ByClosureType: map[string]int{},
	}

	var stages, cleared, turnaround float64
	timed := 0
	for i := range rows {
		r := &rows[i]
		countInto(st.ByTumorType, r.TumorType)
		loc := r.TumorLocation
		countInto(st.ByLocation, &loc)
		countInto(st.ByClosureType, r.ClosureType)

		if r.Status != StatusCompleted && r.Status != StatusPostOp {
			continue
		}
		st.TotalCases++
		stages += float64(r.TotalStages)
		if r.FirstStageNegative {
			cleared++
		}
		if r.StartTime != nil && r.EndTime != nil && !r.EndTime.Before(*r.StartTime) {
			turnaround += r.EndTime.Sub(*r.StartTime).Minutes()
			timed++
		}
	}

	total := float64(st.TotalCases)
	st.AverageStages = round2(ratio(stages, total))
	st.FirstStageClearanceRate = round2(ratio(cleared, total) * 100)
	st.AverageTurnaroundMinutes = round2(ratio(turnaround, float64(timed)))
	return st
}

// GetStats computes practice statistics over the tenant's non-deleted cases.
func (s *Service) GetStats(ctx context.Context, tenantID string, f StatsFilter) (*Stats, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, invalid("date range start is after its end")
	}
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := store.StatsRows(ctx, f)
	if err != nil {
		return nil, err
	}
	return ComputeStats(rows), nil
}
