package mohs

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestComputeStats_Empty(t *testing.T) {
	st := ComputeStats(nil)
	if st.TotalCases != 0 || st.AverageStages != 0 || st.FirstStageClearanceRate != 0 || st.AverageTurnaroundMinutes != 0 {
		t.Errorf("expected zeros, got %+v", st)
	}
	if math.IsNaN(st.AverageStages) || math.IsNaN(st.FirstStageClearanceRate) {
		t.Error("expected no NaN values")
	}
	if st.ByTumorType == nil || st.ByLocation == nil || st.ByClosureType == nil {
		t.Error("expected empty, non-nil distribution maps")
	}
}

func TestComputeStats(t *testing.T) {
	start := testNow
	end90 := start.Add(90 * time.Minute)
	end30 := start.Add(30 * time.Minute)
	before := start.Add(-time.Minute)
	rows := []StatsRow{
		{Status: StatusCompleted, TumorType: strPtr("BCC"), TumorLocation: "nose", ClosureType: strPtr("flap"),
			TotalStages: 1, StartTime: &start, EndTime: &end90, FirstStageNegative: true},
		{Status: StatusPostOp, TumorType: strPtr("SCC"), TumorLocation: "nose", ClosureType: strPtr("primary"),
			TotalStages: 3, StartTime: &start, EndTime: &end30},
		{Status: StatusPostOp, TumorType: strPtr("BCC"), TumorLocation: "ear",
			TotalStages: 2, StartTime: &start, EndTime: &before},
		{Status: StatusInProgress, TumorType: strPtr("BCC"), TumorLocation: "back",
			TotalStages: 4, FirstStageNegative: true},
		{Status: StatusScheduled, TumorLocation: " "},
	}

	st := ComputeStats(rows)
	if st.TotalCases != 3 {
		t.Errorf("expected 3 qualifying cases, got %d", st.TotalCases)
	}
	if st.AverageStages != 2 {
		t.Errorf("expected average stages 2, got %v", st.AverageStages)
	}
	if st.FirstStageClearanceRate != 33.33 {
		t.Errorf("expected clearance 33.33, got %v", st.FirstStageClearanceRate)
	}
	if st.AverageTurnaroundMinutes != 60 {
		t.Errorf("expected turnaround 60, got %v", st.AverageTurnaroundMinutes)
	}
	if st.ByTumorType["BCC"] != 3 || st.ByTumorType["SCC"] != 1 {
		t.Errorf("unexpected tumor distribution: %v", st.ByTumorType)
	}
	if st.ByLocation["nose"] != 2 || len(st.ByLocation) != 3 {
		t.Errorf("unexpected location distribution: %v", st.ByLocation)
	}
	if st.ByClosureType["flap"] != 1 || st.ByClosureType["primary"] != 1 || len(st.ByClosureType) != 2 {
		t.Errorf("unexpected closure distribution: %v", st.ByClosureType)
	}
}

func TestGetStats(t *testing.T) {
	svc, _ := newTestService()
	surgeon := uuid.New()

	c, err := svc.CreateCase(context.Background(), testTenant, &Case{
		PatientID: uuid.New(), SurgeonID: surgeon, TumorLocation: "nose", TumorType: strPtr("BCC"),
	}, "dr-lee")
	if err != nil {
		t.Fatal(err)
	}
	st := addStage(t, svc, c.ID)
	if _, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{{BlockLabel: "A", MarginStatus: MarginNegative}}, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return testNow.Add(45 * time.Minute) }
	if _, err := svc.CloseCase(context.Background(), testTenant, c.ID, &Closure{ClosureType: "primary"}, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	newCase(t, svc, "back")

	stats, err := svc.GetStats(context.Background(), testTenant, StatsFilter{SurgeonID: &surgeon})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalCases != 1 || stats.FirstStageClearanceRate != 100 || stats.AverageTurnaroundMinutes != 45 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	all, err := svc.GetStats(context.Background(), testTenant, StatsFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if all.TotalCases != 1 || all.ByLocation["back"] != 1 || all.ByLocation["nose"] != 1 {
		t.Errorf("expected distribution over every case, got %+v", all)
	}

	empty, err := svc.GetStats(context.Background(), "empty-tenant", StatsFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalCases != 0 || empty.FirstStageClearanceRate != 0 {
		t.Errorf("expected zeros for an empty tenant, got %+v", empty)
	}
}

func TestGetStats_BadRange(t *testing.T) {
	svc, _ := newTestService()
	from, to := testNow, testNow.Add(-24*time.Hour)
	if _, err := svc.GetStats(context.Background(), testTenant, StatsFilter{From: &from, To: &to}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
