package mohs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func intPtr(i int) *int { return &i }

func TestAddStage_AdvancesScheduledCaseOnce(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")

	st := addStage(t, svc, c.ID)
	if st.StageNumber != 1 || st.MarginStatus != MarginPending || st.BlockCount != 0 {
		t.Errorf("unexpected first stage: %+v", st)
	}
	stored := repo.db.cases[c.ID]
	if stored.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", stored.Status)
	}
	if stored.StartTime == nil || !stored.StartTime.Equal(testNow) {
		t.Errorf("expected start_time %v, got %v", testNow, stored.StartTime)
	}
	started := *stored.StartTime

	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	st2 := addStage(t, svc, c.ID)
	if st2.StageNumber != 2 {
		t.Errorf("expected stage 2, got %d", st2.StageNumber)
	}
	stored = repo.db.cases[c.ID]
	if stored.Status != StatusInProgress || stored.TotalStages != 2 {
		t.Errorf("expected in_progress with 2 stages, got %s/%d", stored.Status, stored.TotalStages)
	}
	if !stored.StartTime.Equal(started) {
		t.Errorf("start_time moved from %v to %v", started, stored.StartTime)
	}
}

func TestAddStage_PreOpAdvances(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	if _, err := svc.UpdateCaseStatus(context.Background(), testTenant, c.ID, StatusPreOp, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	addStage(t, svc, c.ID)
	if got := repo.db.cases[c.ID].Status; got != StatusInProgress {
		t.Errorf("expected in_progress, got %s", got)
	}
}

func TestAddStage_ClosureCaseKeepsStatus(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	if _, err := svc.UpdateCaseStatus(context.Background(), testTenant, c.ID, StatusClosure, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	addStage(t, svc, c.ID)
	if got := repo.db.cases[c.ID].Status; got != StatusClosure {
		t.Errorf("expected closure, got %s", got)
	}
}

func TestAddStage_OutOfSequence(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	addStage(t, svc, c.ID)

	for _, n := range []int{1, 3, -1} {
		_, err := svc.AddStage(context.Background(), testTenant, c.ID, &Stage{StageNumber: n}, "dr-lee")
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("stage %d: expected invalid argument, got %v", n, err)
		}
	}
	st, err := svc.AddStage(context.Background(), testTenant, c.ID, &Stage{StageNumber: 2}, "dr-lee")
	if err != nil || st.StageNumber != 2 {
		t.Errorf("expected explicit next stage to be accepted, got %v / %+v", err, st)
	}
}

func TestAddStage_TerminalCase(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	if _, err := svc.UpdateCaseStatus(context.Background(), testTenant, c.ID, StatusCancelled, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStage(context.Background(), testTenant, c.ID, &Stage{}, "dr-lee"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected cancelled case to reject stages, got %v", err)
	}
}

func TestAddStage_UnknownCase(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.AddStage(context.Background(), testTenant, uuid.New(), &Stage{}, "dr-lee"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRecordMargins_NegativeAdvancesToClosure(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)

	res, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative, DeepMarginStatus: marginPtr(MarginNegative)},
		{BlockLabel: "A2", MarginStatus: MarginNegative},
	}, "dr-lee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StageMarginStatus != MarginNegative || res.CaseStatus != StatusClosure {
		t.Errorf("expected negative/closure, got %s/%s", res.StageMarginStatus, res.CaseStatus)
	}
	stored := repo.db.stages[st.ID]
	if stored.BlockCount != 2 || stored.ReadingTime == nil {
		t.Errorf("expected block_count 2 and reading_time, got %+v", stored)
	}
	if got := repo.db.cases[c.ID].Status; got != StatusClosure {
		t.Errorf("expected case closure, got %s", got)
	}
}

func TestRecordMargins_NonNegativeKeepsStatus(t *testing.T) {
	tests := []struct {
		name   string
		blocks []*Block
		want   MarginStatus
	}{
		{"positive", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative}, {BlockLabel: "B", MarginStatus: MarginPositive}}, MarginPositive},
		{"partial", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative, DeepMarginStatus: marginPtr(MarginClose)}}, MarginPartial},
		{"pending", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative}, {BlockLabel: "B"}}, MarginPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			c := newCase(t, svc, "nose")
			st := addStage(t, svc, c.ID)
			res, err := svc.RecordMargins(context.Background(), testTenant, st.ID, tt.blocks, "dr-lee")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.StageMarginStatus != tt.want {
				t.Errorf("expected %s, got %s", tt.want, res.StageMarginStatus)
			}
			if got := repo.db.cases[c.ID].Status; got != StatusInProgress {
				t.Errorf("expected case to stay in_progress, got %s", got)
			}
		})
	}
}

func TestRecordMargins_ResubmitUpdatesInPlace(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)

	first := []*Block{
		{BlockLabel: "A1", MarginStatus: MarginPositive},
		{BlockLabel: "A2", MarginStatus: MarginNegative},
	}
	if _, err := svc.RecordMargins(context.Background(), testTenant, st.ID, first, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	res, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Blocks) != 2 || repo.db.stages[st.ID].BlockCount != 2 {
		t.Errorf("expected 2 blocks after resubmitting A1, got %d", len(res.Blocks))
	}
	if res.StageMarginStatus != MarginNegative {
		t.Errorf("expected negative after clearing A1, got %s", res.StageMarginStatus)
	}
	if len(repo.db.blocks) != 2 {
		t.Errorf("expected 2 stored blocks, got %d", len(repo.db.blocks))
	}
}

func TestRecordMargins_DuplicateLabelLastWins(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)
	res, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginPositive},
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].MarginStatus != MarginNegative {
		t.Errorf("expected single negative A1, got %+v", res.Blocks)
	}
}

func TestRecordMargins_ValidationBeforeWrites(t *testing.T) {
	tests := []struct {
		name   string
		blocks []*Block
	}{
		{"empty", nil},
		{"missing label", []*Block{{MarginStatus: MarginNegative}}},
		{"bad margin", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative}, {BlockLabel: "B", MarginStatus: "clear"}}},
		{"partial on block", []*Block{{BlockLabel: "A", MarginStatus: MarginPartial}}},
		{"bad deep margin", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative, DeepMarginStatus: marginPtr("deep")}}},
		{"position out of range", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative, PositionDegrees: intPtr(360)}}},
		{"tumor percentage", []*Block{{BlockLabel: "A", MarginStatus: MarginPositive, TumorPercentage: floatPtr(120)}}},
		{"label too long", []*Block{{BlockLabel: strings.Repeat("A", 33), MarginStatus: MarginNegative}}},
		{"position too long", []*Block{{BlockLabel: "A", MarginStatus: MarginNegative, Position: strPtr(strings.Repeat("x", 65))}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			c := newCase(t, svc, "nose")
			st := addStage(t, svc, c.ID)
			repo.db.fail["UpsertBlock"] = errors.New("should not be called")

			_, err := svc.RecordMargins(context.Background(), testTenant, st.ID, tt.blocks, "dr-lee")
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected invalid argument, got %v", err)
			}
			if len(repo.db.blocks) != 0 {
				t.Errorf("expected no blocks written, got %d", len(repo.db.blocks))
			}
		})
	}
}

func TestRecordMargins_RollbackOnFailure(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)
	repo.db.fail["UpdateStageMargins"] = errors.New("disk full")

	_, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if !errors.Is(err, ErrTransactionFailure) {
		t.Fatalf("expected transaction failure, got %v", err)
	}
	if len(repo.db.blocks) != 0 {
		t.Errorf("expected block writes rolled back, got %d", len(repo.db.blocks))
	}
	if got := repo.db.stages[st.ID].MarginStatus; got != MarginPending {
		t.Errorf("expected stage still pending, got %s", got)
	}
}

func TestRecordMargins_UnknownStage(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.RecordMargins(context.Background(), testTenant, uuid.New(), []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRecordMargins_OtherTenant(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)
	_, err := svc.RecordMargins(context.Background(), "intruder", st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "mallory")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found across tenants, got %v", err)
	}
}

func TestRecordCaseMargins_WrongCase(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	other := newCase(t, svc, "ear")
	st := addStage(t, svc, c.ID)
	_, err := svc.RecordCaseMargins(context.Background(), testTenant, other.ID, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for stage of another case, got %v", err)
	}
}

func TestRecordMargins_LockedAfterCompletion(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)
	if _, err := svc.UpdateCaseStatus(context.Background(), testTenant, c.ID, StatusCompleted, "dr-lee"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: "A1", MarginStatus: MarginNegative},
	}, "dr-lee")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected completed case to reject margins, got %v", err)
	}
}

func TestRecordMargins_LocksCaseBeforeStage(t *testing.T) {
	svc, repo := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)
	repo.db.locks = nil

	if _, err := svc.RecordCaseMargins(context.Background(), testTenant, c.ID, st.ID, []*Block{
		{BlockLabel: "A", MarginStatus: MarginNegative},
	}, "dr-lee"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"case:" + c.ID.String(), "stage:" + st.ID.String()}
	if len(repo.db.locks) != 2 || repo.db.locks[0] != want[0] || repo.db.locks[1] != want[1] {
		t.Errorf("expected locks %v, got %v", want, repo.db.locks)
	}
}

func TestRecordMargins_MaxLengthLabel(t *testing.T) {
	svc, _ := newTestService()
	c := newCase(t, svc, "nose")
	st := addStage(t, svc, c.ID)

	label := strings.Repeat("B", 32)
	res, err := svc.RecordMargins(context.Background(), testTenant, st.ID, []*Block{
		{BlockLabel: label, MarginStatus: MarginNegative},
	}, "dr-lee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].BlockLabel != label {
		t.Errorf("unexpected blocks: %+v", res.Blocks)
	}
}
