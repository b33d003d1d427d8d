package mohs

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to CaseStatus
		want     bool
	}{
		{StatusScheduled, StatusPreOp, true},
		{StatusScheduled, StatusInProgress, true},
		{StatusInProgress, StatusClosure, true},
		{StatusClosure, StatusPostOp, true},
		{StatusPostOp, StatusCompleted, true},
		{StatusScheduled, StatusCompleted, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusClosure, StatusInProgress, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusPreOp, StatusCancelled, true},
		{StatusPostOp, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusCancelled, true},
		{CaseStatus("bogus"), StatusPreOp, false},
		{StatusPreOp, CaseStatus("bogus"), false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCaseStatusValid(t *testing.T) {
	for _, s := range []CaseStatus{StatusScheduled, StatusPreOp, StatusInProgress, StatusClosure, StatusPostOp, StatusCompleted, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if CaseStatus("").Valid() || CaseStatus("done").Valid() {
		t.Error("expected unknown statuses to be invalid")
	}
}

func TestValidBlockMargin(t *testing.T) {
	for _, m := range []MarginStatus{MarginPending, MarginNegative, MarginPositive, MarginClose} {
		if !ValidBlockMargin(m) {
			t.Errorf("expected %s to be a valid block margin", m)
		}
	}
	if ValidBlockMargin(MarginPartial) {
		t.Error("partial is a stage-only status")
	}
	if ValidBlockMargin("clear") {
		t.Error("expected unknown margin to be invalid")
	}
}

func blk(m MarginStatus, deep *MarginStatus) *Block {
	return &Block{BlockLabel: "x", MarginStatus: m, DeepMarginStatus: deep}
}

func TestAggregateMargins(t *testing.T) {
	neg, pos, cls, pend := MarginNegative, MarginPositive, MarginClose, MarginPending
	tests := []struct {
		name   string
		blocks []*Block
		want   MarginStatus
	}{
		{"no blocks", nil, MarginPending},
		{"all negative", []*Block{blk(neg, nil), blk(neg, &neg)}, MarginNegative},
		{"peripheral positive", []*Block{blk(neg, nil), blk(pos, nil)}, MarginPositive},
		{"deep positive", []*Block{blk(neg, &pos)}, MarginPositive},
		{"positive beats close", []*Block{blk(cls, nil), blk(neg, &pos)}, MarginPositive},
		{"peripheral close", []*Block{blk(neg, nil), blk(cls, nil)}, MarginPartial},
		{"deep close", []*Block{blk(neg, &cls)}, MarginPartial},
		{"close beats pending", []*Block{blk(pend, nil), blk(cls, nil)}, MarginPartial},
		{"one pending", []*Block{blk(neg, nil), blk(pend, nil)}, MarginPending},
		{"deep pending", []*Block{blk(neg, &pend)}, MarginPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateMargins(tt.blocks); got != tt.want {
				t.Errorf("AggregateMargins() = %s, want %s", got, tt.want)
			}
		})
	}
}
