package mohs

// CaseStatus is the case workflow state.
type CaseStatus string

const (
	StatusScheduled  CaseStatus = "scheduled"
	StatusPreOp      CaseStatus = "pre_op"
	StatusInProgress CaseStatus = "in_progress"
	StatusClosure    CaseStatus = "closure"
	StatusPostOp     CaseStatus = "post_op"
	StatusCompleted  CaseStatus = "completed"
	StatusCancelled  CaseStatus = "cancelled"
)

// statusRank orders the forward path. cancelled sits outside it.
var statusRank = map[CaseStatus]int{
	StatusScheduled:  1,
	StatusPreOp:      2,
	StatusInProgress: 3,
	StatusClosure:    4,
	StatusPostOp:     5,
	StatusCompleted:  6,
}

// Valid reports whether s is a member of the status enum.
func (s CaseStatus) Valid() bool {
	return s == StatusCancelled || statusRank[s] > 0
}

// Terminal reports whether no further transition is allowed out of s.
func (s CaseStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a case may move from one status to another.
// Moves go forward along scheduled → … → completed (skipping is allowed),
// cancelled is reachable from every non-terminal status, and re-asserting the
// current status is accepted as a no-op.
func CanTransition(from, to CaseStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// MarginStatus is a block or stage margin reading.
type MarginStatus string

const (
	MarginPending  MarginStatus = "pending"
	MarginNegative MarginStatus = "negative"
	MarginPositive MarginStatus = "positive"
	MarginClose    MarginStatus = "close"
	// MarginPartial is only produced by stage aggregation.
	MarginPartial MarginStatus = "partial"
)

var validBlockMargins = map[MarginStatus]bool{
	MarginPending: true, MarginNegative: true, MarginPositive: true, MarginClose: true,
}

// ValidBlockMargin reports whether m may be recorded on a block.
func ValidBlockMargin(m MarginStatus) bool {
	return validBlockMargins[m]
}

// AggregateMargins derives a stage's margin status from its blocks:
// any positive (peripheral or deep) wins, then any close yields partial, then
// all-negative yields negative; anything else, including no blocks, is pending.
// An unassessed deep margin does not block a negative result.
func AggregateMargins(blocks []*Block) MarginStatus {
	if len(blocks) == 0 {
		return MarginPending
	}

	anyClose := false
	allNegative := true
	for _, b := range blocks {
		deep := deepOf(b)
		if b.MarginStatus == MarginPositive || deep == MarginPositive {
			return MarginPositive
		}
		if b.MarginStatus == MarginClose || deep == MarginClose {
			anyClose = true
		}
		if b.MarginStatus != MarginNegative || (deep != "" && deep != MarginNegative) {
			allNegative = false
		}
	}

	switch {
	case anyClose:
		return MarginPartial
	case allNegative:
		return MarginNegative
	default:
		return MarginPending
	}
}

func deepOf(b *Block) MarginStatus {
	if b.DeepMarginStatus == nil {
		return ""
	}
	return *b.DeepMarginStatus
}
