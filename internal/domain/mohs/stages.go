package mohs

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// -- Stage Tracker --

func validateStageInput(st *Stage) error {
	if st.StageNumber < 0 {
		return invalid("stage_number must be positive")
	}
	for name, v := range map[string]*float64{
		"excision_width_mm":  st.ExcisionWidthMM,
		"excision_length_mm": st.ExcisionLengthMM,
		"excision_depth_mm":  st.ExcisionDepthMM,
	} {
		if err := nonNegative(name, v); err != nil {
			return err
		}
	}
	return nil
}

// AddStage appends the next stage to a case. A zero stage_number is assigned
// as one past the highest existing stage; any other number must equal it.
// The first stage of a scheduled or pre_op case marks the start of surgery.
func (s *Service) AddStage(ctx context.Context, tenantID string, caseID uuid.UUID, st *Stage, actor string) (*Stage, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateStageInput(st); err != nil {
		return nil, err
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		c, err := tx.GetCaseForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return invalid("cannot add a stage to a %s case", c.Status)
		}

		existing, err := tx.ListStages(ctx, caseID)
		if err != nil {
			return err
		}
		next := 1
		if n := len(existing); n > 0 {
			next = existing[n-1].StageNumber + 1
		}
		if st.StageNumber == 0 {
			st.StageNumber = next
		} else if st.StageNumber != next {
			return invalid("stage_number %d out of sequence, expected %d", st.StageNumber, next)
		}

		st.CaseID = caseID
		st.MarginStatus = MarginPending
		st.BlockCount = 0
		if err := tx.CreateStage(ctx, st); err != nil {
			return err
		}

		c.TotalStages = len(existing) + 1
		if c.Status == StatusScheduled || c.Status == StatusPreOp {
			applyStatus(c, StatusInProgress, s.now())
		}
		c.UpdatedBy = &actor
		return tx.UpdateCaseWorkflow(ctx, c)
	})
	if err != nil {
		return nil, txFailure("add stage", err)
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("case_id", caseID.String()).
		Int("stage_number", st.StageNumber).Msg("stage added")
	return st, nil
}

// Column widths of mohs_stage_blocks.
const (
	maxBlockLabelLen = 32
	maxPositionLen   = 64
)

func validateBlocks(blocks []*Block) error {
	if len(blocks) == 0 {
		return invalid("at least one block is required")
	}
	for i, b := range blocks {
		if b == nil {
			return invalid("block %d is empty", i)
		}
		b.BlockLabel = strings.TrimSpace(b.BlockLabel)
		if b.BlockLabel == "" {
			return invalid("block %d: block_label is required", i)
		}
		if utf8.RuneCountInString(b.BlockLabel) > maxBlockLabelLen {
			return invalid("block %d: block_label exceeds %d characters", i, maxBlockLabelLen)
		}
		if b.Position != nil && utf8.RuneCountInString(*b.Position) > maxPositionLen {
			return invalid("block %s: position exceeds %d characters", b.BlockLabel, maxPositionLen)
		}
		if b.MarginStatus == "" {
			b.MarginStatus = MarginPending
		}
		if !ValidBlockMargin(b.MarginStatus) {
			return invalid("block %s: invalid margin_status %q", b.BlockLabel, b.MarginStatus)
		}
		if b.DeepMarginStatus != nil && !ValidBlockMargin(*b.DeepMarginStatus) {
			return invalid("block %s: invalid deep_margin_status %q", b.BlockLabel, *b.DeepMarginStatus)
		}
		if b.PositionDegrees != nil && (*b.PositionDegrees < 0 || *b.PositionDegrees >= 360) {
			return invalid("block %s: position_degrees must be in [0, 360)", b.BlockLabel)
		}
		if b.TumorPercentage != nil && (*b.TumorPercentage < 0 || *b.TumorPercentage > 100) {
			return invalid("block %s: tumor_percentage must be in [0, 100]", b.BlockLabel)
		}
		if err := nonNegative("depth_mm", b.DepthMM); err != nil {
			return err
		}
	}
	return nil
}

// RecordMargins upserts the blocks of a stage by label, recomputes the stage
// margin status from the stage's full block set, and advances an in_progress
// case to closure when the stage comes back negative. All of it is one
// transaction; input is validated before the transaction opens.
func (s *Service) RecordMargins(ctx context.Context, tenantID string, stageID uuid.UUID, blocks []*Block, actor string) (*MarginResult, error) {
	return s.recordMargins(ctx, tenantID, nil, stageID, blocks, actor)
}

// RecordCaseMargins is RecordMargins for a stage addressed through its case.
// A stage belonging to another case is reported as not found.
func (s *Service) RecordCaseMargins(ctx context.Context, tenantID string, caseID, stageID uuid.UUID, blocks []*Block, actor string) (*MarginResult, error) {
	return s.recordMargins(ctx, tenantID, &caseID, stageID, blocks, actor)
}

func (s *Service) recordMargins(ctx context.Context, tenantID string, caseID *uuid.UUID, stageID uuid.UUID, blocks []*Block, actor string) (*MarginResult, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateBlocks(blocks); err != nil {
		return nil, err
	}
	// A label repeated within one submission resolves to its last occurrence.
	blocks = lo.UniqBy(lo.Reverse(append([]*Block(nil), blocks...)), func(b *Block) string { return b.BlockLabel })

	var result MarginResult
	err = store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		// case_id never changes, so an unlocked read is enough to find the
		// case to lock first.
		owner, err := tx.GetStage(ctx, stageID)
		if err != nil {
			return err
		}
		if caseID != nil && owner.CaseID != *caseID {
			return notFound("stage %s not found in case %s", stageID, *caseID)
		}
		c, err := tx.GetCaseForUpdate(ctx, owner.CaseID)
		if err != nil {
			return err
		}
		st, err := tx.GetStageForUpdate(ctx, stageID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return invalid("margins of a %s case are locked", c.Status)
		}

		for _, b := range blocks {
			b.StageID = stageID
			if err := tx.UpsertBlock(ctx, b); err != nil {
				return err
			}
		}

		all, err := tx.ListBlocks(ctx, stageID)
		if err != nil {
			return err
		}
		now := s.now()
		st.MarginStatus = AggregateMargins(all)
		st.BlockCount = len(all)
		if st.ReadingTime == nil {
			st.ReadingTime = &now
		}
		if err := tx.UpdateStageMargins(ctx, st); err != nil {
			return err
		}

		if st.MarginStatus == MarginNegative && c.Status == StatusInProgress {
			applyStatus(c, StatusClosure, now)
			c.UpdatedBy = &actor
			if err := tx.UpdateCaseWorkflow(ctx, c); err != nil {
				return err
			}
			s.logger.Info().Str("tenant_id", tenantID).Str("case_id", c.ID.String()).
				Int("stage_number", st.StageNumber).Msg("margins clear, case ready for closure")
		}

		result = MarginResult{Blocks: all, StageMarginStatus: st.MarginStatus, CaseStatus: c.Status}
		return nil
	})
	if err != nil {
		return nil, txFailure("record margins", err)
	}
	return &result, nil
}
