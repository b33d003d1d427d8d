package mohs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "mohs").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// -- Case Manager --

func caseNumber(date time.Time, id uuid.UUID) string {
	return fmt.Sprintf("MOHS-%s-%s", date.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

func nonNegative(name string, v *float64) error {
	if v != nil && *v < 0 {
		return invalid("%s must not be negative", name)
	}
	return nil
}

func validateCaseInput(c *Case) error {
	if c.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	if c.SurgeonID == uuid.Nil {
		return invalid("surgeon_id is required")
	}
	if strings.TrimSpace(c.TumorLocation) == "" {
		return invalid("tumor_location is required")
	}
	for name, v := range map[string]*float64{
		"pre_op_size_mm":   c.PreOpSizeMM,
		"pre_op_width_mm":  c.PreOpWidthMM,
		"pre_op_length_mm": c.PreOpLengthMM,
	} {
		if err := nonNegative(name, v); err != nil {
			return err
		}
	}
	return nil
}

// CreateCase schedules a new case. Status always starts at scheduled.
func (s *Service) CreateCase(ctx context.Context, tenantID string, c *Case, actor string) (*Case, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateCaseInput(c); err != nil {
		return nil, err
	}

	now := s.now()
	if c.CaseDate.IsZero() {
		c.CaseDate = now.Truncate(24 * time.Hour)
	}
	c.ID = uuid.New()
	c.CaseNumber = caseNumber(c.CaseDate, c.ID)
	c.Status = StatusScheduled
	c.TotalStages = 0
	c.StartTime, c.EndTime = nil, nil
	c.CreatedBy, c.UpdatedBy = &actor, &actor

	if err := store.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("case_id", c.ID.String()).
		Str("case_number", c.CaseNumber).Msg("case created")
	return c, nil
}

// GetCase assembles the full case snapshot: stages with their blocks,
// closures, maps and participant display data. The case rows are read in one
// snapshot transaction. Participant data is optional and a failed lookup
// leaves it empty.
func (s *Service) GetCase(ctx context.Context, tenantID string, id uuid.UUID) (*CaseDetail, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}

	var d *CaseDetail
	err = store.RunInSnapshot(ctx, func(ctx context.Context, tx Store) error {
		c, err := tx.GetCase(ctx, id)
		if err != nil {
			return err
		}
		stages, err := tx.ListStages(ctx, id)
		if err != nil {
			return err
		}
		blocks, err := tx.ListBlocksByCase(ctx, id)
		if err != nil {
			return err
		}
		closures, err := tx.ListClosures(ctx, id)
		if err != nil {
			return err
		}
		maps, err := tx.ListMaps(ctx, id)
		if err != nil {
			return err
		}
		d = BuildCaseDetail(c, stages, blocks, closures, maps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	patient, surgeon, err := store.GetParticipants(ctx, d.Case.PatientID, d.Case.SurgeonID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Str("case_id", id.String()).
			Msg("participant lookup failed")
		patient, surgeon = nil, nil
	}
	d.Patient, d.Surgeon = patient, surgeon
	return d, nil
}

// applyStatus moves c to status and stamps the workflow timestamps.
func applyStatus(c *Case, status CaseStatus, now time.Time) {
	c.Status = status
	if status == StatusInProgress && c.StartTime == nil {
		c.StartTime = &now
	}
	if status == StatusCompleted && c.EndTime == nil {
		c.EndTime = &now
	}
}

// UpdateCaseStatus moves the case to newStatus. Backward moves and moves out
// of completed or cancelled are rejected; re-asserting the current status is
// a no-op.
func (s *Service) UpdateCaseStatus(ctx context.Context, tenantID string, id uuid.UUID, newStatus CaseStatus, actor string) (*Case, error) {
	if !newStatus.Valid() {
		return nil, invalid("invalid status: %s", newStatus)
	}
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}

	var out *Case
	err = store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		c, err := tx.GetCaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(c.Status, newStatus) {
			return invalid("cannot move case from %s to %s", c.Status, newStatus)
		}
		out = c
		if c.Status == newStatus {
			return nil
		}
		from := c.Status
		applyStatus(c, newStatus, s.now())
		c.UpdatedBy = &actor
		if err := tx.UpdateCaseWorkflow(ctx, c); err != nil {
			return err
		}
		s.logger.Info().Str("tenant_id", tenantID).Str("case_id", id.String()).
			Str("from", string(from)).Str("to", string(newStatus)).Msg("case status updated")
		return nil
	})
	if err != nil {
		return nil, txFailure("update case status", err)
	}
	return out, nil
}

func validateClosure(cl *Closure) error {
	cl.ClosureType = strings.TrimSpace(cl.ClosureType)
	if cl.ClosureType == "" {
		return invalid("closure_type is required")
	}
	for name, v := range map[string]*float64{
		"repair_length_cm":  cl.RepairLengthCM,
		"repair_width_cm":   cl.RepairWidthCM,
		"repair_area_sq_cm": cl.RepairAreaSqCM,
	} {
		if err := nonNegative(name, v); err != nil {
			return err
		}
	}
	codes := make([]string, 0, len(cl.RepairCPTCodes))
	for _, code := range cl.RepairCPTCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			return invalid("repair_cpt_codes must not contain empty codes")
		}
		codes = append(codes, code)
	}
	cl.RepairCPTCodes = codes
	if len(cl.FlapGraftDetails) > 0 && !json.Valid(cl.FlapGraftDetails) {
		return invalid("flap_graft_details is not valid JSON")
	}
	if cl.RepairAreaSqCM == nil && cl.RepairLengthCM != nil && cl.RepairWidthCM != nil {
		area := *cl.RepairLengthCM * *cl.RepairWidthCM
		cl.RepairAreaSqCM = &area
	}
	return nil
}

// CloseCase records the repair and, in the same transaction, mirrors the
// closure onto the case, moves it to post_op and stamps end_time.
func (s *Service) CloseCase(ctx context.Context, tenantID string, caseID uuid.UUID, cl *Closure, actor string) (*Case, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateClosure(cl); err != nil {
		return nil, err
	}

	var out *Case
	err = store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		c, err := tx.GetCaseForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if !CanTransition(c.Status, StatusPostOp) {
			return invalid("cannot close case in status %s", c.Status)
		}

		now := s.now()
		cl.CaseID = caseID
		if cl.ClosureTime.IsZero() {
			cl.ClosureTime = now
		}
		cl.CreatedBy = &actor
		if err := tx.CreateClosure(ctx, cl); err != nil {
			return err
		}

		c.ClosureType = &cl.ClosureType
		c.ClosureSubtype = cl.ClosureSubtype
		c.ClosurePerformedBy = cl.ClosureBy
		c.RepairCPTCodes = cl.RepairCPTCodes
		c.Status = StatusPostOp
		c.EndTime = &now
		c.UpdatedBy = &actor
		if err := tx.UpdateCaseClosure(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, txFailure("close case", err)
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("case_id", caseID.String()).
		Str("closure_id", cl.ID.String()).Str("closure_type", cl.ClosureType).Msg("case closed")
	return out, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListCases pages through the tenant's cases, newest case_date first.
func (s *Service) ListCases(ctx context.Context, tenantID string, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, 0, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, invalid("invalid status filter: %s", *f.Status)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, 0, invalid("date range start is after its end")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		return nil, 0, invalid("offset must not be negative")
	}
	return store.ListCases(ctx, f, limit, offset)
}

// DeleteCase soft-deletes a case. The surgical record is kept.
func (s *Service) DeleteCase(ctx context.Context, tenantID string, id uuid.UUID, actor string) error {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return err
	}
	if err := store.SoftDeleteCase(ctx, id, actor); err != nil {
		return err
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("case_id", id.String()).Msg("case deleted")
	return nil
}

// CaseCodes derives the Mohs codes for a stored case from its current stages
// and blocks.
func (s *Service) CaseCodes(ctx context.Context, tenantID string, caseID uuid.UUID) ([]string, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	c, err := store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	blocks, err := store.ListBlocksByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return CalculateCodes(c.TumorLocation, c.TotalStages, len(blocks)), nil
}
