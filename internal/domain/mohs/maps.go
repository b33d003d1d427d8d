package mohs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// SaveMap stores a new version of a case map. Versions are counted per
// (case, map_type), starting at 1; earlier versions are never modified.
func (s *Service) SaveMap(ctx context.Context, tenantID string, caseID uuid.UUID, m *Map, actor string) (*Map, error) {
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	m.MapType = strings.TrimSpace(m.MapType)
	if m.MapType == "" {
		return nil, invalid("map_type is required")
	}
	if len(m.Annotations) > 0 && !json.Valid(m.Annotations) {
		return nil, invalid("annotations is not valid JSON")
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.GetCaseForUpdate(ctx, caseID); err != nil {
			return err
		}
		if m.StageID != nil {
			st, err := tx.GetStage(ctx, *m.StageID)
			if err != nil {
				return err
			}
			if st.CaseID != caseID {
				return invalid("stage %s does not belong to case %s", st.ID, caseID)
			}
		}
		latest, err := tx.LatestMapVersion(ctx, caseID, m.MapType)
		if err != nil {
			return err
		}
		m.CaseID = caseID
		m.Version = latest + 1
		m.CreatedBy = &actor
		return tx.CreateMap(ctx, m)
	})
	if err != nil {
		return nil, txFailure("save map", err)
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("case_id", caseID.String()).
		Str("map_type", m.MapType).Int("version", m.Version).Msg("map saved")
	return m, nil
}
