package mohs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohs/mohs/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const (
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"
	pgUndefinedColumn     = "42703"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) ForTenant(tenantID string) (Store, error) {
	if err := db.ValidateTenantID(tenantID); err != nil {
		return nil, invalid("%v", err)
	}
	return &storePG{pool: r.pool, tenant: tenantID}, nil
}

type storePG struct {
	pool   *pgxpool.Pool
	tx     pgx.Tx
	tenant string
}

func (s *storePG) TenantID() string { return s.tenant }

func (s *storePG) conn(ctx context.Context) queryable {
	if s.tx != nil {
		return s.tx
	}
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *storePG) RunInSnapshot(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	return db.RunInSnapshot(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &storePG{pool: s.pool, tx: tx, tenant: s.tenant})
	})
}

func (s *storePG) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	var b db.Beginner = s.pool
	if s.tx != nil {
		b = s.tx
	}
	return db.RunInTx(ctx, b, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &storePG{pool: s.pool, tx: tx, tenant: s.tenant})
	})
}

func qualify(cols, alias string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func noRows(err error, what string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("%s %s", what, id)
	}
	return err
}

// =========== Cases ===========

const caseCols = `id, tenant_id, case_number, patient_id, surgeon_id, assistant_id, encounter_id, case_date,
	tumor_location, tumor_location_code, tumor_laterality, tumor_type, tumor_subtype, tumor_histology,
	clinical_description, pre_op_size_mm, pre_op_width_mm, pre_op_length_mm, anesthesia,
	status, total_stages, start_time, end_time,
	closure_type, closure_subtype, closure_performed_by, repair_cpt_codes,
	final_defect_width_mm, final_defect_length_mm, post_op_notes, complications,
	deleted_at, created_by, updated_by, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.TenantID, &c.CaseNumber, &c.PatientID, &c.SurgeonID, &c.AssistantID, &c.EncounterID, &c.CaseDate,
		&c.TumorLocation, &c.TumorLocationCode, &c.TumorLaterality, &c.TumorType, &c.TumorSubtype, &c.TumorHistology,
		&c.ClinicalDescription, &c.PreOpSizeMM, &c.PreOpWidthMM, &c.PreOpLengthMM, &c.Anesthesia,
		&c.Status, &c.TotalStages, &c.StartTime, &c.EndTime,
		&c.ClosureType, &c.ClosureSubtype, &c.ClosurePerformedBy, &c.RepairCPTCodes,
		&c.FinalDefectWidthMM, &c.FinalDefectLengthMM, &c.PostOpNotes, &c.Complications,
		&c.DeletedAt, &c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (s *storePG) CreateCase(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.TenantID = s.tenant
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO mohs_cases (id, tenant_id, case_number, patient_id, surgeon_id, assistant_id, encounter_id, case_date,
			tumor_location, tumor_location_code, tumor_laterality, tumor_type, tumor_subtype, tumor_histology,
			clinical_description, pre_op_size_mm, pre_op_width_mm, pre_op_length_mm, anesthesia,
			status, total_stages, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$22)
		RETURNING created_at, updated_at`,
		c.ID, c.TenantID, c.CaseNumber, c.PatientID, c.SurgeonID, c.AssistantID, c.EncounterID, c.CaseDate,
		c.TumorLocation, c.TumorLocationCode, c.TumorLaterality, c.TumorType, c.TumorSubtype, c.TumorHistology,
		c.ClinicalDescription, c.PreOpSizeMM, c.PreOpWidthMM, c.PreOpLengthMM, c.Anesthesia,
		c.Status, c.TotalStages, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isPgCode(err, pgForeignKeyViolation) {
		return notFound("patient, surgeon, assistant or encounter does not belong to tenant %s", s.tenant)
	}
	return err
}

func (s *storePG) getCase(ctx context.Context, id uuid.UUID, lock bool) (*Case, error) {
	sql := `SELECT ` + caseCols + ` FROM mohs_cases WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	if lock {
		sql += ` FOR UPDATE`
	}
	c, err := scanCase(s.conn(ctx).QueryRow(ctx, sql, s.tenant, id))
	if err != nil {
		return nil, noRows(err, "case", id)
	}
	return c, nil
}

func (s *storePG) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.getCase(ctx, id, false)
}

func (s *storePG) GetCaseForUpdate(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.getCase(ctx, id, true)
}

func (s *storePG) UpdateCaseWorkflow(ctx context.Context, c *Case) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE mohs_cases SET status=$3, total_stages=$4, start_time=$5, end_time=$6, updated_by=$7, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		s.tenant, c.ID, c.Status, c.TotalStages, c.StartTime, c.EndTime, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("case %s", c.ID)
	}
	return nil
}

func (s *storePG) UpdateCaseClosure(ctx context.Context, c *Case) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE mohs_cases SET closure_type=$3, closure_subtype=$4, closure_performed_by=$5, repair_cpt_codes=$6,
			status=$7, end_time=$8, updated_by=$9, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		s.tenant, c.ID, c.ClosureType, c.ClosureSubtype, c.ClosurePerformedBy, c.RepairCPTCodes,
		c.Status, c.EndTime, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("case %s", c.ID)
	}
	return nil
}

func (s *storePG) SoftDeleteCase(ctx context.Context, id uuid.UUID, actor string) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE mohs_cases SET deleted_at=NOW(), updated_by=$3, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		s.tenant, id, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("case %s", id)
	}
	return nil
}

func (s *storePG) ListCases(ctx context.Context, f CaseFilter, limit, offset int) ([]*Case, int, error) {
	qb, err := db.NewTenantQuery("mohs_cases", caseCols, s.tenant)
	if err != nil {
		return nil, 0, invalid("%v", err)
	}
	qb.Add("deleted_at IS NULL")
	if f.SurgeonID != nil {
		qb.Eq("surgeon_id", *f.SurgeonID)
	}
	if f.PatientID != nil {
		qb.Eq("patient_id", *f.PatientID)
	}
	if f.Status != nil {
		qb.Eq("status", *f.Status)
	}
	if f.TumorType != nil {
		qb.Eq("tumor_type", *f.TumorType)
	}
	if f.From != nil {
		qb.Add(fmt.Sprintf("case_date >= $%d", qb.Idx()), *f.From)
	}
	if f.To != nil {
		qb.Add(fmt.Sprintf("case_date <= $%d", qb.Idx()), *f.To)
	}
	qb.OrderBy("case_date DESC, created_at DESC")

	var total int
	if err := s.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.conn(ctx).Query(ctx, qb.DataSQL(limit, offset), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Stages ===========

const stageCols = `id, tenant_id, case_id, stage_number, excision_time, excision_width_mm, excision_length_mm, excision_depth_mm,
	tissue_processor, histology_tech, stain_type, notes, margin_status, block_count,
	frozen_section_time, reading_time, created_at, updated_at`

func scanStage(row pgx.Row) (*Stage, error) {
	var st Stage
	err := row.Scan(&st.ID, &st.TenantID, &st.CaseID, &st.StageNumber, &st.ExcisionTime, &st.ExcisionWidthMM, &st.ExcisionLengthMM, &st.ExcisionDepthMM,
		&st.TissueProcessor, &st.HistologyTech, &st.StainType, &st.Notes, &st.MarginStatus, &st.BlockCount,
		&st.FrozenSectionTime, &st.ReadingTime, &st.CreatedAt, &st.UpdatedAt)
	return &st, err
}

func (s *storePG) CreateStage(ctx context.Context, st *Stage) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.TenantID = s.tenant
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO mohs_stages (id, tenant_id, case_id, stage_number, excision_time, excision_width_mm, excision_length_mm, excision_depth_mm,
			tissue_processor, histology_tech, stain_type, notes, margin_status, block_count, frozen_section_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		st.ID, st.TenantID, st.CaseID, st.StageNumber, st.ExcisionTime, st.ExcisionWidthMM, st.ExcisionLengthMM, st.ExcisionDepthMM,
		st.TissueProcessor, st.HistologyTech, st.StainType, st.Notes, st.MarginStatus, st.BlockCount, st.FrozenSectionTime,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	return err
}

func (s *storePG) getStage(ctx context.Context, id uuid.UUID, lock bool) (*Stage, error) {
	sql := `SELECT ` + qualify(stageCols, "s") + ` FROM mohs_stages s
		JOIN mohs_cases c ON c.id = s.case_id AND c.tenant_id = s.tenant_id
		WHERE s.tenant_id = $1 AND s.id = $2 AND c.deleted_at IS NULL`
	if lock {
		sql += ` FOR UPDATE OF s`
	}
	st, err := scanStage(s.conn(ctx).QueryRow(ctx, sql, s.tenant, id))
	if err != nil {
		return nil, noRows(err, "stage", id)
	}
	return st, nil
}

func (s *storePG) GetStage(ctx context.Context, id uuid.UUID) (*Stage, error) {
	return s.getStage(ctx, id, false)
}

func (s *storePG) GetStageForUpdate(ctx context.Context, id uuid.UUID) (*Stage, error) {
	return s.getStage(ctx, id, true)
}

func (s *storePG) ListStages(ctx context.Context, caseID uuid.UUID) ([]*Stage, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+stageCols+` FROM mohs_stages
		WHERE tenant_id = $1 AND case_id = $2 ORDER BY stage_number`, s.tenant, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

func (s *storePG) UpdateStageMargins(ctx context.Context, st *Stage) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE mohs_stages SET margin_status=$3, block_count=$4, reading_time=$5, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2`,
		s.tenant, st.ID, st.MarginStatus, st.BlockCount, st.ReadingTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("stage %s", st.ID)
	}
	return nil
}

// =========== Blocks ===========

const blockCols = `id, tenant_id, stage_id, block_label, position, position_degrees, margin_status, deep_margin_status,
	depth_mm, tumor_type_found, tumor_percentage, notes, created_at, updated_at`

func scanBlock(row pgx.Row) (*Block, error) {
	var b Block
	err := row.Scan(&b.ID, &b.TenantID, &b.StageID, &b.BlockLabel, &b.Position, &b.PositionDegrees, &b.MarginStatus, &b.DeepMarginStatus,
		&b.DepthMM, &b.TumorTypeFound, &b.TumorPercentage, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

// UpsertBlock inserts the block or overwrites the existing row with the same
// (stage_id, block_label). On update the original id and created_at are kept.
func (s *storePG) UpsertBlock(ctx context.Context, b *Block) error {
	b.TenantID = s.tenant
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO mohs_stage_blocks (id, tenant_id, stage_id, block_label, position, position_degrees, margin_status, deep_margin_status,
			depth_mm, tumor_type_found, tumor_percentage, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (stage_id, block_label) DO UPDATE SET
			position = EXCLUDED.position,
			position_degrees = EXCLUDED.position_degrees,
			margin_status = EXCLUDED.margin_status,
			deep_margin_status = EXCLUDED.deep_margin_status,
			depth_mm = EXCLUDED.depth_mm,
			tumor_type_found = EXCLUDED.tumor_type_found,
			tumor_percentage = EXCLUDED.tumor_percentage,
			notes = EXCLUDED.notes,
			updated_at = NOW()
		WHERE mohs_stage_blocks.tenant_id = EXCLUDED.tenant_id
		RETURNING id, created_at, updated_at`,
		uuid.New(), b.TenantID, b.StageID, b.BlockLabel, b.Position, b.PositionDegrees, b.MarginStatus, b.DeepMarginStatus,
		b.DepthMM, b.TumorTypeFound, b.TumorPercentage, b.Notes,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("stage %s", b.StageID)
	}
	return err
}

func (s *storePG) queryBlocks(ctx context.Context, sql string, args ...interface{}) ([]*Block, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *storePG) ListBlocks(ctx context.Context, stageID uuid.UUID) ([]*Block, error) {
	return s.queryBlocks(ctx, `SELECT `+blockCols+` FROM mohs_stage_blocks
		WHERE tenant_id = $1 AND stage_id = $2 ORDER BY block_label`, s.tenant, stageID)
}

func (s *storePG) ListBlocksByCase(ctx context.Context, caseID uuid.UUID) ([]*Block, error) {
	return s.queryBlocks(ctx, `SELECT `+qualify(blockCols, "b")+` FROM mohs_stage_blocks b
		JOIN mohs_stages s ON s.id = b.stage_id
		WHERE b.tenant_id = $1 AND s.case_id = $2 ORDER BY s.stage_number, b.block_label`, s.tenant, caseID)
}

// =========== Closures ===========

const closureCols = `id, tenant_id, case_id, closure_type, closure_subtype, closure_by, closure_time,
	repair_length_cm, repair_width_cm, repair_area_sq_cm, repair_cpt_codes, flap_graft_details,
	suture_type, suture_size, dressing_type, notes, created_by, created_at`

func scanClosure(row pgx.Row) (*Closure, error) {
	var cl Closure
	err := row.Scan(&cl.ID, &cl.TenantID, &cl.CaseID, &cl.ClosureType, &cl.ClosureSubtype, &cl.ClosureBy, &cl.ClosureTime,
		&cl.RepairLengthCM, &cl.RepairWidthCM, &cl.RepairAreaSqCM, &cl.RepairCPTCodes, &cl.FlapGraftDetails,
		&cl.SutureType, &cl.SutureSize, &cl.DressingType, &cl.Notes, &cl.CreatedBy, &cl.CreatedAt)
	return &cl, err
}

func (s *storePG) CreateClosure(ctx context.Context, cl *Closure) error {
	if cl.ID == uuid.Nil {
		cl.ID = uuid.New()
	}
	cl.TenantID = s.tenant
	return s.conn(ctx).QueryRow(ctx, `
		INSERT INTO mohs_closures (id, tenant_id, case_id, closure_type, closure_subtype, closure_by, closure_time,
			repair_length_cm, repair_width_cm, repair_area_sq_cm, repair_cpt_codes, flap_graft_details,
			suture_type, suture_size, dressing_type, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at`,
		cl.ID, cl.TenantID, cl.CaseID, cl.ClosureType, cl.ClosureSubtype, cl.ClosureBy, cl.ClosureTime,
		cl.RepairLengthCM, cl.RepairWidthCM, cl.RepairAreaSqCM, cl.RepairCPTCodes, cl.FlapGraftDetails,
		cl.SutureType, cl.SutureSize, cl.DressingType, cl.Notes, cl.CreatedBy,
	).Scan(&cl.CreatedAt)
}

func (s *storePG) ListClosures(ctx context.Context, caseID uuid.UUID) ([]*Closure, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+closureCols+` FROM mohs_closures
		WHERE tenant_id = $1 AND case_id = $2 ORDER BY created_at, closure_time`, s.tenant, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Closure
	for rows.Next() {
		cl, err := scanClosure(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cl)
	}
	return items, rows.Err()
}

// =========== Maps ===========

const mapCols = `id, tenant_id, case_id, stage_id, map_type, map_svg, annotations, orientation, version, created_by, created_at`

func (s *storePG) CreateMap(ctx context.Context, m *Map) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.TenantID = s.tenant
	return s.conn(ctx).QueryRow(ctx, `
		INSERT INTO mohs_maps (id, tenant_id, case_id, stage_id, map_type, map_svg, annotations, orientation, version, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		m.ID, m.TenantID, m.CaseID, m.StageID, m.MapType, m.MapSVG, m.Annotations, m.Orientation, m.Version, m.CreatedBy,
	).Scan(&m.CreatedAt)
}

func (s *storePG) LatestMapVersion(ctx context.Context, caseID uuid.UUID, mapType string) (int, error) {
	var v int
	err := s.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM mohs_maps
		WHERE tenant_id = $1 AND case_id = $2 AND map_type = $3`, s.tenant, caseID, mapType).Scan(&v)
	return v, err
}

func (s *storePG) ListMaps(ctx context.Context, caseID uuid.UUID) ([]*Map, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+mapCols+` FROM mohs_maps
		WHERE tenant_id = $1 AND case_id = $2 ORDER BY created_at, version`, s.tenant, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Map
	for rows.Next() {
		var m Map
		if err := rows.Scan(&m.ID, &m.TenantID, &m.CaseID, &m.StageID, &m.MapType, &m.MapSVG, &m.Annotations,
			&m.Orientation, &m.Version, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

// =========== Reference and host data ===========

// GetParticipants reads display data from the host application's patients and
// providers tables. Missing rows, or a schema without those tables or
// columns, yield nil.
func (s *storePG) GetParticipants(ctx context.Context, patientID, surgeonID uuid.UUID) (*PersonRef, *PersonRef, error) {
	patient, err := s.person(ctx, `SELECT concat_ws(' ', first_name, last_name), mrn, birth_date
		FROM patients WHERE tenant_id = $1 AND id = $2`, patientID)
	if err != nil {
		return nil, nil, err
	}
	surgeon, err := s.person(ctx, `SELECT display_name, npi, NULL::date
		FROM providers WHERE tenant_id = $1 AND id = $2`, surgeonID)
	if err != nil {
		return nil, nil, err
	}
	return patient, surgeon, nil
}

func (s *storePG) person(ctx context.Context, sql string, id uuid.UUID) (*PersonRef, error) {
	var p PersonRef
	err := s.conn(ctx).QueryRow(ctx, sql, s.tenant, id).Scan(&p.DisplayName, &p.Identifier, &p.BirthDate)
	if errors.Is(err, pgx.ErrNoRows) || isPgCode(err, pgUndefinedTable) || isPgCode(err, pgUndefinedColumn) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *storePG) CPTDescriptions(ctx context.Context, codes []string) (map[string]string, error) {
	out := make(map[string]string, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	rows, err := s.conn(ctx).Query(ctx, `SELECT code, description FROM mohs_cpt_codes WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, desc string
		if err := rows.Scan(&code, &desc); err != nil {
			return nil, err
		}
		out[code] = desc
	}
	return out, rows.Err()
}

// =========== Analytics ===========

func (s *storePG) StatsRows(ctx context.Context, f StatsFilter) ([]StatsRow, error) {
	qb, err := db.NewTenantQuery("mohs_cases c", `c.status, c.tumor_type, c.tumor_location, c.closure_type,
		c.total_stages, c.start_time, c.end_time,
		EXISTS (SELECT 1 FROM mohs_stages s
			WHERE s.case_id = c.id AND s.stage_number = 1 AND s.margin_status = 'negative')`, s.tenant)
	if err != nil {
		return nil, invalid("%v", err)
	}
	qb.Add("c.deleted_at IS NULL")
	if f.SurgeonID != nil {
		qb.Eq("c.surgeon_id", *f.SurgeonID)
	}
	if f.From != nil {
		qb.Add(fmt.Sprintf("c.case_date >= $%d", qb.Idx()), *f.From)
	}
	if f.To != nil {
		qb.Add(fmt.Sprintf("c.case_date <= $%d", qb.Idx()), *f.To)
	}

	rows, err := s.conn(ctx).Query(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		if err := rows.Scan(&r.Status, &r.TumorType, &r.TumorLocation, &r.ClosureType,
			&r.TotalStages, &r.StartTime, &r.EndTime, &r.FirstStageNegative); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
