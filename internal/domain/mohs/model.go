package mohs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Case maps to the mohs_cases table. One surgical episode for one tumor.
type Case struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenant_id"`
	CaseNumber          string     `db:"case_number" json:"case_number"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	SurgeonID           uuid.UUID  `db:"surgeon_id" json:"surgeon_id"`
	AssistantID         *uuid.UUID `db:"assistant_id" json:"assistant_id,omitempty"`
	EncounterID         *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	CaseDate            time.Time  `db:"case_date" json:"case_date"`
	TumorLocation       string     `db:"tumor_location" json:"tumor_location"`
	TumorLocationCode   *string    `db:"tumor_location_code" json:"tumor_location_code,omitempty"`
	TumorLaterality     *string    `db:"tumor_laterality" json:"tumor_laterality,omitempty"`
	TumorType           *string    `db:"tumor_type" json:"tumor_type,omitempty"`
	TumorSubtype        *string    `db:"tumor_subtype" json:"tumor_subtype,omitempty"`
	TumorHistology      *string    `db:"tumor_histology" json:"tumor_histology,omitempty"`
	ClinicalDescription *string    `db:"clinical_description" json:"clinical_description,omitempty"`
	PreOpSizeMM         *float64   `db:"pre_op_size_mm" json:"pre_op_size_mm,omitempty"`
	PreOpWidthMM        *float64   `db:"pre_op_width_mm" json:"pre_op_width_mm,omitempty"`
	PreOpLengthMM       *float64   `db:"pre_op_length_mm" json:"pre_op_length_mm,omitempty"`
	Anesthesia          *string    `db:"anesthesia" json:"anesthesia,omitempty"`
	Status              CaseStatus `db:"status" json:"status"`
	TotalStages         int        `db:"total_stages" json:"total_stages"`
	StartTime           *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime             *time.Time `db:"end_time" json:"end_time,omitempty"`
	ClosureType         *string    `db:"closure_type" json:"closure_type,omitempty"`
	ClosureSubtype      *string    `db:"closure_subtype" json:"closure_subtype,omitempty"`
	ClosurePerformedBy  *uuid.UUID `db:"closure_performed_by" json:"closure_performed_by,omitempty"`
	RepairCPTCodes      []string   `db:"repair_cpt_codes" json:"repair_cpt_codes,omitempty"`
	FinalDefectWidthMM  *float64   `db:"final_defect_width_mm" json:"final_defect_width_mm,omitempty"`
	FinalDefectLengthMM *float64   `db:"final_defect_length_mm" json:"final_defect_length_mm,omitempty"`
	PostOpNotes         *string    `db:"post_op_notes" json:"post_op_notes,omitempty"`
	Complications       *string    `db:"complications" json:"complications,omitempty"`
	DeletedAt           *time.Time `db:"deleted_at" json:"-"`
	CreatedBy           *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy           *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Stage maps to the mohs_stages table. One excise-and-read cycle.
type Stage struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	TenantID          string       `db:"tenant_id" json:"tenant_id"`
	CaseID            uuid.UUID    `db:"case_id" json:"case_id"`
	StageNumber       int          `db:"stage_number" json:"stage_number"`
	ExcisionTime      *time.Time   `db:"excision_time" json:"excision_time,omitempty"`
	ExcisionWidthMM   *float64     `db:"excision_width_mm" json:"excision_width_mm,omitempty"`
	ExcisionLengthMM  *float64     `db:"excision_length_mm" json:"excision_length_mm,omitempty"`
	ExcisionDepthMM   *float64     `db:"excision_depth_mm" json:"excision_depth_mm,omitempty"`
	TissueProcessor   *string      `db:"tissue_processor" json:"tissue_processor,omitempty"`
	HistologyTech     *string      `db:"histology_tech" json:"histology_tech,omitempty"`
	StainType         *string      `db:"stain_type" json:"stain_type,omitempty"`
	Notes             *string      `db:"notes" json:"notes,omitempty"`
	MarginStatus      MarginStatus `db:"margin_status" json:"margin_status"`
	BlockCount        int          `db:"block_count" json:"block_count"`
	FrozenSectionTime *time.Time   `db:"frozen_section_time" json:"frozen_section_time,omitempty"`
	ReadingTime       *time.Time   `db:"reading_time" json:"reading_time,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// Block maps to the mohs_stage_blocks table. (stage_id, block_label) is unique.
type Block struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	TenantID         string        `db:"tenant_id" json:"tenant_id"`
	StageID          uuid.UUID     `db:"stage_id" json:"stage_id"`
	BlockLabel       string        `db:"block_label" json:"block_label"`
	Position         *string       `db:"position" json:"position,omitempty"`
	PositionDegrees  *int          `db:"position_degrees" json:"position_degrees,omitempty"`
	MarginStatus     MarginStatus  `db:"margin_status" json:"margin_status"`
	DeepMarginStatus *MarginStatus `db:"deep_margin_status" json:"deep_margin_status,omitempty"`
	DepthMM          *float64      `db:"depth_mm" json:"depth_mm,omitempty"`
	TumorTypeFound   *string       `db:"tumor_type_found" json:"tumor_type_found,omitempty"`
	TumorPercentage  *float64      `db:"tumor_percentage" json:"tumor_percentage,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Closure maps to the mohs_closures table. The repair of the final defect.
type Closure struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	TenantID         string          `db:"tenant_id" json:"tenant_id"`
	CaseID           uuid.UUID       `db:"case_id" json:"case_id"`
	ClosureType      string          `db:"closure_type" json:"closure_type"`
	ClosureSubtype   *string         `db:"closure_subtype" json:"closure_subtype,omitempty"`
	ClosureBy        *uuid.UUID      `db:"closure_by" json:"closure_by,omitempty"`
	ClosureTime      time.Time       `db:"closure_time" json:"closure_time"`
	RepairLengthCM   *float64        `db:"repair_length_cm" json:"repair_length_cm,omitempty"`
	RepairWidthCM    *float64        `db:"repair_width_cm" json:"repair_width_cm,omitempty"`
	RepairAreaSqCM   *float64        `db:"repair_area_sq_cm" json:"repair_area_sq_cm,omitempty"`
	RepairCPTCodes   []string        `db:"repair_cpt_codes" json:"repair_cpt_codes,omitempty"`
	FlapGraftDetails json.RawMessage `db:"flap_graft_details" json:"flap_graft_details,omitempty"`
	SutureType       *string         `db:"suture_type" json:"suture_type,omitempty"`
	SutureSize       *string         `db:"suture_size" json:"suture_size,omitempty"`
	DressingType     *string         `db:"dressing_type" json:"dressing_type,omitempty"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy        *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Map maps to the mohs_maps table. Append-only, versioned per (case, map_type).
type Map struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	CaseID      uuid.UUID       `db:"case_id" json:"case_id"`
	StageID     *uuid.UUID      `db:"stage_id" json:"stage_id,omitempty"`
	MapType     string          `db:"map_type" json:"map_type"`
	MapSVG      *string         `db:"map_svg" json:"map_svg,omitempty"`
	Annotations json.RawMessage `db:"annotations" json:"annotations,omitempty"`
	Orientation *string         `db:"orientation" json:"orientation,omitempty"`
	Version     int             `db:"version" json:"version"`
	CreatedBy   *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PersonRef is display information for a patient or provider, read from the
// host application's tables.
type PersonRef struct {
	DisplayName string     `json:"display_name"`
	Identifier  *string    `json:"identifier,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
}

// StageDetail is a stage with its blocks ordered by label.
type StageDetail struct {
	*Stage
	Blocks []*Block `json:"blocks"`
}

// CaseDetail is the assembled read model of a case. Stages are ordered by
// stage_number, closures and maps by creation time.
type CaseDetail struct {
	*Case
	Stages   []StageDetail `json:"stages"`
	Closures []*Closure    `json:"closures"`
	Maps     []*Map        `json:"maps"`
	Patient  *PersonRef    `json:"patient,omitempty"`
	Surgeon  *PersonRef    `json:"surgeon,omitempty"`
}

// LatestClosure returns the most recently recorded closure, or nil.
func (d *CaseDetail) LatestClosure() *Closure {
	if len(d.Closures) == 0 {
		return nil
	}
	return d.Closures[len(d.Closures)-1]
}

// TotalBlocks counts blocks across all stages.
func (d *CaseDetail) TotalBlocks() int {
	n := 0
	for _, s := range d.Stages {
		n += len(s.Blocks)
	}
	return n
}

// CaseFilter narrows ListCases. Nil fields are not applied.
type CaseFilter struct {
	SurgeonID *uuid.UUID
	PatientID *uuid.UUID
	Status    *CaseStatus
	From      *time.Time
	To        *time.Time
	TumorType *string
}

// StatsFilter narrows GetStats. Nil fields are not applied.
type StatsFilter struct {
	SurgeonID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

// MarginResult is returned by RecordMargins.
type MarginResult struct {
	Blocks            []*Block     `json:"blocks"`
	StageMarginStatus MarginStatus `json:"stage_margin_status"`
	CaseStatus        CaseStatus   `json:"case_status"`
}
