package mohs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	notDocumented      = "Not yet documented"
	descUnavailable    = "Description unavailable"
	reportDateLayout   = "2006-01-02"
	reportTimeLayout   = "15:04"
	reportSectionBreak = "\n"
)

// Report is a rendered operative report.
type Report struct {
	CaseID      uuid.UUID `json:"case_id"`
	Text        string    `json:"report_text"`
	CPTCodes    []string  `json:"cpt_codes"`
	GeneratedAt time.Time `json:"generated_at"`
}

var marginGlyphs = map[MarginStatus]string{
	MarginNegative: "[-]",
	MarginPositive: "[+]",
	MarginClose:    "[~]",
	MarginPartial:  "[~]",
}

func glyph(m MarginStatus) string {
	if g, ok := marginGlyphs[m]; ok {
		return g
	}
	return "[?]"
}

func orNotDocumented(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return notDocumented
	}
	return *v
}

func mm(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.1f", *v)
}

func dims(label string, w, l *float64) string {
	if w == nil && l == nil {
		return fmt.Sprintf("%s: %s", label, notDocumented)
	}
	return fmt.Sprintf("%s: %s x %s mm", label, mm(w), mm(l))
}

// ReportCodes combines the repair codes stored on the case with the Mohs
// codes computed from its stages and blocks. The result keeps first-seen
// order and has no duplicates.
func ReportCodes(d *CaseDetail) []string {
	computed := CalculateCodes(d.TumorLocation, len(d.Stages), d.TotalBlocks())
	return lo.Uniq(append(append([]string{}, d.RepairCPTCodes...), computed...))
}

// BuildReport renders the operative report for a case snapshot. Missing
// optional data renders as a placeholder. now only feeds the signature date.
func BuildReport(d *CaseDetail, descriptions map[string]string, now time.Time) (*Report, error) {
	if d == nil || d.Case == nil {
		return nil, notFound("case not found")
	}

	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString(reportSectionBreak)
		}
		line("%s", strings.ToUpper(title))
	}

	line("MOHS MICROGRAPHIC SURGERY OPERATIVE REPORT")
	line("Case: %s", d.CaseNumber)
	line("Date of surgery: %s", d.CaseDate.Format(reportDateLayout))
	if d.Surgeon != nil {
		line("Surgeon: %s", d.Surgeon.DisplayName)
	} else {
		line("Surgeon: %s", notDocumented)
	}

	section("Patient")
	if p := d.Patient; p != nil {
		line("Name: %s", p.DisplayName)
		if p.Identifier != nil {
			line("MRN: %s", *p.Identifier)
		}
		if p.BirthDate != nil {
			line("DOB: %s", p.BirthDate.Format(reportDateLayout))
		}
	} else {
		line("%s", notDocumented)
	}

	section("Preoperative diagnosis")
	line("Tumor type: %s", orNotDocumented(d.TumorType))
	if d.TumorSubtype != nil {
		line("Subtype: %s", *d.TumorSubtype)
	}
	if d.TumorHistology != nil {
		line("Histology: %s", *d.TumorHistology)
	}
	loc := d.TumorLocation
	if d.TumorLaterality != nil && *d.TumorLaterality != "" {
		loc = *d.TumorLaterality + " " + loc
	}
	line("Location: %s", loc)
	if d.PreOpSizeMM != nil {
		line("Preoperative size: %s mm", mm(d.PreOpSizeMM))
	}
	if d.PreOpWidthMM != nil || d.PreOpLengthMM != nil {
		line("%s", dims("Preoperative dimensions", d.PreOpWidthMM, d.PreOpLengthMM))
	}
	if d.ClinicalDescription != nil {
		line("Clinical description: %s", *d.ClinicalDescription)
	}

	section("Anesthesia")
	line("%s", orNotDocumented(d.Anesthesia))

	section("Stages")
	if len(d.Stages) == 0 {
		line("%s", notDocumented)
	}
	for _, st := range d.Stages {
		line("Stage %d %s %s", st.StageNumber, glyph(st.MarginStatus), st.MarginStatus)
		line("  %s, depth %s mm", dims("Excision", st.ExcisionWidthMM, st.ExcisionLengthMM), mm(st.ExcisionDepthMM))
		if st.StainType != nil {
			line("  Stain: %s", *st.StainType)
		}
		if len(st.Blocks) == 0 {
			line("  Blocks: %s", notDocumented)
		}
		for _, blk := range st.Blocks {
			entry := fmt.Sprintf("  %s %s", glyph(blk.MarginStatus), blk.BlockLabel)
			if blk.Position != nil {
				entry += " (" + *blk.Position + ")"
			}
			if deep := deepOf(blk); deep != "" {
				entry += " deep " + glyph(deep)
			}
			if blk.TumorTypeFound != nil {
				entry += " " + *blk.TumorTypeFound
			}
			line("%s", entry)
		}
		if st.Notes != nil {
			line("  Notes: %s", *st.Notes)
		}
	}

	section("Final defect")
	w, l := d.FinalDefectWidthMM, d.FinalDefectLengthMM
	if w == nil && l == nil && len(d.Stages) > 0 {
		last := d.Stages[len(d.Stages)-1]
		w, l = last.ExcisionWidthMM, last.ExcisionLengthMM
	}
	line("%s", dims("Size", w, l))
	line("Total stages: %d, total blocks: %d", len(d.Stages), d.TotalBlocks())

	section("Closure")
	if cl := d.LatestClosure(); cl != nil {
		closure := cl.ClosureType
		if cl.ClosureSubtype != nil {
			closure += " (" + *cl.ClosureSubtype + ")"
		}
		line("Type: %s", closure)
		line("Time: %s", cl.ClosureTime.Format(reportDateLayout+" "+reportTimeLayout))
		if cl.RepairLengthCM != nil || cl.RepairWidthCM != nil {
			line("Repair: %s x %s cm", mm(cl.RepairLengthCM), mm(cl.RepairWidthCM))
		}
		if cl.RepairAreaSqCM != nil {
			line("Area: %.2f sq cm", *cl.RepairAreaSqCM)
		}
		if cl.SutureType != nil {
			suture := *cl.SutureType
			if cl.SutureSize != nil {
				suture += " " + *cl.SutureSize
			}
			line("Suture: %s", suture)
		}
		if cl.DressingType != nil {
			line("Dressing: %s", *cl.DressingType)
		}
		if cl.Notes != nil {
			line("Notes: %s", *cl.Notes)
		}
	} else {
		line("%s", notDocumented)
	}

	section("Procedure codes")
	codes := ReportCodes(d)
	computed := CalculateCodes(d.TumorLocation, len(d.Stages), d.TotalBlocks())
	units := lo.CountValues(computed)
	if len(codes) == 0 {
		line("%s", notDocumented)
	}
	for _, code := range codes {
		desc, ok := descriptions[code]
		if !ok || desc == "" {
			desc = descUnavailable
		}
		if n := units[code]; n > 1 {
			line("%s x%d  %s", code, n, desc)
		} else {
			line("%s  %s", code, desc)
		}
	}

	if d.PostOpNotes != nil || d.Complications != nil {
		section("Postoperative")
		if d.PostOpNotes != nil {
			line("Notes: %s", *d.PostOpNotes)
		}
		if d.Complications != nil {
			line("Complications: %s", *d.Complications)
		}
	}

	section("Signature")
	if d.Surgeon != nil {
		line("Electronically signed by %s", d.Surgeon.DisplayName)
	} else {
		line("Electronically signed")
	}
	line("Date: %s", now.Format(reportDateLayout))

	return &Report{CaseID: d.ID, Text: b.String(), CPTCodes: codes, GeneratedAt: now}, nil
}

// GenerateReport loads the case snapshot and renders its operative report.
// Codes missing from the reference table fall back to the built-in
// descriptions.
func (s *Service) GenerateReport(ctx context.Context, tenantID string, caseID uuid.UUID) (*Report, error) {
	d, err := s.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	store, err := s.repo.ForTenant(tenantID)
	if err != nil {
		return nil, err
	}
	codes := ReportCodes(d)
	descriptions, err := store.CPTDescriptions(ctx, codes)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(codes))
	for _, code := range codes {
		if desc, ok := descriptions[code]; ok {
			merged[code] = desc
		} else if desc, ok := DefaultCPTDescriptions[code]; ok {
			merged[code] = desc
		}
	}
	return BuildReport(d, merged, s.now())
}
