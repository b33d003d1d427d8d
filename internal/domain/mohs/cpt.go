package mohs

import "strings"

// Mohs micrographic surgery procedure codes.
const (
	CPTComplexFirstStage      = "17311"
	CPTComplexAdditionalStage = "17312"
	CPTSimpleFirstStage       = "17313"
	CPTSimpleAdditionalStage  = "17314"
	CPTAdditionalBlocks       = "17315"
)

// BaselineBlocksPerStage is the number of blocks included in each stage code.
const BaselineBlocksPerStage = 5

// DefaultCPTDescriptions is the seed content of the mohs_cpt_codes table and
// the fallback used when no store is available.
var DefaultCPTDescriptions = map[string]string{
	CPTComplexFirstStage:      "Mohs surgery, head, neck, hands, feet, genitalia or direct involvement of nerves/vessels; first stage, up to 5 tissue blocks",
	CPTComplexAdditionalStage: "Mohs surgery, head, neck, hands, feet, genitalia; each additional stage, up to 5 tissue blocks",
	CPTSimpleFirstStage:       "Mohs surgery, trunk, arms or legs; first stage, up to 5 tissue blocks",
	CPTSimpleAdditionalStage:  "Mohs surgery, trunk, arms or legs; each additional stage, up to 5 tissue blocks",
	CPTAdditionalBlocks:       "Mohs surgery, each additional block after the first 5 tissue blocks, any stage",
}

// complexKeywords name the anatomic regions billed under the head/neck code
// family. A location is complex when it contains any of them.
var complexKeywords = []string{
	"head", "face", "facial", "scalp", "forehead", "temple", "brow", "eyebrow",
	"neck", "nose", "nasal", "naso", "alar", "ala", "columella",
	"ear", "helix", "helical", "antihelix", "tragus", "concha", "lobule", "auricular", "periauricular",
	"eyelid", "canthus", "periorbital", "periocular",
	"lip", "perioral", "vermilion", "philtrum", "mouth", "chin", "mental", "jaw", "mandible",
	"cheek", "malar", "zygomatic", "preauricular", "jawline",
	"hand", "palm", "finger", "thumb", "digit", "knuckle", "nail",
	"foot", "feet", "toe", "heel", "sole", "instep",
	"genital", "genitalia", "penis", "penile", "scrotum", "scrotal", "vulva", "vulvar", "labia", "perineum", "perianal",
}

// nonAnatomicTerms contain a complex keyword without naming a complex site
// ("forearm" contains "ear"). They are blanked out before matching.
var nonAnatomicTerms = strings.NewReplacer(
	"forearm", " ",
	"near", " ",
	"linear", " ",
)

// IsComplexLocation classifies a free-text tumor location by
// case-insensitive substring match against complexKeywords.
func IsComplexLocation(location string) bool {
	lower := nonAnatomicTerms.Replace(strings.ToLower(location))
	for _, kw := range complexKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CalculateCodes derives the Mohs codes billable for a case: one first-stage
// code, one additional-stage code per stage after the first, and one
// additional-block code per started group of five blocks beyond the baseline.
// Codes repeat once per unit.
func CalculateCodes(location string, stageCount, totalBlockCount int) []string {
	if stageCount <= 0 {
		return []string{}
	}

	first, additional := CPTSimpleFirstStage, CPTSimpleAdditionalStage
	if IsComplexLocation(location) {
		first, additional = CPTComplexFirstStage, CPTComplexAdditionalStage
	}

	codes := make([]string, 0, stageCount+1)
	codes = append(codes, first)
	for i := 1; i < stageCount; i++ {
		codes = append(codes, additional)
	}

	extraBlocks := totalBlockCount - BaselineBlocksPerStage*stageCount
	if extraBlocks > 0 {
		units := (extraBlocks + BaselineBlocksPerStage - 1) / BaselineBlocksPerStage
		for i := 0; i < units; i++ {
			codes = append(codes, CPTAdditionalBlocks)
		}
	}
	return codes
}
