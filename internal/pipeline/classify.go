package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"opcost/internal"
	"opcost/internal/util"
)

var (
	reNonMetal = regexp.MustCompile(`MDF|VIDRO|GLASS|PLAST|NYLON|GRANITO`)
	reTubeWord = regexp.MustCompile(`\bTUBO\b|\bPERF\b|\bPERFIL\b`)
	// three-part profile dimension, e.g. 40X40X1.2 or 30x20x1,5
	reTubeDims = regexp.MustCompile(`\b\d{1,4}([.,]\d+)?\s*X\s*\d{1,4}([.,]\d+)?\s*X\s*\d{1,3}([.,]\d+)?\b`)

	// alloy + thickness + supplier code, e.g. "304#1.2#F45" or "430-0,8-MP12"
	reComposed = regexp.MustCompile(`(304|430|316|GALV\w*|ALUZINC\w*|GALVALUME|ALUM\w*)[#\-_/ ]+\d+([.,]\d+)?[#\-_/ ]+[A-Z0-9]+`)

	reDecimal    = regexp.MustCompile(`\d{1,2}[.,]\d{1,2}`)
	reMillimeter = regexp.MustCompile(`\b(\d{1,2})\s*MM\b`)
	reTwoDigit   = regexp.MustCompile(`\b(\d{2})\b`)

	rawCodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bMP[-_ ]?\d{1,4}\b`),
		regexp.MustCompile(`\bMAT[-_ ]?\d{1,4}\b`),
		regexp.MustCompile(`\b[A-Z]{2,3}\d{3,}\b`),
		regexp.MustCompile(`\b[A-Z0-9]{4,}\b`),
	}
)

// knownSheetMaterials get sheet_metal kind on name alone; INOX and ACO also
// need an inferred thickness before they count as sheet stock.
var knownSheetMaterials = map[internal.MaterialName]bool{
	internal.MaterialInox304:  true,
	internal.MaterialInox430:  true,
	internal.MaterialInox316:  true,
	internal.MaterialGalv:     true,
	internal.MaterialAluzinc:  true,
	internal.MaterialAluminio: true,
}

// ClassifyMaterial infers material family, nominal thickness and confidence
// from the free-text material, description and part-code fields.
func ClassifyMaterial(materialText, description, partCode string) internal.MaterialClassification {
	joined := util.NormalizeText(strings.Join([]string{materialText, description, partCode}, " "))

	rawCode := extractRawMaterialCode(util.NormalizeText(materialText))
	thickness := inferThickness(deref(rawCode),
		util.NormalizeText(materialText),
		util.NormalizeText(description),
		util.NormalizeText(partCode),
	)

	if reNonMetal.MatchString(joined) {
		return internal.MaterialClassification{Kind: internal.MaterialNonMetal, ThicknessMM: thickness, RawCode: rawCode, Confidence: 0.95}
	}

	if reTubeWord.MatchString(joined) || strings.ContainsAny(joined, "Ø⌀") || reTubeDims.MatchString(joined) {
		return internal.MaterialClassification{Kind: internal.MaterialTubeProfile, RawCode: rawCode, Confidence: 0.92}
	}

	name := scanMaterialName(joined, materialText)

	if name != nil && knownSheetMaterials[*name] {
		confidence := 0.6
		if reComposed.MatchString(joined) {
			confidence = 0.95
		} else if thickness != nil {
			confidence = 0.78
		}
		return internal.MaterialClassification{
			Kind:        internal.MaterialSheetMetal,
			Name:        name,
			ThicknessMM: thickness,
			RawCode:     rawCode,
			Confidence:  confidence,
		}
	}

	if name != nil && (*name == internal.MaterialInox || *name == internal.MaterialAco) && thickness != nil {
		return internal.MaterialClassification{
			Kind:        internal.MaterialSheetMetal,
			Name:        name,
			ThicknessMM: thickness,
			RawCode:     rawCode,
			Confidence:  0.65,
		}
	}

	return internal.MaterialClassification{
		Kind:        internal.MaterialUnknown,
		Name:        name,
		ThicknessMM: thickness,
		RawCode:     rawCode,
		Confidence:  0.2,
	}
}

// scanMaterialName maps alloy tokens to the normalized material names.
// OUTRO only applies when the dedicated material field has content that
// matched nothing; an absent field yields nil.
func scanMaterialName(joined, materialText string) *internal.MaterialName {
	name := func(n internal.MaterialName) *internal.MaterialName { return &n }

	switch {
	case strings.Contains(joined, "304"):
		return name(internal.MaterialInox304)
	case strings.Contains(joined, "430"):
		return name(internal.MaterialInox430)
	case strings.Contains(joined, "316"):
		return name(internal.MaterialInox316)
	case strings.Contains(joined, "ALUZINC") || strings.Contains(joined, "GALVALUME"):
		return name(internal.MaterialAluzinc)
	case strings.Contains(joined, "GALV"):
		return name(internal.MaterialGalv)
	case strings.Contains(joined, "ALUM"):
		return name(internal.MaterialAluminio)
	case strings.Contains(joined, "AISI") || strings.Contains(joined, "1020") ||
		strings.Contains(joined, "ACO") || strings.Contains(joined, "CARBONO"):
		return name(internal.MaterialAco)
	case strings.Contains(joined, "INOX"):
		return name(internal.MaterialInox)
	case strings.TrimSpace(materialText) != "":
		return name(internal.MaterialOutro)
	default:
		return nil
	}
}

// inferThickness tries material text, description, part code and finally the
// extracted raw-material code; first plausible reading wins. Only the code is
// allowed the two-digit-tenths shorthand, so blank dimensions in the other
// fields cannot masquerade as thicknesses. Anything outside (0, 20] is
// discarded as a false positive.
func inferThickness(rawCode string, texts ...string) *float64 {
	for _, text := range texts {
		if text == "" {
			continue
		}
		if v := thicknessFromText(text); v != nil {
			return v
		}
	}
	if rawCode != "" {
		if v := thicknessFromText(rawCode); v != nil {
			return v
		}
		if v := thicknessFromCodeDigits(rawCode); v != nil {
			return v
		}
	}
	return nil
}

func thicknessFromText(text string) *float64 {
	for _, match := range reDecimal.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
		if err == nil && v >= 0.2 && v <= 20 {
			return plausible(v)
		}
	}
	for _, match := range reMillimeter.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(match[1], 64)
		if err == nil && v >= 0.2 && v <= 20 {
			return plausible(v)
		}
	}
	return nil
}

// thicknessFromCodeDigits reads a bare two-digit token as tenths of a
// millimeter ("12" -> 1.2mm), the shop's SKU shorthand.
func thicknessFromCodeDigits(text string) *float64 {
	for _, match := range reTwoDigit.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(match[1], 64)
		if err == nil && v >= 3 && v <= 60 {
			return plausible(v / 10)
		}
	}
	return nil
}

func plausible(v float64) *float64 {
	if v <= 0 || v > 20 {
		return nil
	}
	return &v
}

// extractRawMaterialCode pulls an SKU-looking token (MP-12, MAT_034,
// AB1234, any 4+ alnum mix) out of the material text.
func extractRawMaterialCode(text string) *string {
	last := rawCodePatterns[len(rawCodePatterns)-1]
	for _, re := range rawCodePatterns {
		if re == last {
			// generic 4+ alnum token; require a letter/digit mix so plain
			// words do not qualify
			for _, match := range re.FindAllString(text, -1) {
				if hasLetterAndDigit(match) {
					return util.StringPtr(match)
				}
			}
			continue
		}
		if match := re.FindString(text); match != "" {
			return util.StringPtr(match)
		}
	}
	return nil
}

func hasLetterAndDigit(s string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
