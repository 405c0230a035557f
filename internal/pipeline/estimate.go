package pipeline

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"opcost/internal"
	"opcost/internal/catalog"
	"opcost/internal/util"
)

const (
	maxScrap      = 0.95
	minEfficiency = 0.05
)

// Estimator turns normalized OP items into a nesting-based material cost
// estimate. It re-derives classification and routing per item against the
// authoritative rule set, so the normalizer's provisional pass never binds
// the outcome.
type Estimator struct {
	index  *catalog.Index
	router *Router
}

// NewEstimator builds an estimator over a sheet-spec catalog. A nil or
// empty rule list selects the built-in routing table.
func NewEstimator(specs []internal.SheetSpec, rules []internal.ProcessRule) *Estimator {
	return &Estimator{
		index:  catalog.BuildIndex(specs),
		router: NewRouter(rules),
	}
}

// group accumulates the sheet-bound items sharing a material and thickness.
type group struct {
	key       string
	name      internal.MaterialName
	thickness float64
	spec      *internal.SheetSpec
	itemCount int
	totalQty  float64
	totalArea float64 // mm²
}

type pendingSet struct {
	seen   map[string]struct{}
	issues []internal.PendingIssue
}

func newPendingSet() *pendingSet {
	return &pendingSet{seen: map[string]struct{}{}, issues: []internal.PendingIssue{}}
}

// add records an issue, deduplicated by (code, row-or-group key).
func (p *pendingSet) add(issue internal.PendingIssue) {
	key := string(issue.Code) + "|"
	if issue.RowIndex != nil {
		key += fmt.Sprintf("row:%d", *issue.RowIndex)
	} else if issue.GroupKey != nil {
		key += "group:" + *issue.GroupKey
	}
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}
	p.issues = append(p.issues, issue)
}

// Estimate runs the full per-item resolution, grouping and estimation pass.
// Anomalies become pending issues or exclusions, never errors.
func (e *Estimator) Estimate(items []internal.NormalizedItem, override *internal.EstimationOverride) internal.EstimationResult {
	result := internal.EstimationResult{
		Included:        []internal.NormalizedItem{},
		Excluded:        []internal.ExcludedItem{},
		Classifications: []internal.ItemClassification{},
		Groups:          []internal.EstimationGroup{},
	}
	pending := newPendingSet()

	groups := map[string]*group{}
	groupOrder := []string{}

	for _, item := range items {
		resolved := e.resolveItem(item, pending)
		result.Classifications = append(result.Classifications, resolved.audit)

		if resolved.audit.Decision == internal.DecisionSheetArea {
			result.Included = append(result.Included, resolved.item)
			key := groupKey(*resolved.item.MaterialName, *resolved.item.ThicknessMM)
			g, ok := groups[key]
			if !ok {
				g = &group{
					key:       key,
					name:      *resolved.item.MaterialName,
					thickness: *resolved.item.ThicknessMM,
					spec:      e.index.Find(*resolved.item.MaterialName, *resolved.item.ThicknessMM),
				}
				groups[key] = g
				groupOrder = append(groupOrder, key)
				if g.spec == nil {
					pending.add(internal.PendingIssue{
						Code:     internal.PendingMissingSheetSpec,
						Message:  fmt.Sprintf("nenhuma chapa cadastrada para %s %.2fmm", g.name, g.thickness),
						GroupKey: util.StringPtr(key),
						Critical: true,
					})
				}
			}
			g.itemCount++
			g.totalQty += resolved.item.Qty
			g.totalArea += resolved.item.Qty * *resolved.item.BlankXMM * *resolved.item.BlankYMM
		} else {
			result.Excluded = append(result.Excluded, internal.ExcludedItem{Item: resolved.item, Reason: resolved.reason})
		}
	}

	totalArea := decimal.Zero
	totalCost := decimal.Zero
	totalSheets := 0
	for _, key := range groupOrder {
		g := groups[key]
		if g.spec == nil {
			// no stock spec: the group contributes nothing to the output
			// list or totals; its critical pending issue blocks finalization
			continue
		}
		out := estimateGroup(g, override)
		result.Groups = append(result.Groups, out)
		totalArea = totalArea.Add(decimal.NewFromFloat(out.TotalAreaM2))
		totalCost = totalCost.Add(decimal.NewFromFloat(out.MaterialCost))
		totalSheets += out.EstimatedSheets
	}

	result.Pending = pending.issues
	result.Totals = internal.EstimationTotals{
		TotalAreaM2:  totalArea.Round(4).InexactFloat64(),
		TotalSheets:  totalSheets,
		MaterialCost: totalCost.Round(2).InexactFloat64(),
	}

	result.CanFinalize = true
	for _, issue := range result.Pending {
		if issue.Critical {
			result.CanFinalize = false
			break
		}
	}

	return result
}

type resolvedItem struct {
	item   internal.NormalizedItem
	audit  internal.ItemClassification
	reason string
}

// resolveItem re-classifies and re-routes one item, applies the conflict
// checks and walks the routing cascade to a terminal decision.
func (e *Estimator) resolveItem(item internal.NormalizedItem, pending *pendingSet) resolvedItem {
	classification := ClassifyMaterial(item.RawMaterial, item.Description, item.PartCode)
	routing := e.router.Route(item.Process)

	// prefer re-derived material fields when non-null
	if classification.Name != nil {
		item.MaterialName = classification.Name
	}
	if classification.ThicknessMM != nil {
		item.ThicknessMM = classification.ThicknessMM
	}
	if classification.RawCode != nil {
		item.RawMaterialCode = classification.RawCode
	}
	item.MaterialKind = classification.Kind

	audit := internal.ItemClassification{
		RowIndex:           item.RowIndex,
		ProcessCategory:    routing.Category,
		ProcessConfidence:  routing.Confidence,
		MaterialKind:       classification.Kind,
		MaterialConfidence: classification.Confidence,
		FinalCategory:      routing.Category,
	}

	conflict := func(label, message string) {
		audit.Conflict = util.StringPtr(label)
		pending.add(internal.PendingIssue{
			Code:     internal.PendingProcessMaterialConflict,
			Message:  message,
			RowIndex: util.IntPtr(item.RowIndex),
			Critical: true,
		})
	}

	if routing.Category == internal.CategorySheet {
		switch classification.Kind {
		case internal.MaterialTubeProfile:
			conflict("process_sheet_material_tube",
				fmt.Sprintf("linha %d: processo de chapa sobre material de tubo/perfil", item.RowIndex))
			audit.FinalCategory = internal.CategoryTube
		case internal.MaterialNonMetal:
			conflict("process_sheet_material_non_metal",
				fmt.Sprintf("linha %d: processo de chapa sobre material nao metalico", item.RowIndex))
			audit.FinalCategory = internal.CategoryOther
		case internal.MaterialUnknown:
			conflict("process_sheet_material_unknown",
				fmt.Sprintf("linha %d: processo de chapa sobre material nao classificado", item.RowIndex))
			// stays sheet; the missing-data checks below decide
		}
	}

	decision, reason := e.routeDecision(item, classification, audit.FinalCategory, pending)
	audit.Decision = decision
	return resolvedItem{item: item, audit: audit, reason: reason}
}

// routeDecision walks the category cascade. reason is empty only for
// included (sheet_area) items.
func (e *Estimator) routeDecision(item internal.NormalizedItem, classification internal.MaterialClassification, category internal.ProcessCategory, pending *pendingSet) (internal.RouteDecision, string) {
	row := util.IntPtr(item.RowIndex)

	switch category {
	case internal.CategoryPurchase:
		pending.add(internal.PendingIssue{
			Code:     internal.PendingPurchaseItemNoCost,
			Message:  fmt.Sprintf("linha %d: item de compra sem custeio", item.RowIndex),
			RowIndex: row,
		})
		return internal.DecisionPurchaseExcluded, "item_compra"
	case internal.CategoryTube:
		pending.add(internal.PendingIssue{
			Code:     internal.PendingTubeNotImplemented,
			Message:  fmt.Sprintf("linha %d: custeio de tubo/perfil nao implementado", item.RowIndex),
			RowIndex: row,
			Critical: true,
		})
		return internal.DecisionTubePending, "item_tubo_sem_motor"
	case internal.CategorySheet:
		// fall through to the sheet checks below
	default:
		return internal.DecisionOtherExcluded, "categoria_fora_chapa"
	}

	if classification.Kind != internal.MaterialSheetMetal {
		pending.add(internal.PendingIssue{
			Code:     internal.PendingMissingMaterial,
			Message:  fmt.Sprintf("linha %d: material nao classificado como chapa", item.RowIndex),
			RowIndex: row,
			Critical: true,
		})
		return internal.DecisionSheetMissingData, "material_nao_classificado_como_chapa"
	}
	if item.BlankXMM == nil || item.BlankYMM == nil || *item.BlankXMM <= 0 || *item.BlankYMM <= 0 {
		pending.add(internal.PendingIssue{
			Code:     internal.PendingMissingXY,
			Message:  fmt.Sprintf("linha %d: blank sem dimensoes X/Y", item.RowIndex),
			RowIndex: row,
			Critical: true,
		})
		return internal.DecisionSheetMissingData, "sem_XY"
	}
	if item.MaterialName == nil || *item.MaterialName == internal.MaterialOutro {
		pending.add(internal.PendingIssue{
			Code:     internal.PendingMissingMaterial,
			Message:  fmt.Sprintf("linha %d: material sem nome normalizado", item.RowIndex),
			RowIndex: row,
			Critical: true,
		})
		return internal.DecisionSheetMissingData, "sem_material_normalizado"
	}
	if item.ThicknessMM == nil {
		pending.add(internal.PendingIssue{
			Code:     internal.PendingMissingThickness,
			Message:  fmt.Sprintf("linha %d: espessura nao identificada", item.RowIndex),
			RowIndex: row,
			Critical: true,
		})
		return internal.DecisionSheetMissingData, "sem_espessura"
	}
	if item.Qty <= 0 {
		// flagged but not blocking: quantity gaps are common on draft OPs
		// and every other missing-data cause already gates finalization
		pending.add(internal.PendingIssue{
			Code:     internal.PendingInvalidQty,
			Message:  fmt.Sprintf("linha %d: quantidade invalida", item.RowIndex),
			RowIndex: row,
		})
		return internal.DecisionSheetMissingData, "quantidade_invalida"
	}

	return internal.DecisionSheetArea, ""
}

// estimateGroup resolves scrap/efficiency and computes the sheet count and
// cost for one fully specified group.
func estimateGroup(g *group, override *internal.EstimationOverride) internal.EstimationGroup {
	spec := *g.spec

	scrap := spec.DefaultScrap
	efficiency := spec.DefaultEfficiency
	if override != nil {
		if override.Scrap != nil {
			scrap = *override.Scrap
		}
		if override.Efficiency != nil {
			efficiency = *override.Efficiency
		}
	}
	scrap = clampFraction(scrap, 0, maxScrap)
	efficiency = clampFraction(efficiency, minEfficiency, 1)

	sheetArea := spec.WidthMM * spec.HeightMM
	usable := sheetArea * efficiency
	if usable < 1 {
		usable = 1
	}
	sheets := int(math.Ceil(g.totalArea * (1 + scrap) / usable))

	cost := decimal.NewFromFloat(spec.CostPerSheet).Mul(decimal.NewFromInt(int64(sheets)))
	areaM2 := decimal.NewFromFloat(g.totalArea / 1e6)

	return internal.EstimationGroup{
		Key:             g.key,
		MaterialName:    g.name,
		ThicknessMM:     g.thickness,
		ItemCount:       g.itemCount,
		TotalQty:        g.totalQty,
		TotalAreaMM2:    g.totalArea,
		TotalAreaM2:     areaM2.Round(4).InexactFloat64(),
		SpecID:          spec.ID,
		SheetWidthMM:    spec.WidthMM,
		SheetHeightMM:   spec.HeightMM,
		CostPerSheet:    spec.CostPerSheet,
		Scrap:           scrap,
		Efficiency:      efficiency,
		EstimatedSheets: sheets,
		MaterialCost:    cost.Round(2).InexactFloat64(),
	}
}

// clampFraction interprets values above 1 as percentages before clamping.
func clampFraction(v, lo, hi float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func groupKey(name internal.MaterialName, thicknessMM float64) string {
	return fmt.Sprintf("%s|%.2f", name, thicknessMM)
}
