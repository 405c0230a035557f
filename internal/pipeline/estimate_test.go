package pipeline

import (
	"testing"

	"opcost/internal"
	"opcost/internal/util"
)

func testSpecs() []internal.SheetSpec {
	return []internal.SheetSpec{
		{
			ID:                "304-1.2",
			MaterialName:      internal.MaterialInox304,
			ThicknessMM:       1.2,
			WidthMM:           1000,
			HeightMM:          2000,
			CostPerSheet:      500,
			DefaultScrap:      0.1,
			DefaultEfficiency: 0.8,
		},
	}
}

func sheetItem(row int, qty, x, y float64) internal.NormalizedItem {
	return internal.NormalizedItem{
		RowIndex:    row,
		PartCode:    "PC-001",
		Description: "SUPORTE",
		Qty:         qty,
		BlankXMM:    util.FloatPtr(x),
		BlankYMM:    util.FloatPtr(y),
		Process:     "CORTE LASER",
		RawMaterial: "INOX 304 1,2",
		Missing:     []internal.MissingCode{},
	}
}

func TestEstimateSheetArithmetic(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	// 4 * 1000 * 500 = 2e6 mm²; with 10% scrap over 1.6e6 usable -> ceil(1.375) = 2
	result := e.Estimate([]internal.NormalizedItem{sheetItem(1, 4, 1000, 500)}, nil)

	if len(result.Groups) != 1 {
		t.Fatalf("groups: %d", len(result.Groups))
	}
	g := result.Groups[0]
	if g.EstimatedSheets != 2 {
		t.Fatalf("sheets: %d", g.EstimatedSheets)
	}
	if g.MaterialCost != 1000 {
		t.Fatalf("cost: %v", g.MaterialCost)
	}
	if g.TotalAreaM2 != 2 {
		t.Fatalf("area m2: %v", g.TotalAreaM2)
	}
	if result.Totals.TotalSheets != 2 || result.Totals.MaterialCost != 1000 {
		t.Fatalf("totals: %+v", result.Totals)
	}
	if !result.CanFinalize {
		t.Fatalf("pending: %+v", result.Pending)
	}
}

func TestEstimateGroupsByMaterialAndThickness(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	items := []internal.NormalizedItem{
		sheetItem(1, 2, 100, 200),
		sheetItem(2, 3, 300, 400),
	}
	result := e.Estimate(items, nil)

	if len(result.Groups) != 1 {
		t.Fatalf("groups: %d", len(result.Groups))
	}
	g := result.Groups[0]
	if g.ItemCount != 2 || g.TotalQty != 5 {
		t.Fatalf("group: %+v", g)
	}
	want := 2.0*100*200 + 3.0*300*400
	if g.TotalAreaMM2 != want {
		t.Fatalf("area: got %v want %v", g.TotalAreaMM2, want)
	}
}

func TestEstimateConflictSheetProcessTubeMaterial(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	item := sheetItem(1, 2, 100, 200)
	item.RawMaterial = "TUBO 40X40X1.2"
	result := e.Estimate([]internal.NormalizedItem{item}, nil)

	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "item_tubo_sem_motor" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}
	audit := result.Classifications[0]
	if audit.Conflict == nil || *audit.Conflict != "process_sheet_material_tube" {
		t.Fatalf("conflict: %+v", audit)
	}
	if audit.FinalCategory != internal.CategoryTube || audit.Decision != internal.DecisionTubePending {
		t.Fatalf("audit: %+v", audit)
	}
	if !hasPending(result, internal.PendingProcessMaterialConflict) || !hasPending(result, internal.PendingTubeNotImplemented) {
		t.Fatalf("pending: %+v", result.Pending)
	}
	if result.CanFinalize {
		t.Fatalf("critical issues must block finalization")
	}
}

func TestEstimatePurchaseExcludedNonBlocking(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	item := sheetItem(1, 2, 100, 200)
	item.Process = "ITEM COMERCIAL"
	result := e.Estimate([]internal.NormalizedItem{item}, nil)

	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "item_compra" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}
	if !hasPending(result, internal.PendingPurchaseItemNoCost) {
		t.Fatalf("pending: %+v", result.Pending)
	}
	if !result.CanFinalize {
		t.Fatalf("purchase items must not block finalization")
	}
}

func TestEstimateSheetMissingDimensions(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	item := sheetItem(1, 2, 100, 200)
	item.BlankYMM = nil
	result := e.Estimate([]internal.NormalizedItem{item}, nil)

	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "sem_XY" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}
	if result.CanFinalize {
		t.Fatalf("missing dimensions must block finalization")
	}
}

func TestEstimateMissingThicknessAndMaterial(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	noName := sheetItem(1, 2, 100, 200)
	noName.RawMaterial = "BRONZE"
	result := e.Estimate([]internal.NormalizedItem{noName}, nil)
	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "material_nao_classificado_como_chapa" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}

	noThickness := sheetItem(2, 2, 100, 200)
	noThickness.RawMaterial = "INOX 304"
	result = e.Estimate([]internal.NormalizedItem{noThickness}, nil)
	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "sem_espessura" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}
	if result.CanFinalize {
		t.Fatalf("missing thickness must block finalization")
	}
}

func TestEstimateInvalidQtyNonBlocking(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	item := sheetItem(1, 0, 100, 200)
	result := e.Estimate([]internal.NormalizedItem{item}, nil)

	if len(result.Excluded) != 1 || result.Excluded[0].Reason != "quantidade_invalida" {
		t.Fatalf("excluded: %+v", result.Excluded)
	}
	if !hasPending(result, internal.PendingInvalidQty) {
		t.Fatalf("pending: %+v", result.Pending)
	}
	if !result.CanFinalize {
		t.Fatalf("quantity gaps must not block finalization")
	}
	if len(result.Groups) != 0 {
		t.Fatalf("groups: %+v", result.Groups)
	}
}

func TestEstimateMissingSpecBlocksAndDedups(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	a := sheetItem(1, 2, 100, 200)
	a.RawMaterial = "INOX 430 3,0"
	b := sheetItem(2, 1, 150, 150)
	b.RawMaterial = "INOX 430 3,0"
	result := e.Estimate([]internal.NormalizedItem{a, b}, nil)

	if len(result.Included) != 2 {
		t.Fatalf("included: %d", len(result.Included))
	}
	if len(result.Groups) != 0 {
		t.Fatalf("specless group must not be estimated: %+v", result.Groups)
	}

	count := 0
	for _, issue := range result.Pending {
		if issue.Code == internal.PendingMissingSheetSpec {
			count++
			if issue.GroupKey == nil || *issue.GroupKey != "#430|3.00" {
				t.Fatalf("group key: %+v", issue)
			}
			if !issue.Critical {
				t.Fatalf("missing spec must be critical")
			}
		}
	}
	if count != 1 {
		t.Fatalf("missing spec issues: %d", count)
	}
	if result.CanFinalize {
		t.Fatalf("missing spec must block finalization")
	}
	if result.Totals.TotalSheets != 0 || result.Totals.MaterialCost != 0 {
		t.Fatalf("totals: %+v", result.Totals)
	}
}

func TestEstimateOverrides(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)
	items := []internal.NormalizedItem{sheetItem(1, 4, 1000, 500)}

	// scrap 0 and full efficiency: 2e6 / 2e6 = 1 sheet
	result := e.Estimate(items, &internal.EstimationOverride{
		Scrap:      util.FloatPtr(0),
		Efficiency: util.FloatPtr(1),
	})
	if result.Groups[0].EstimatedSheets != 1 {
		t.Fatalf("sheets: %d", result.Groups[0].EstimatedSheets)
	}

	// values above 1 read as percentages
	result = e.Estimate(items, &internal.EstimationOverride{
		Scrap:      util.FloatPtr(10),
		Efficiency: util.FloatPtr(80),
	})
	g := result.Groups[0]
	if g.Scrap != 0.1 || g.Efficiency != 0.8 {
		t.Fatalf("percent override: %+v", g)
	}
	if g.EstimatedSheets != 2 {
		t.Fatalf("sheets: %d", g.EstimatedSheets)
	}
}

func TestEstimateIdempotent(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)
	items := []internal.NormalizedItem{
		sheetItem(1, 4, 1000, 500),
		sheetItem(2, 2, 300, 300),
	}

	first := e.Estimate(items, nil)
	second := e.Estimate(items, nil)
	if first.Totals != second.Totals {
		t.Fatalf("totals drifted: %+v vs %+v", first.Totals, second.Totals)
	}
	if len(first.Groups) != len(second.Groups) || len(first.Pending) != len(second.Pending) {
		t.Fatalf("result drifted")
	}
}

func TestEstimateQtyMonotonic(t *testing.T) {
	e := NewEstimator(testSpecs(), nil)

	base := e.Estimate([]internal.NormalizedItem{sheetItem(1, 4, 1000, 500)}, nil)
	double := e.Estimate([]internal.NormalizedItem{sheetItem(1, 8, 1000, 500)}, nil)
	if double.Totals.TotalSheets < base.Totals.TotalSheets {
		t.Fatalf("sheets decreased: %d -> %d", base.Totals.TotalSheets, double.Totals.TotalSheets)
	}
}

func hasPending(result internal.EstimationResult, code internal.PendingCode) bool {
	for _, issue := range result.Pending {
		if issue.Code == code {
			return true
		}
	}
	return false
}
