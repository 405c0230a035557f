package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"opcost/internal"
)

// ExportEstimationToXLSX writes the estimate as a workbook: one sheet with
// per-item decisions, one with groups and totals, one with pending issues.
func ExportEstimationToXLSX(result internal.EstimationResult, outputPath string) error {
	f := excelize.NewFile()
	itemsSheet := f.GetSheetName(0)
	f.SetSheetName(itemsSheet, "itens")
	itemsSheet = "itens"

	itemHeaders := []string{
		"linha", "codigo", "descricao", "qtd", "x_mm", "y_mm",
		"processo", "material", "material_normalizado", "espessura_mm",
		"categoria_processo", "conf_processo", "tipo_material", "conf_material",
		"categoria_final", "decisao", "conflito", "motivo_exclusao",
	}
	writeHeaderRow(f, itemsSheet, itemHeaders)

	excludedReason := map[int]string{}
	for _, ex := range result.Excluded {
		excludedReason[ex.Item.RowIndex] = ex.Reason
	}
	itemByRow := map[int]internal.NormalizedItem{}
	for _, item := range result.Included {
		itemByRow[item.RowIndex] = item
	}
	for _, ex := range result.Excluded {
		itemByRow[ex.Item.RowIndex] = ex.Item
	}

	for i, c := range result.Classifications {
		r := i + 2
		item := itemByRow[c.RowIndex]
		set := cellSetter(f, itemsSheet, r)
		set(1, c.RowIndex)
		set(2, item.PartCode)
		set(3, item.Description)
		set(4, item.Qty)
		set(5, derefFloat(item.BlankXMM))
		set(6, derefFloat(item.BlankYMM))
		set(7, item.Process)
		set(8, item.RawMaterial)
		set(9, derefName(item.MaterialName))
		set(10, derefFloat(item.ThicknessMM))
		set(11, string(c.ProcessCategory))
		set(12, c.ProcessConfidence)
		set(13, string(c.MaterialKind))
		set(14, c.MaterialConfidence)
		set(15, string(c.FinalCategory))
		set(16, string(c.Decision))
		set(17, derefString(c.Conflict))
		set(18, excludedReason[c.RowIndex])
	}

	groupsSheet := "grupos"
	if _, err := f.NewSheet(groupsSheet); err != nil {
		return err
	}
	groupHeaders := []string{
		"grupo", "material", "espessura_mm", "itens", "qtd_total", "area_m2",
		"chapa", "chapa_largura_mm", "chapa_comprimento_mm", "custo_chapa",
		"sucata", "aproveitamento", "chapas_estimadas", "custo_material",
	}
	writeHeaderRow(f, groupsSheet, groupHeaders)
	for i, g := range result.Groups {
		r := i + 2
		set := cellSetter(f, groupsSheet, r)
		set(1, g.Key)
		set(2, string(g.MaterialName))
		set(3, g.ThicknessMM)
		set(4, g.ItemCount)
		set(5, g.TotalQty)
		set(6, g.TotalAreaM2)
		set(7, g.SpecID)
		set(8, g.SheetWidthMM)
		set(9, g.SheetHeightMM)
		set(10, g.CostPerSheet)
		set(11, g.Scrap)
		set(12, g.Efficiency)
		set(13, g.EstimatedSheets)
		set(14, g.MaterialCost)
	}
	totalsRow := len(result.Groups) + 3
	set := cellSetter(f, groupsSheet, totalsRow)
	set(1, "TOTAL")
	set(6, result.Totals.TotalAreaM2)
	set(13, result.Totals.TotalSheets)
	set(14, result.Totals.MaterialCost)
	set = cellSetter(f, groupsSheet, totalsRow+1)
	set(1, "FINALIZAVEL")
	set(2, result.CanFinalize)

	pendingSheet := "pendencias"
	if _, err := f.NewSheet(pendingSheet); err != nil {
		return err
	}
	writeHeaderRow(f, pendingSheet, []string{"codigo", "critica", "linha", "grupo", "mensagem"})
	for i, p := range result.Pending {
		r := i + 2
		set := cellSetter(f, pendingSheet, r)
		set(1, string(p.Code))
		set(2, p.Critical)
		set(3, derefInt(p.RowIndex))
		set(4, derefString(p.GroupKey))
		set(5, p.Message)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func cellSetter(f *excelize.File, sheet string, row int) func(col int, value any) {
	return func(col int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefName(v *internal.MaterialName) string {
	if v == nil {
		return ""
	}
	return string(*v)
}
