package catalog

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"opcost/internal"
	"opcost/internal/util"
)

// specColumns maps price-list header labels to sheet-spec fields. The
// importer expects the shop's stock price list layout: one row per
// purchasable sheet.
var specColumns = map[string][]string{
	"id":         {"ID", "CODIGO", "COD"},
	"material":   {"MATERIAL", "LIGA"},
	"thickness":  {"ESPESSURA", "ESP"},
	"width":      {"LARGURA", "LARG"},
	"height":     {"COMPRIMENTO", "COMP", "ALTURA"},
	"cost":       {"CUSTO", "PRECO", "VALOR"},
	"scrap":      {"SUCATA", "PERDA"},
	"efficiency": {"APROVEITAMENTO", "EFICIENCIA"},
}

// ImportSpecsFromXLSX reads a stock price list into sheet specs. The first
// row is the header; rows without material, thickness, dimensions or cost
// are skipped.
func ImportSpecsFromXLSX(content []byte) ([]internal.SheetSpec, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("price list has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("price list has no data rows")
	}

	cols := map[string]int{}
	for i, cell := range rows[0] {
		norm := util.NormalizeHeaderCell(cell)
		for field, labels := range specColumns {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, label := range labels {
				if norm == label || strings.Contains(norm, label) {
					cols[field] = i
					break
				}
			}
		}
	}
	for _, required := range []string{"material", "thickness", "width", "height", "cost"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("price list missing column: %s", required)
		}
	}

	specs := make([]internal.SheetSpec, 0, len(rows)-1)
	for _, row := range rows[1:] {
		pick := func(field string) string {
			idx, ok := cols[field]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		material := util.NormalizeText(pick("material"))
		thickness := util.ParsePositive(pick("thickness"))
		width := util.ParsePositive(pick("width"))
		height := util.ParsePositive(pick("height"))
		cost := util.ParsePositive(pick("cost"))
		if material == "" || thickness == nil || width == nil || height == nil || cost == nil {
			continue
		}

		id := pick("id")
		if id == "" {
			id = fmt.Sprintf("%s-%g", material, *thickness)
		}

		spec := internal.SheetSpec{
			ID:           id,
			MaterialName: internal.MaterialName(material),
			ThicknessMM:  *thickness,
			WidthMM:      *width,
			HeightMM:     *height,
			CostPerSheet: *cost,
		}
		if scrap := util.ParseNumber(pick("scrap")); scrap != nil && *scrap >= 0 {
			spec.DefaultScrap = *scrap
		}
		if eff := util.ParsePositive(pick("efficiency")); eff != nil {
			spec.DefaultEfficiency = *eff
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("price list yielded no usable specs")
	}
	return specs, nil
}
