package pipeline

import (
	"strings"

	"opcost/internal"
	"opcost/internal/util"
)

// NormalizeOptions carries the header-detection configuration. Zero values
// select the built-in defaults, keeping the pipeline a pure function of its
// inputs plus this struct.
type NormalizeOptions struct {
	Synonyms          map[internal.ColumnRole][]string
	FallbackLayout    internal.HeaderMap
	FallbackHeaderRow int
	ProbeRows         int
}

func (o NormalizeOptions) withDefaults() NormalizeOptions {
	if o.Synonyms == nil {
		o.Synonyms = DefaultSynonyms()
	}
	if o.FallbackLayout == nil {
		o.FallbackLayout = DefaultFallbackLayout()
	}
	if o.ProbeRows <= 0 {
		o.ProbeRows = 50
	}
	return o
}

// NormalizeGrid turns a raw grid into structured OP line items: header
// detection, per-row parsing, a provisional material classification and
// missing-data flags. Fully blank rows are dropped without a trace.
func NormalizeGrid(grid internal.RawGrid, sheetName string, opts NormalizeOptions) internal.OpNormalizationResult {
	opts = opts.withDefaults()

	header, headerRow := detectHeader(grid, opts.Synonyms, opts.FallbackLayout, opts.FallbackHeaderRow, opts.ProbeRows)

	result := internal.OpNormalizationResult{
		SheetName:      sheetName,
		Header:         header,
		HeaderRowIndex: headerRow,
		Items:          []internal.NormalizedItem{},
	}

	for i := headerRow + 1; i < len(grid); i++ {
		result.Summary.TotalRows++
		item, ok := parseRow(grid[i], header, i-headerRow)
		if !ok {
			continue
		}
		result.Items = append(result.Items, item)
		result.Summary.ParsedItems++
		if len(item.Missing) > 0 {
			result.Summary.ItemsWithIssues++
		}
		if item.BlankXMM != nil && item.BlankYMM != nil {
			result.Summary.ItemsWithXY++
		}
		if item.MaterialName != nil && item.ThicknessMM != nil {
			result.Summary.ItemsWithMaterial++
		}
	}

	return result
}

// parseRow builds one NormalizedItem. ok is false for fully blank rows.
func parseRow(row []string, header internal.HeaderMap, rowIndex int) (internal.NormalizedItem, bool) {
	cell := func(role internal.ColumnRole) string {
		idx, ok := header.Col(role)
		if !ok || idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	partCode := cell(internal.RolePartCode)
	description := cell(internal.RoleDescription)
	rawMaterial := cell(internal.RoleRawMaterial)
	process := cell(internal.RoleProcess)

	qtyRead := util.ParseNumber(cell(internal.RoleQty))
	totalQtyRead := util.ParseNumber(cell(internal.RoleTotalQty))
	blankX := util.ParsePositive(cell(internal.RoleBlankX))
	blankY := util.ParsePositive(cell(internal.RoleBlankY))

	blank := partCode == "" && description == "" && rawMaterial == "" && process == "" &&
		qtyRead == nil && totalQtyRead == nil && blankX == nil && blankY == nil
	if blank {
		return internal.NormalizedItem{}, false
	}

	qty := 0.0
	switch {
	case totalQtyRead != nil && *totalQtyRead > 0:
		qty = *totalQtyRead
	case qtyRead != nil && *qtyRead > 0:
		qty = *qtyRead
	}

	classification := ClassifyMaterial(rawMaterial, description, partCode)

	item := internal.NormalizedItem{
		RowIndex:        rowIndex,
		PartCode:        partCode,
		Description:     description,
		Qty:             qty,
		QtyRead:         qtyRead,
		TotalQtyRead:    totalQtyRead,
		BlankXMM:        blankX,
		BlankYMM:        blankY,
		Process:         process,
		RawMaterial:     rawMaterial,
		RawMaterialCode: classification.RawCode,
		MaterialKind:    classification.Kind,
		MaterialName:    classification.Name,
		ThicknessMM:     classification.ThicknessMM,
		Missing:         []internal.MissingCode{},
	}

	if item.Qty <= 0 {
		item.Missing = append(item.Missing, internal.MissingQty)
	}
	if blankX == nil {
		item.Missing = append(item.Missing, internal.MissingX)
	}
	if blankY == nil {
		item.Missing = append(item.Missing, internal.MissingY)
	}
	if rawMaterial == "" || classification.Kind == internal.MaterialUnknown {
		item.Missing = append(item.Missing, internal.MissingMaterial)
	}
	if classification.ThicknessMM == nil {
		item.Missing = append(item.Missing, internal.MissingThickness)
	}

	return item, true
}
