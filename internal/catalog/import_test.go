package catalog

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"opcost/internal"
)

func mkPriceList(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestImportSpecsFromXLSX(t *testing.T) {
	blob := mkPriceList([][]any{
		{"Código", "Material", "Espessura", "Largura", "Comprimento", "Custo", "Sucata", "Aproveitamento"},
		{"304-12", "#304", "1,2", "1000", "2000", "512,90", "0,1", "0,8"},
		{"", "GALV", "0,9", "1200", "2400", "300", "", ""},
		{"bad", "", "1", "1000", "2000", "100", "", ""},
	})

	specs, err := ImportSpecsFromXLSX(blob)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len=%d", len(specs))
	}

	first := specs[0]
	if first.ID != "304-12" || first.MaterialName != internal.MaterialInox304 {
		t.Fatalf("first: %+v", first)
	}
	if first.ThicknessMM != 1.2 || first.CostPerSheet != 512.90 {
		t.Fatalf("numbers: %+v", first)
	}
	if first.DefaultScrap != 0.1 || first.DefaultEfficiency != 0.8 {
		t.Fatalf("defaults: %+v", first)
	}

	second := specs[1]
	if second.ID != "GALV-0.9" {
		t.Fatalf("generated id: %q", second.ID)
	}
	if second.DefaultScrap != 0 || second.DefaultEfficiency != 0 {
		t.Fatalf("defaults should stay zero: %+v", second)
	}
}

func TestImportSpecsMissingColumn(t *testing.T) {
	blob := mkPriceList([][]any{
		{"Material", "Espessura", "Largura"},
		{"#304", "1,2", "1000"},
	})
	if _, err := ImportSpecsFromXLSX(blob); err == nil {
		t.Fatalf("want error for missing columns")
	}
}
