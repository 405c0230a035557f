package pipeline

import (
	"testing"

	"opcost/internal"
)

func TestDetectHeaderSkipsPreamble(t *testing.T) {
	grid := internal.RawGrid{
		{"ORDEM DE PRODUCAO 1234"},
		{"Cliente: ACME"},
		{"ITEM", "CÓDIGO", "DESCRIÇÃO", "QTD", "QTD TOTAL", "X", "Y", "MATÉRIA-PRIMA", "PROCESSO"},
		{"1", "PC-001", "SUPORTE", "2", "4", "100", "200", "INOX 304 1,2", "CORTE"},
	}

	hm, row := detectHeader(grid, DefaultSynonyms(), DefaultFallbackLayout(), 0, 50)
	if row != 2 {
		t.Fatalf("header row: got %d", row)
	}

	expect := map[internal.ColumnRole]int{
		internal.RoleRowNumber:   0,
		internal.RolePartCode:    1,
		internal.RoleDescription: 2,
		internal.RoleQty:         3,
		internal.RoleTotalQty:    4,
		internal.RoleBlankX:      5,
		internal.RoleBlankY:      6,
		internal.RoleRawMaterial: 7,
		internal.RoleProcess:     8,
	}
	for role, want := range expect {
		got, ok := hm.Col(role)
		if !ok || got != want {
			t.Fatalf("role %s: got %d ok=%t want %d", role, got, ok, want)
		}
	}
}

func TestDetectHeaderQtdTotalDoesNotStealQtd(t *testing.T) {
	grid := internal.RawGrid{
		{"QTD", "QTD TOTAL", "DESCRIÇÃO"},
	}
	hm, _ := detectHeader(grid, DefaultSynonyms(), DefaultFallbackLayout(), 0, 50)

	if col, ok := hm.Col(internal.RoleQty); !ok || col != 0 {
		t.Fatalf("qty: got %d ok=%t", col, ok)
	}
	if col, ok := hm.Col(internal.RoleTotalQty); !ok || col != 1 {
		t.Fatalf("total qty: got %d ok=%t", col, ok)
	}
}

func TestDetectHeaderFallsBackOnHeaderlessGrid(t *testing.T) {
	grid := internal.RawGrid{
		{"1234", "5678"},
		{"9", "8"},
	}
	hm, row := detectHeader(grid, DefaultSynonyms(), DefaultFallbackLayout(), 0, 50)
	if row != 0 {
		t.Fatalf("fallback row: got %d", row)
	}
	if col, ok := hm.Col(internal.RoleProcess); !ok || col != 8 {
		t.Fatalf("fallback layout not applied: got %d ok=%t", col, ok)
	}
}

func TestDetectHeaderRespectsProbeLimit(t *testing.T) {
	grid := internal.RawGrid{}
	for i := 0; i < 5; i++ {
		grid = append(grid, []string{"zzz"})
	}
	grid = append(grid, []string{"ITEM", "QTD", "DESCRIÇÃO"})

	_, row := detectHeader(grid, DefaultSynonyms(), DefaultFallbackLayout(), 1, 3)
	if row != 1 {
		t.Fatalf("probe limit ignored: got row %d", row)
	}
}
