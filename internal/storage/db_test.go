package storage

import (
	"path/filepath"
	"testing"

	"opcost/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "opcost.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSpecsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	specs := []internal.SheetSpec{
		{ID: "304-1.2", MaterialName: internal.MaterialInox304, ThicknessMM: 1.2, WidthMM: 1000, HeightMM: 2000, CostPerSheet: 500, DefaultScrap: 0.1, DefaultEfficiency: 0.8},
		{ID: "galv-0.9", MaterialName: internal.MaterialGalv, ThicknessMM: 0.9, WidthMM: 1200, HeightMM: 2400, CostPerSheet: 300},
	}
	if err := db.UpsertSpecs(specs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.ListSpecs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}

	// upsert overwrites by id
	specs[0].CostPerSheet = 550
	if err := db.UpsertSpecs(specs[:1]); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, _ = db.ListSpecs()
	if len(got) != 2 {
		t.Fatalf("len after upsert=%d", len(got))
	}
	for _, s := range got {
		if s.ID == "304-1.2" && s.CostPerSheet != 550 {
			t.Fatalf("not updated: %+v", s)
		}
	}
}

func TestRulesRoundTrip(t *testing.T) {
	db := openTestDB(t)

	rules := []internal.ProcessRule{
		{ID: "cut", Pattern: "CORTE", Category: internal.CategorySheet, Confidence: 0.9, Priority: 80, Active: true},
		{ID: "buy", Pattern: "COMPRA", Category: internal.CategoryPurchase, Confidence: 0.8, Priority: 60, Active: false},
	}
	if err := db.UpsertRules(rules); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.ListRules()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].ID != "cut" {
		t.Fatalf("priority order: %+v", got[0])
	}
	if got[1].Active {
		t.Fatalf("active flag lost: %+v", got[1])
	}
}

func TestOpFileLifecycle(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertOpFile("/tmp/op-100.xlsx", "op-100.xlsx", "Plan1", "abc123", "registered")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if row.ID == 0 || row.Status != "registered" {
		t.Fatalf("row: %+v", row)
	}

	byPath, err := db.GetOpFileByPath("/tmp/op-100.xlsx")
	if err != nil || byPath == nil || byPath.ID != row.ID {
		t.Fatalf("byPath: %+v err=%v", byPath, err)
	}
	if byPath.SheetName != "Plan1" || byPath.Hash != "abc123" {
		t.Fatalf("fields: %+v", byPath)
	}

	if err := db.UpdateOpFileStatus(row.ID, "processed"); err != nil {
		t.Fatalf("status: %v", err)
	}
	byID, _ := db.GetOpFileByID(row.ID)
	if byID == nil || byID.Status != "processed" {
		t.Fatalf("byID: %+v", byID)
	}

	pending, err := db.ListOpFilesByStatus("registered", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending: %+v", pending)
	}

	missing, err := db.GetOpFileByPath("/tmp/nope.xlsx")
	if err != nil || missing != nil {
		t.Fatalf("missing: %+v err=%v", missing, err)
	}
}

func TestItemsAndEstimationPersistence(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertOpFile("/tmp/op-200.xlsx", "op-200.xlsx", "", "h1", "registered")
	if err != nil {
		t.Fatalf("upsert file: %v", err)
	}

	x := 100.0
	items := []internal.NormalizedItem{
		{RowIndex: 1, PartCode: "PC-1", Qty: 2, BlankXMM: &x, MaterialKind: internal.MaterialSheetMetal, Missing: []internal.MissingCode{}},
	}
	if err := db.InsertItems(row.ID, items); err != nil {
		t.Fatalf("insert items: %v", err)
	}

	result := internal.EstimationResult{
		Classifications: []internal.ItemClassification{{RowIndex: 1, Decision: internal.DecisionSheetArea}},
		Totals:          internal.EstimationTotals{TotalAreaM2: 1.5, TotalSheets: 2, MaterialCost: 1000},
		CanFinalize:     true,
	}
	if err := db.InsertEstimation(row.ID, result); err != nil {
		t.Fatalf("insert estimation: %v", err)
	}

	got, err := db.GetLatestEstimation(row.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if got.Totals != result.Totals || !got.CanFinalize {
		t.Fatalf("round trip: %+v", got)
	}

	if err := db.ClearFileProcessing(row.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = db.GetLatestEstimation(row.ID)
	if got != nil {
		t.Fatalf("estimation survived clear: %+v", got)
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.GetMetadata("catalog.last_sync"); err != nil || v != nil {
		t.Fatalf("empty: %v err=%v", v, err)
	}
	if err := db.SetMetadata("catalog.last_sync", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetMetadata("catalog.last_sync", "2026-02-01T00:00:00Z"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := db.GetMetadata("catalog.last_sync")
	if err != nil || v == nil || *v != "2026-02-01T00:00:00Z" {
		t.Fatalf("get: %v err=%v", v, err)
	}
}
