package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"opcost/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sheet_specs (
  id TEXT PRIMARY KEY,
  materialName TEXT NOT NULL,
  thicknessMm REAL NOT NULL,
  widthMm REAL NOT NULL,
  heightMm REAL NOT NULL,
  costPerSheet REAL NOT NULL,
  defaultScrap REAL NOT NULL DEFAULT 0,
  defaultEfficiency REAL NOT NULL DEFAULT 0,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sheet_specs_material ON sheet_specs(materialName, thicknessMm);

CREATE TABLE IF NOT EXISTS process_rules (
  id TEXT PRIMARY KEY,
  pattern TEXT NOT NULL,
  category TEXT NOT NULL,
  confidence REAL NOT NULL DEFAULT 0.7,
  priority INTEGER NOT NULL DEFAULT 50,
  active INTEGER NOT NULL DEFAULT 1,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS op_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL UNIQUE,
  filename TEXT NOT NULL,
  sheetName TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'registered',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS op_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fileId INTEGER NOT NULL,
  rowIndex INTEGER NOT NULL,
  partCode TEXT,
  description TEXT,
  qty REAL NOT NULL,
  blankXMm REAL,
  blankYMm REAL,
  process TEXT,
  rawMaterial TEXT,
  materialKind TEXT NOT NULL,
  materialName TEXT,
  thicknessMm REAL,
  missingJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(fileId, rowIndex),
  FOREIGN KEY(fileId) REFERENCES op_files(id)
);

CREATE TABLE IF NOT EXISTS estimations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fileId INTEGER NOT NULL,
  resultJson TEXT NOT NULL,
  canFinalize INTEGER NOT NULL,
  totalAreaM2 REAL NOT NULL,
  totalSheets INTEGER NOT NULL,
  materialCost REAL NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(fileId) REFERENCES op_files(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  fileId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(fileId) REFERENCES op_files(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertSpecs(specs []internal.SheetSpec) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO sheet_specs (id, materialName, thicknessMm, widthMm, heightMm, costPerSheet, defaultScrap, defaultEfficiency, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  materialName=excluded.materialName,
  thicknessMm=excluded.thicknessMm,
  widthMm=excluded.widthMm,
  heightMm=excluded.heightMm,
  costPerSheet=excluded.costPerSheet,
  defaultScrap=excluded.defaultScrap,
  defaultEfficiency=excluded.defaultEfficiency,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range specs {
		if _, err := stmt.Exec(s.ID, string(s.MaterialName), s.ThicknessMM, s.WidthMM, s.HeightMM, s.CostPerSheet, s.DefaultScrap, s.DefaultEfficiency); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListSpecs() ([]internal.SheetSpec, error) {
	rows, err := d.conn.Query(`
SELECT id, materialName, thicknessMm, widthMm, heightMm, costPerSheet, defaultScrap, defaultEfficiency
FROM sheet_specs ORDER BY materialName, thicknessMm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SheetSpec
	for rows.Next() {
		var s internal.SheetSpec
		var material string
		if err := rows.Scan(&s.ID, &material, &s.ThicknessMM, &s.WidthMM, &s.HeightMM, &s.CostPerSheet, &s.DefaultScrap, &s.DefaultEfficiency); err != nil {
			return nil, err
		}
		s.MaterialName = internal.MaterialName(material)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) UpsertRules(rules []internal.ProcessRule) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO process_rules (id, pattern, category, confidence, priority, active, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  pattern=excluded.pattern,
  category=excluded.category,
  confidence=excluded.confidence,
  priority=excluded.priority,
  active=excluded.active,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rules {
		active := 0
		if r.Active {
			active = 1
		}
		if _, err := stmt.Exec(r.ID, r.Pattern, string(r.Category), r.Confidence, r.Priority, active); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListRules() ([]internal.ProcessRule, error) {
	rows, err := d.conn.Query(`SELECT id, pattern, category, confidence, priority, active FROM process_rules ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ProcessRule
	for rows.Next() {
		var r internal.ProcessRule
		var category string
		var active int
		if err := rows.Scan(&r.ID, &r.Pattern, &category, &r.Confidence, &r.Priority, &active); err != nil {
			return nil, err
		}
		r.Category = internal.ProcessCategory(category)
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UpsertOpFile(path, filename, sheetName, hash, status string) (internal.OpFileRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO op_files (path, filename, sheetName, hash, status)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  filename=excluded.filename,
  sheetName=excluded.sheetName,
  hash=excluded.hash,
  updatedAt=CURRENT_TIMESTAMP
`, path, filename, sheetName, hash, status)
	if err != nil {
		return internal.OpFileRow{}, err
	}

	row, err := d.GetOpFileByPath(path)
	if err != nil {
		return internal.OpFileRow{}, err
	}
	if row == nil {
		return internal.OpFileRow{}, errors.New("failed to upsert op file")
	}
	return *row, nil
}

func (d *DB) GetOpFileByPath(path string) (*internal.OpFileRow, error) {
	var row internal.OpFileRow
	err := d.conn.QueryRow(`
SELECT id, path, filename, COALESCE(sheetName, ''), hash, status, createdAt
FROM op_files WHERE path = ?
`, path).Scan(&row.ID, &row.Path, &row.Filename, &row.SheetName, &row.Hash, &row.Status, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetOpFileByID(id int) (*internal.OpFileRow, error) {
	var row internal.OpFileRow
	err := d.conn.QueryRow(`
SELECT id, path, filename, COALESCE(sheetName, ''), hash, status, createdAt
FROM op_files WHERE id = ?
`, id).Scan(&row.ID, &row.Path, &row.Filename, &row.SheetName, &row.Hash, &row.Status, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListOpFilesByStatus(status string, limit int) ([]internal.OpFileRow, error) {
	rows, err := d.conn.Query(`
SELECT id, path, filename, COALESCE(sheetName, ''), hash, status, createdAt
FROM op_files WHERE status = ? ORDER BY createdAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.OpFileRow
	for rows.Next() {
		var row internal.OpFileRow
		if err := rows.Scan(&row.ID, &row.Path, &row.Filename, &row.SheetName, &row.Hash, &row.Status, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateOpFileStatus(fileID int, status string) error {
	_, err := d.conn.Exec(`UPDATE op_files SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, fileID)
	return err
}

// ClearFileProcessing drops prior items and estimations so a file can be
// reprocessed from scratch.
func (d *DB) ClearFileProcessing(fileID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM estimations WHERE fileId = ?`, fileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM op_items WHERE fileId = ?`, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) InsertItems(fileID int, items []internal.NormalizedItem) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO op_items (fileId, rowIndex, partCode, description, qty, blankXMm, blankYMm, process, rawMaterial, materialKind, materialName, thicknessMm, missingJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		missingJSON, _ := json.Marshal(item.Missing)
		var name *string
		if item.MaterialName != nil {
			s := string(*item.MaterialName)
			name = &s
		}
		if _, err := stmt.Exec(
			fileID, item.RowIndex, item.PartCode, item.Description, item.Qty,
			item.BlankXMM, item.BlankYMM, item.Process, item.RawMaterial,
			string(item.MaterialKind), name, item.ThicknessMM, string(missingJSON),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) InsertEstimation(fileID int, result internal.EstimationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	canFinalize := 0
	if result.CanFinalize {
		canFinalize = 1
	}
	_, err = d.conn.Exec(`
INSERT INTO estimations (fileId, resultJson, canFinalize, totalAreaM2, totalSheets, materialCost)
VALUES (?, ?, ?, ?, ?, ?)
`, fileID, string(resultJSON), canFinalize, result.Totals.TotalAreaM2, result.Totals.TotalSheets, result.Totals.MaterialCost)
	return err
}

// GetLatestEstimation returns the most recent estimate for a file, or nil.
func (d *DB) GetLatestEstimation(fileID int) (*internal.EstimationResult, error) {
	var resultJSON string
	err := d.conn.QueryRow(`
SELECT resultJson FROM estimations WHERE fileId = ? ORDER BY id DESC LIMIT 1
`, fileID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result internal.EstimationResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (d *DB) InsertRun(traceID string, fileID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, fileId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, fileID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
