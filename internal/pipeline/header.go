package pipeline

import (
	"encoding/json"
	"os"
	"strings"

	"opcost/internal"
	"opcost/internal/util"
)

// DefaultSynonyms maps each column role to the header labels seen across the
// shop's planning exports. Labels are matched after NormalizeHeaderCell, so
// accents and punctuation are irrelevant here.
func DefaultSynonyms() map[internal.ColumnRole][]string {
	return map[internal.ColumnRole][]string{
		internal.RoleRowNumber:   {"ITEM", "N", "NO", "NUM", "POS", "POSICAO", "SEQ"},
		internal.RoleQty:         {"QTD", "QTDE", "QUANT", "QUANTIDADE", "QTY"},
		internal.RoleTotalQty:    {"QTD TOTAL", "QTDE TOTAL", "QUANTIDADE TOTAL", "TOTAL"},
		internal.RoleBlankX:      {"X", "LARG", "LARGURA", "BLANK X", "DIM X", "MEDIDA X"},
		internal.RoleBlankY:      {"Y", "COMP", "COMPRIMENTO", "ALTURA", "BLANK Y", "DIM Y", "MEDIDA Y"},
		internal.RoleRawMaterial: {"MATERIAL", "MATERIA PRIMA", "MP", "MAT PRIMA"},
		internal.RoleDescription: {"DESCRICAO", "DENOMINACAO", "PECA", "DESCRIPTION"},
		internal.RolePartCode:    {"CODIGO", "COD", "DESENHO", "CODIGO PECA", "PART", "CODE"},
		internal.RoleProcess:     {"PROCESSO", "OPERACAO", "PROC", "ROTEIRO", "FABRICACAO"},
	}
}

// DefaultFallbackLayout is used when no probed row resolves any role: the
// nine roles mapped positionally onto the first nine columns.
func DefaultFallbackLayout() internal.HeaderMap {
	return internal.HeaderMap{
		internal.RoleRowNumber:   0,
		internal.RoleQty:         1,
		internal.RoleTotalQty:    2,
		internal.RoleBlankX:      3,
		internal.RoleBlankY:      4,
		internal.RoleRawMaterial: 5,
		internal.RoleDescription: 6,
		internal.RolePartCode:    7,
		internal.RoleProcess:     8,
	}
}

// LoadSynonyms merges role synonym overrides from a JSON file
// ({"qty": ["QUANTIDADE PECAS"], ...}) over the defaults.
func LoadSynonyms(path string) (map[internal.ColumnRole][]string, error) {
	out := DefaultSynonyms()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides map[internal.ColumnRole][]string
	if err := json.Unmarshal(blob, &overrides); err != nil {
		return nil, err
	}
	for role, labels := range overrides {
		out[role] = labels
	}
	return out, nil
}

// detectHeader probes at most probeRows rows and keeps the first row with the
// strictly highest role count. Rows that resolve nothing leave the sentinel
// untouched; if every row does, the fallback layout and row apply.
func detectHeader(grid internal.RawGrid, syn map[internal.ColumnRole][]string, fallback internal.HeaderMap, fallbackRow, probeRows int) (internal.HeaderMap, int) {
	if probeRows <= 0 {
		probeRows = 50
	}
	limit := len(grid)
	if limit > probeRows {
		limit = probeRows
	}

	bestScore := 0
	bestRow := -1
	var bestMap internal.HeaderMap

	for i := 0; i < limit; i++ {
		hm := mapRowRoles(grid[i], syn)
		if len(hm) > bestScore {
			bestScore = len(hm)
			bestRow = i
			bestMap = hm
		}
	}

	if bestRow < 0 {
		return fallback, fallbackRow
	}
	return bestMap, bestRow
}

// mapRowRoles resolves roles against one candidate header row. Roles are
// tried in AllColumnRoles order and each column serves at most one role.
func mapRowRoles(row []string, syn map[internal.ColumnRole][]string) internal.HeaderMap {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = util.NormalizeHeaderCell(c)
	}

	hm := internal.HeaderMap{}
	claimed := map[int]bool{}
	for _, role := range internal.AllColumnRoles {
		idx := findRoleColumn(cells, claimed, syn[role])
		if idx >= 0 {
			hm[role] = idx
			claimed[idx] = true
		}
	}
	return hm
}

func findRoleColumn(cells []string, claimed map[int]bool, labels []string) int {
	// exact token pass first, substring pass only if nothing matched
	for i, cell := range cells {
		if claimed[i] || cell == "" {
			continue
		}
		if matchExact(cell, labels) {
			return i
		}
	}
	for i, cell := range cells {
		if claimed[i] || cell == "" {
			continue
		}
		if matchSubstring(cell, labels) {
			return i
		}
	}
	return -1
}

func matchExact(cell string, labels []string) bool {
	tokens := strings.Fields(cell)
	for _, label := range labels {
		norm := util.NormalizeHeaderCell(label)
		if norm == "" {
			continue
		}
		if cell == norm {
			return true
		}
		for _, tok := range tokens {
			if tok == norm {
				return true
			}
		}
	}
	return false
}

func matchSubstring(cell string, labels []string) bool {
	for _, label := range labels {
		norm := util.NormalizeHeaderCell(label)
		if len(norm) >= 4 && strings.Contains(cell, norm) {
			return true
		}
	}
	return false
}
