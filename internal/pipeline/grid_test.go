package pipeline

import "testing"

func TestGridFromHTMLPicksLargestTable(t *testing.T) {
	html := `
<html><body>
<table><tr><td>pequena</td></tr></table>
<table>
  <tr><th>QTD</th><th>DESCRIÇÃO</th></tr>
  <tr><td>2</td><td>SUPORTE</td></tr>
  <tr><td>3</td><td>PAINEL</td></tr>
</table>
</body></html>`

	grid, err := GridFromHTML(html)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("rows: %d", len(grid))
	}
	if grid[1][0] != "2" || grid[1][1] != "SUPORTE" {
		t.Fatalf("row: %v", grid[1])
	}
}

func TestGridFromObjectRows(t *testing.T) {
	rows := []map[string]any{
		{"qtd": 2, "descricao": "SUPORTE"},
		{"qtd": 3, "descricao": "PAINEL", "x": 100.5},
	}

	grid := GridFromObjectRows(rows)
	if len(grid) != 3 {
		t.Fatalf("rows: %d", len(grid))
	}
	// key union in first-seen order, alphabetical within each source row
	if grid[0][0] != "descricao" || grid[0][1] != "qtd" || grid[0][2] != "x" {
		t.Fatalf("header: %v", grid[0])
	}
	if grid[1][1] != "2" || grid[1][2] != "" {
		t.Fatalf("row1: %v", grid[1])
	}
	if grid[2][0] != "PAINEL" || grid[2][2] != "100.5" {
		t.Fatalf("row2: %v", grid[2])
	}
}

func TestGridFromObjectRowsEmpty(t *testing.T) {
	if grid := GridFromObjectRows(nil); len(grid) != 0 {
		t.Fatalf("grid: %v", grid)
	}
}
