package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"opcost/internal"
)

// GridFromFile reads an OP export into a raw grid, dispatching on extension.
// Returns the grid and a label for the sheet/table that was read.
func GridFromFile(path string) (internal.RawGrid, string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls":
		return GridFromXLSX(blob, "")
	case ".html", ".htm":
		grid, err := GridFromHTML(string(blob))
		return grid, "html", err
	case ".pdf":
		grid, err := GridFromPDF(blob)
		return grid, "pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported input file: %s", path)
	}
}

// GridFromXLSX reads one worksheet into a grid. An empty sheetName selects
// the first sheet.
func GridFromXLSX(content []byte, sheetName string) (internal.RawGrid, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]
	if sheetName != "" {
		found := false
		for _, s := range sheets {
			if strings.EqualFold(s, sheetName) {
				sheet = s
				found = true
				break
			}
		}
		if !found {
			return nil, "", fmt.Errorf("sheet not found: %s", sheetName)
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", err
	}

	grid := make(internal.RawGrid, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.TrimSpace(c)
		}
		grid = append(grid, cells)
	}
	return grid, sheet, nil
}

// GridFromHTML extracts the largest <table> in the document as a grid.
func GridFromHTML(html string) (internal.RawGrid, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var best internal.RawGrid
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		grid := internal.RawGrid{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			grid = append(grid, cells)
		})
		if len(grid) > len(best) {
			best = grid
		}
	})

	if len(best) == 0 {
		return nil, fmt.Errorf("no table found in html")
	}
	return best, nil
}

var reCellGap = regexp.MustCompile(`\s{2,}|\t`)

// GridFromPDF renders each text line as a row, splitting cells on runs of
// two or more spaces. Crude, but OP exports printed to PDF keep their
// columnar gaps.
func GridFromPDF(content []byte) (internal.RawGrid, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	grid := internal.RawGrid{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			cells := reCellGap.Split(line, -1)
			for j := range cells {
				cells[j] = strings.TrimSpace(cells[j])
			}
			grid = append(grid, cells)
		}
	}
	return grid, nil
}

// GridFromObjectRows flattens columnar object rows to a grid with a
// deterministic column order: the union of all observed keys, first seen
// first (ties within one row broken alphabetically, since Go maps carry no
// order of their own). The key row is prepended so header detection sees
// the labels.
func GridFromObjectRows(rows []map[string]any) internal.RawGrid {
	if len(rows) == 0 {
		return internal.RawGrid{}
	}

	ordered := []string{}
	seen := map[string]struct{}{}
	for _, row := range rows {
		rowKeys := make([]string, 0, len(row))
		for key := range row {
			rowKeys = append(rowKeys, key)
		}
		sort.Strings(rowKeys)
		for _, key := range rowKeys {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				ordered = append(ordered, key)
			}
		}
	}

	grid := make(internal.RawGrid, 0, len(rows)+1)
	grid = append(grid, ordered)
	for _, row := range rows {
		cells := make([]string, len(ordered))
		for i, key := range ordered {
			cells[i] = formatCell(row[key])
		}
		grid = append(grid, cells)
	}
	return grid
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
