package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

// defaultScanWindow header area searched for "label: value" cells
var defaultScanWindow = config.ScanWindow{FirstRow: 1, LastRow: 19, FirstCol: 1, LastCol: 7}

// XLSXReader spreadsheet form reader
type XLSXReader struct {
	settings config.FormSettings
}

// NewXLSXReader creates a spreadsheet reader
func NewXLSXReader(settings config.FormSettings) *XLSXReader {
	return &XLSXReader{settings: settings}
}

// sheetGrid formatted cell values of one sheet, addressed 1-based
type sheetGrid struct {
	file  *excelize.File
	sheet string
	rows  [][]string
}

func (g *sheetGrid) cell(row, col int) string {
	if row < 1 || row > len(g.rows) {
		return ""
	}
	r := g.rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return strings.TrimSpace(r[col-1])
}

// raw unformatted value, used for date cells stored as serial numbers
func (g *sheetGrid) raw(ref string) string {
	v, err := g.file.GetCellValue(g.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// Read parses one spreadsheet form
func (r *XLSXReader) Read(path string) (*model.Form, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := r.settings.Source.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := &sheetGrid{file: f, sheet: sheet, rows: rows}
	form := &model.Form{
		Path:     path,
		Name:     filepath.Base(path),
		Metadata: r.readMetadata(grid),
	}

	switch r.settings.Items.Mode {
	case config.ItemModeMark:
		form.Items, err = r.readMarkedItems(grid)
	default:
		form.Items = r.readValueItems(grid)
	}
	if err != nil {
		return nil, err
	}

	if len(form.Items) == 0 {
		return nil, fmt.Errorf("%s: %w", form.Name, ErrNoItems)
	}
	return form, nil
}

// readMetadata resolves every configured locator
func (r *XLSXReader) readMetadata(g *sheetGrid) []model.Field {
	var labelled map[string]string
	fields := make([]model.Field, 0, len(r.settings.Metadata))

	for _, loc := range r.settings.Metadata {
		var value string
		switch {
		case loc.Cell != "":
			if loc.Clean == config.CleanDate {
				value = ValueAfterSeparator(g.raw(loc.Cell))
			} else {
				col, row, _ := excelize.CellNameToCoordinates(loc.Cell)
				value = ValueAfterSeparator(g.cell(row, col))
			}
		case loc.Label != "":
			if labelled == nil {
				labelled = r.scanLabels(g)
			}
			value = labelled[NormalizeKey(loc.Label)]
		}
		fields = append(fields, model.Field{Name: loc.Field, Value: CleanValue(value, loc.Clean)})
	}
	return fields
}

// scanLabels collects "label: value" cells in the scan window
func (r *XLSXReader) scanLabels(g *sheetGrid) map[string]string {
	w := r.settings.MetadataScan
	if w.LastRow == 0 || w.LastCol == 0 {
		w = defaultScanWindow
	}

	out := make(map[string]string)
	for row := w.FirstRow; row <= w.LastRow; row++ {
		for col := w.FirstCol; col <= w.LastCol; col++ {
			text := g.cell(row, col)
			idx := strings.Index(text, ":")
			if idx < 0 {
				continue
			}
			key := NormalizeKey(text[:idx])
			val := strings.TrimSpace(text[idx+1:])
			if key != "" && val != "" {
				out[key] = val
			}
		}
	}
	return out
}

// readValueItems first column is the question, the first non-empty candidate is the grade.
// Items are keyed by their truncated label: a repeated question keeps its first position
// and takes the last grade.
func (r *XLSXReader) readValueItems(g *sheetGrid) []model.Item {
	first, last := r.settings.ItemColumns()
	var items []model.Item
	byLabel := make(map[string]int)

	for blockIdx, block := range r.settings.Items.Blocks {
		for row := block.Start; row <= block.End; row++ {
			cells := make([]string, 0, last-first+1)
			for col := first; col <= last; col++ {
				cells = append(cells, g.cell(row, col))
			}
			if allEmpty(cells) {
				continue
			}

			label := cells[0]
			if label == "" {
				continue
			}

			value := model.NAValue()
			for _, candidate := range cells[1:] {
				if candidate != "" {
					value = ParseValue(candidate)
					break
				}
			}

			label = Truncate(label, r.settings.Items.LabelMaxLen)
			if i, dup := byLabel[label]; dup {
				items[i].Value = value
				continue
			}
			byLabel[label] = len(items)
			items = append(items, model.Item{
				Number: len(items) + 1,
				Block:  blockIdx + 1,
				Row:    row,
				Label:  label,
				Value:  value,
			})
		}
	}
	return items
}

// markColumn a header column standing for a grade
type markColumn struct {
	col   int
	score int
}

// readMarkedItems the grade is given by which status column carries a mark
func (r *XLSXReader) readMarkedItems(g *sheetGrid) ([]model.Item, error) {
	first, last := r.settings.ItemColumns()
	var items []model.Item

	for blockIdx, block := range r.settings.Items.Blocks {
		marks := r.detectMarkColumns(g, block.Header, first, last)
		if len(marks) == 0 {
			return nil, fmt.Errorf("%w %d", ErrNoMarkColumns, block.Header)
		}

		for row := block.Start; row <= block.End; row++ {
			empty := true
			for col := first; col <= last; col++ {
				if g.cell(row, col) != "" {
					empty = false
					break
				}
			}
			if empty {
				continue
			}

			value := model.NAValue()
			for _, m := range marks {
				if isMarked(g.cell(row, m.col)) {
					value = model.ScoreValue(float64(m.score))
					break
				}
			}

			items = append(items, model.Item{
				Number: len(items) + 1,
				Block:  blockIdx + 1,
				Row:    row,
				Label:  Truncate(rowLabel(g, row, first), r.settings.Items.LabelMaxLen),
				Value:  value,
			})
		}
	}
	return items, nil
}

// detectMarkColumns maps header cells to grades; the longest matching keyword wins
// so that "No cumple" is not taken for "Cumple". Result is ordered best grade first.
func (r *XLSXReader) detectMarkColumns(g *sheetGrid, header, first, last int) []markColumn {
	seen := make(map[int]bool)
	var out []markColumn

	for col := first; col <= last; col++ {
		text := NormalizeKey(g.cell(header, col))
		if text == "" {
			continue
		}
		best := -1
		bestLen := 0
		for i, m := range r.settings.Items.Marks {
			kw := NormalizeKey(m.Keyword)
			if strings.Contains(text, kw) && len(kw) > bestLen {
				best, bestLen = i, len(kw)
			}
		}
		if best < 0 {
			continue
		}
		score := r.settings.Items.Marks[best].Score
		if seen[score] {
			continue
		}
		seen[score] = true
		out = append(out, markColumn{col: col, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// isMarked a cell counts as marked when it is neither empty nor "0"
func isMarked(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != "0"
}

// rowLabel question text of a row: the label column, else the longest text in the row
func rowLabel(g *sheetGrid, row, labelCol int) string {
	if v := g.cell(row, labelCol); v != "" {
		return v
	}

	longest := ""
	if row >= 1 && row <= len(g.rows) {
		for col := 1; col <= len(g.rows[row-1]); col++ {
			v := g.cell(row, col)
			if utf8.RuneCountInString(v) < 4 || ContainsAny(NormalizeKey(v), []string{"item"}) {
				continue
			}
			if utf8.RuneCountInString(v) > utf8.RuneCountInString(longest) {
				longest = v
			}
		}
	}
	if longest != "" {
		return longest
	}
	return fmt.Sprintf("Item_fila_%d", row)
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
