package importer

import (
	"strconv"
	"strings"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/dataset"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
	"github.com/portillolaupa-ui/ucc-supervision/internal/parser"
	"github.com/portillolaupa-ui/ucc-supervision/internal/scoring"
)

// Columns of the long (one row per item) output
const (
	ColBlock       = "Bloque"
	ColRow         = "Fila"
	ColItem        = "Ítem"
	ColDescription = "Descripción"
	ColScore       = "Puntaje"
	ColStatus      = "Estado"
)

// keyColumns location columns, in dataset order
var keyColumns = []string{model.ColYear, model.ColMonth, model.ColRegion, model.ColFile}

// baseRow key columns plus the form metadata; returns the row and its column order
func baseRow(loc model.Location, form *model.Form) (dataset.Row, []string) {
	row := dataset.Row{
		model.ColYear:   yearCell(loc.Year),
		model.ColMonth:  loc.Month,
		model.ColRegion: loc.Region,
		model.ColFile:   form.Name,
	}
	cols := append([]string(nil), keyColumns...)
	for _, m := range form.Metadata {
		row[m.Name] = m.Value
		cols = append(cols, m.Name)
	}
	return row, cols
}

// yearCell numeric folder names are stored as numbers so reloaded datasets compare equal
func yearCell(year string) any {
	if parser.IsDigits(year) {
		if n, err := strconv.ParseInt(year, 10, 64); err == nil {
			return n
		}
	}
	return year
}

// ItemColumn renders the item column name template
func ItemColumn(settings config.FormSettings, it model.Item) string {
	label := it.Label
	if n := settings.Items.ColumnLabel; n > 0 {
		label = parser.Truncate(label, n)
	}
	name := strings.ReplaceAll(settings.Items.Column, "{n}", strconv.Itoa(it.Number))
	return strings.ReplaceAll(name, "{label}", label)
}

// ScoredRow one dataset row for a scored form: metadata, items, computed columns
func ScoredRow(settings config.FormSettings, classifier *scoring.Classifier, loc model.Location, form *model.Form) (dataset.Row, []string, scoring.Summary) {
	row, cols := baseRow(loc, form)

	taken := make(map[string]bool, len(cols)+len(form.Items)+len(computedColumns))
	for _, c := range cols {
		taken[c] = true
	}
	for _, c := range computedColumns {
		taken[c] = true
	}
	for _, it := range form.Items {
		name := uniqueColumn(ItemColumn(settings, it), taken)
		cols = append(cols, name)
		row[name] = it.Value.Cell()
	}

	sum := scoring.Score(form.Items, settings.Scoring.MaxPerItem)
	category := classifier.ClassifySummary(sum, settings.Classification.Input)

	row[model.ColValidItems] = int64(sum.Valid)
	row[model.ColNAItems] = int64(sum.NA)
	row[model.ColSum] = model.ScoreValue(sum.Sum).Cell()
	row[model.ColPercentage] = model.ScoreValue(sum.Percentage).Cell()
	row[model.ColCategory] = category
	cols = append(cols, computedColumns...)

	return row, cols, sum
}

// computedColumns appended after the items of a scored row
var computedColumns = []string{model.ColValidItems, model.ColNAItems, model.ColSum, model.ColPercentage, model.ColCategory}

// uniqueColumn name, or name with the first free " (k)" suffix when it is already taken
// by a key, metadata, computed or earlier item column
func uniqueColumn(name string, taken map[string]bool) string {
	out := name
	for k := 2; taken[out]; k++ {
		out = name + " (" + strconv.Itoa(k) + ")"
	}
	taken[out] = true
	return out
}

// FindingsRows one dataset row per numbered table row of a findings form
func FindingsRows(settings config.FormSettings, loc model.Location, form *model.Form) ([]dataset.Row, []string) {
	t := settings.Table
	var (
		rows []dataset.Row
		cols []string
	)

	for _, tr := range form.Rows {
		cells := tr.Cells
		for len(cells) < t.Width {
			cells = append(cells, "")
		}

		row, base := baseRow(loc, form)
		if cols == nil {
			cols = base
			for _, c := range t.Columns {
				cols = append(cols, c.Name)
			}
			if t.Deadline > 0 {
				cols = append(cols, t.DaysColumn, t.DateColumn)
			}
		}

		for _, c := range t.Columns {
			row[c.Name] = cellAt(cells, c.Index)
		}
		if t.Deadline > 0 {
			days, date := scoring.SplitDeadline(cellAt(cells, t.Deadline))
			row[t.DaysColumn] = days
			row[t.DateColumn] = date
		}
		rows = append(rows, row)
	}
	return rows, cols
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// LongRows one row per item, for forms with a long output
func LongRows(settings config.FormSettings, loc model.Location, form *model.Form) ([]dataset.Row, []string) {
	var (
		rows []dataset.Row
		cols []string
	)
	for _, it := range form.Items {
		row, base := baseRow(loc, form)
		if cols == nil {
			cols = append(base, ColBlock, ColRow, ColItem, ColDescription, ColScore, ColStatus)
		}
		row[ColBlock] = int64(it.Block)
		row[ColRow] = int64(it.Row)
		row[ColItem] = int64(it.Number)
		row[ColDescription] = it.Label
		row[ColScore] = it.Value.Cell()
		row[ColStatus] = markStatus(settings, it.Value)
		rows = append(rows, row)
	}
	return rows, cols
}

// markStatus textual grade: the mark's status label for a score, or empty
func markStatus(settings config.FormSettings, v model.Value) string {
	if !v.IsScore() {
		return ""
	}
	for _, m := range settings.Items.Marks {
		if float64(m.Score) != v.Score {
			continue
		}
		if m.Status != "" {
			return m.Status
		}
		return parser.CleanValue(m.Keyword, config.CleanTitle)
	}
	return ""
}
