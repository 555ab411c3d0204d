package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownForm no settings file exists for the requested form id
var ErrUnknownForm = errors.New("unknown form")

// FormKind how a form turns into dataset rows
type FormKind string

const (
	// KindScored one row per file with graded items and a score
	KindScored FormKind = "scored"
	// KindFindings one row per numbered table row (critical points and agreements)
	KindFindings FormKind = "findings"
)

// Source formats
const (
	FormatXLSX = "xlsx"
	FormatDOCX = "docx"
)

// Item block modes
const (
	ItemModeValue = "value" // the first non-empty candidate cell holds the score
	ItemModeMark  = "mark"  // a mark under a Cumple/Parcial/No cumple header selects the score
)

// Classification inputs
const (
	InputSum        = "sum"
	InputPercentage = "percentage"
)

// Metadata cleaning modes
const (
	CleanNone  = "none"
	CleanTitle = "title"
	CleanUpper = "upper"
	CleanDate  = "date"
)

// FallbackParentDir use the name of the folder holding the file when a pattern does not match
const FallbackParentDir = "parent_dir"

// Default column layout shared by every consolidated dataset
var (
	DefaultCommonColumns = []string{
		"Año", "Mes", "Región", "Archivo",
		"Unidad Territorial", "Provincia", "Distrito", "Supervisor", "Fecha Supervisión",
	}
	DefaultDedupKey = []string{"Archivo", "Región", "Mes", "Año"}
)

// FormSettings declarative description of one annex template.
// It is loaded once per run and treated as immutable.
type FormSettings struct {
	ID             string                 `yaml:"id"`
	Tag            string                 `yaml:"tag"`
	Title          string                 `yaml:"title"`
	Version        string                 `yaml:"version"`
	Kind           FormKind               `yaml:"kind"`
	Source         SourceSettings         `yaml:"source"`
	Metadata       []FieldLocator         `yaml:"metadata"`
	MetadataScan   ScanWindow             `yaml:"metadata_scan"`
	Items          ItemSettings           `yaml:"items"`
	Table          TableSettings          `yaml:"table"`
	Scoring        ScoringSettings        `yaml:"scoring"`
	Classification ClassificationSettings `yaml:"classification"`
	CommonColumns  []string               `yaml:"common_columns"`
	DedupKey       []string               `yaml:"dedup_key"`
	Output         OutputSettings         `yaml:"output"`
}

// SourceSettings where and how the raw files are found
type SourceSettings struct {
	Format  string `yaml:"format"`
	Pattern string `yaml:"pattern"`
	Sheet   string `yaml:"sheet"`
}

// FieldLocator locates one metadata field.
// Exactly one of Cell, Label or Pattern is set.
type FieldLocator struct {
	Field    string `yaml:"field"`
	Cell     string `yaml:"cell"`
	Label    string `yaml:"label"`
	Pattern  string `yaml:"pattern"`
	Fallback string `yaml:"fallback"`
	Clean    string `yaml:"clean"`
}

// ScanWindow cell window scanned for "label: value" cells (1-based, inclusive)
type ScanWindow struct {
	FirstRow int `yaml:"first_row"`
	LastRow  int `yaml:"last_row"`
	FirstCol int `yaml:"first_col"`
	LastCol  int `yaml:"last_col"`
}

// ItemSettings graded item blocks
type ItemSettings struct {
	Mode        string      `yaml:"mode"`
	Blocks      []ItemBlock `yaml:"blocks"`
	ColStart    string      `yaml:"col_start"`
	ColEnd      string      `yaml:"col_end"`
	LabelMaxLen int         `yaml:"label_max_len"`
	// Column name template for item columns; {n} is the item number, {label} the label
	Column      string `yaml:"column"`
	ColumnLabel int    `yaml:"column_label_len"`
	Marks       []Mark `yaml:"marks"`
}

// ItemBlock contiguous row range; Header is only used in mark mode
type ItemBlock struct {
	Header int `yaml:"header"`
	Start  int `yaml:"start"`
	End    int `yaml:"end"`
}

// Mark header keyword and the score it stands for
type Mark struct {
	Keyword string `yaml:"keyword"`
	Score   int    `yaml:"score"`
	// Status label written to the long output; empty means the title-cased keyword
	Status string `yaml:"status"`
}

// TableSettings numbered table rows of document forms
type TableSettings struct {
	Columns []TableColumn `yaml:"columns"`
	// Deadline column index split into DaysColumn and DateColumn
	Deadline   int    `yaml:"deadline"`
	DaysColumn string `yaml:"days_column"`
	DateColumn string `yaml:"date_column"`
	Width      int    `yaml:"width"`
}

// TableColumn maps a table cell index to an output column
type TableColumn struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
}

// ScoringSettings score limits
type ScoringSettings struct {
	MaxPerItem float64 `yaml:"max_per_item"`
}

// ClassificationSettings performance bands
type ClassificationSettings struct {
	Input        string `yaml:"input"`
	Unclassified string `yaml:"unclassified"`
	Rules        []Rule `yaml:"rules"`
}

// Rule upper bound and label of one band
type Rule struct {
	Max   float64 `yaml:"max"`
	Label string  `yaml:"label"`
}

// OutputSettings consolidated dataset files
type OutputSettings struct {
	File     string `yaml:"file"`
	Sheet    string `yaml:"sheet"`
	LongFile string `yaml:"long_file"`
}

// LoadForms loads <dir>/<id>.yaml for every id, preserving order
func LoadForms(dir string, ids []string) ([]FormSettings, error) {
	forms := make([]FormSettings, 0, len(ids))
	for _, id := range ids {
		form, err := LoadFormFile(filepath.Join(dir, id+".yaml"))
		if err != nil {
			return nil, err
		}
		if form.ID == "" {
			form.ID = id
		}
		forms = append(forms, *form)
	}
	return forms, nil
}

// LoadFormFile loads and validates one settings file
func LoadFormFile(path string) (*FormSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownForm, path)
		}
		return nil, fmt.Errorf("read form settings %s: %w", path, err)
	}
	return ParseForm(data)
}

// ParseForm decodes YAML settings, fills defaults and validates
func ParseForm(data []byte) (*FormSettings, error) {
	var form FormSettings
	if err := yaml.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("decode form settings: %w", err)
	}
	form.applyDefaults()
	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("form %s: %w", form.ID, err)
	}
	return &form, nil
}

func (f *FormSettings) applyDefaults() {
	if f.Kind == "" {
		f.Kind = KindScored
	}
	if f.Tag == "" {
		f.Tag = strings.ToUpper(f.ID)
	}
	if f.Source.Format == "" {
		f.Source.Format = FormatXLSX
	}
	if f.Items.Mode == "" {
		f.Items.Mode = ItemModeValue
	}
	if f.Items.LabelMaxLen <= 0 {
		f.Items.LabelMaxLen = 120
	}
	if f.Items.Column == "" {
		f.Items.Column = "Item_{n}"
	}
	if f.Items.Mode == ItemModeMark && len(f.Items.Marks) == 0 {
		f.Items.Marks = []Mark{
			{Keyword: "no cumple", Score: 0, Status: "No cumple"},
			{Keyword: "parcial", Score: 1, Status: "Parcialmente"},
			{Keyword: "cumple", Score: 2, Status: "Cumple"},
		}
	}
	if f.Table.DaysColumn == "" {
		f.Table.DaysColumn = "PLAZO_DÍAS"
	}
	if f.Table.DateColumn == "" {
		f.Table.DateColumn = "FECHA_LÍMITE"
	}
	if f.Classification.Unclassified == "" {
		f.Classification.Unclassified = "Sin Clasificación"
	}
	if len(f.CommonColumns) == 0 {
		f.CommonColumns = append([]string(nil), DefaultCommonColumns...)
	}
	if len(f.DedupKey) == 0 {
		f.DedupKey = append([]string(nil), DefaultDedupKey...)
	}
	if f.Output.Sheet == "" {
		f.Output.Sheet = "Consolidado"
	}
	if f.Output.File == "" {
		f.Output.File = f.ID + "_consolidado.xlsx"
	}
	for i := range f.Metadata {
		if f.Metadata[i].Clean == "" {
			f.Metadata[i].Clean = CleanNone
		}
	}
}

// Validate checks the settings are internally consistent
func (f *FormSettings) Validate() error {
	if f.ID == "" {
		return errors.New("id is required")
	}
	if f.Source.Pattern == "" {
		return errors.New("source.pattern is required")
	}

	switch f.Source.Format {
	case FormatXLSX, FormatDOCX:
	default:
		return fmt.Errorf("unsupported source.format %q", f.Source.Format)
	}

	for _, m := range f.Metadata {
		if m.Field == "" {
			return errors.New("metadata entry without field")
		}
		set := 0
		for _, v := range []string{m.Cell, m.Label, m.Pattern} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("metadata %q: exactly one of cell, label, pattern is required", m.Field)
		}
		if m.Cell != "" {
			if _, _, err := excelize.CellNameToCoordinates(m.Cell); err != nil {
				return fmt.Errorf("metadata %q: %w", m.Field, err)
			}
		}
		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return fmt.Errorf("metadata %q: %w", m.Field, err)
			}
			if re.NumSubexp() < 1 {
				return fmt.Errorf("metadata %q: pattern needs a capture group", m.Field)
			}
		}
		switch m.Clean {
		case CleanNone, CleanTitle, CleanUpper, CleanDate:
		default:
			return fmt.Errorf("metadata %q: unknown clean mode %q", m.Field, m.Clean)
		}
	}

	switch f.Kind {
	case KindScored:
		if err := f.validateScored(); err != nil {
			return err
		}
	case KindFindings:
		if len(f.Table.Columns) == 0 {
			return errors.New("table.columns is required for findings forms")
		}
	default:
		return fmt.Errorf("unsupported kind %q", f.Kind)
	}

	if len(f.DedupKey) == 0 {
		return errors.New("dedup_key is empty")
	}
	return nil
}

func (f *FormSettings) validateScored() error {
	if f.Source.Format != FormatXLSX {
		return errors.New("scored forms must be xlsx")
	}
	if len(f.Items.Blocks) == 0 {
		return errors.New("items.blocks is required")
	}
	first, err := excelize.ColumnNameToNumber(f.Items.ColStart)
	if err != nil {
		return fmt.Errorf("items.col_start: %w", err)
	}
	last, err := excelize.ColumnNameToNumber(f.Items.ColEnd)
	if err != nil {
		return fmt.Errorf("items.col_end: %w", err)
	}
	if last < first {
		return errors.New("items.col_end before items.col_start")
	}
	for _, b := range f.Items.Blocks {
		if b.Start <= 0 || b.End < b.Start {
			return fmt.Errorf("invalid item block %d-%d", b.Start, b.End)
		}
		if f.Items.Mode == ItemModeMark && b.Header <= 0 {
			return fmt.Errorf("item block %d-%d needs a header row in mark mode", b.Start, b.End)
		}
	}
	switch f.Items.Mode {
	case ItemModeValue, ItemModeMark:
	default:
		return fmt.Errorf("unsupported items.mode %q", f.Items.Mode)
	}

	if f.Scoring.MaxPerItem <= 0 {
		return errors.New("scoring.max_per_item must be positive")
	}
	if len(f.Classification.Rules) > 0 {
		switch f.Classification.Input {
		case InputSum, InputPercentage:
		default:
			return fmt.Errorf("classification.input must be %q or %q", InputSum, InputPercentage)
		}
	}
	return nil
}

// ItemColumns first and last item columns as 1-based numbers
func (f *FormSettings) ItemColumns() (first, last int) {
	first, _ = excelize.ColumnNameToNumber(f.Items.ColStart)
	last, _ = excelize.ColumnNameToNumber(f.Items.ColEnd)
	return first, last
}

// FindForm returns the settings with the given id
func FindForm(forms []FormSettings, id string) (FormSettings, error) {
	for _, f := range forms {
		if strings.EqualFold(f.ID, id) {
			return f, nil
		}
	}
	return FormSettings{}, fmt.Errorf("%w: %s", ErrUnknownForm, id)
}
