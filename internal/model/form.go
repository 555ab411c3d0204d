package model

import (
	"math"
	"strconv"
)

// Fixed column names of every consolidated dataset
const (
	ColYear   = "Año"
	ColMonth  = "Mes"
	ColRegion = "Región"
	ColFile   = "Archivo"
)

// Computed column names of scored datasets
const (
	ColValidItems = "Ítems válidos"
	ColNAItems    = "Ítems NA"
	ColSum        = "Suma Total"
	ColPercentage = "Puntaje (%)"
	ColCategory   = "Evaluación"
)

// NotApplicable text written for items without a grade
const NotApplicable = "NA"

// ValueKind kind of a graded item value
type ValueKind int

const (
	ValueNA    ValueKind = iota // not applicable or left blank
	ValueScore                  // numeric grade
	ValueText                   // something else was written in the cell
)

// Value graded value of one item
type Value struct {
	Kind  ValueKind
	Score float64
	Text  string
}

// ScoreValue numeric grade
func ScoreValue(v float64) Value {
	return Value{Kind: ValueScore, Score: v}
}

// NAValue not applicable
func NAValue() Value {
	return Value{Kind: ValueNA}
}

// TextValue unrecognised cell content
func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: s}
}

// IsScore reports whether the value is numeric
func (v Value) IsScore() bool { return v.Kind == ValueScore }

// IsNA reports whether the value is not applicable
func (v Value) IsNA() bool { return v.Kind == ValueNA }

// Cell value written to the dataset: int for integral scores, "NA", or the raw text
func (v Value) Cell() any {
	switch v.Kind {
	case ValueScore:
		if v.Score == math.Trunc(v.Score) && math.Abs(v.Score) < 1<<53 {
			return int64(v.Score)
		}
		return v.Score
	case ValueText:
		return v.Text
	default:
		return NotApplicable
	}
}

// String textual form of the value
func (v Value) String() string {
	switch v.Kind {
	case ValueScore:
		return strconv.FormatFloat(v.Score, 'f', -1, 64)
	case ValueText:
		return v.Text
	default:
		return NotApplicable
	}
}

// Item one graded checklist question
type Item struct {
	Number int    // 1-based position across all blocks
	Block  int    // 1-based block index
	Row    int    // source row in the sheet
	Label  string // question text, truncated
	Value  Value
}

// Field named metadata value
type Field struct {
	Name  string
	Value string
}

// TableRow numbered row of a document table
type TableRow struct {
	Index int
	Cells []string
}

// Form everything extracted from one source file
type Form struct {
	Path     string
	Name     string
	Metadata []Field
	Items    []Item
	Rows     []TableRow
}

// Meta returns the metadata value for name, or ""
func (f *Form) Meta(name string) string {
	for _, m := range f.Metadata {
		if m.Name == name {
			return m.Value
		}
	}
	return ""
}

// Location where a file sits in the raw tree
type Location struct {
	Year   string
	Month  string
	Region string
}
