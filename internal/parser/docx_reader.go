package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

// DocxReader document form reader: metadata by pattern over the paragraph text,
// rows from the numbered rows of the document tables
type DocxReader struct {
	settings config.FormSettings
	patterns []*regexp.Regexp
}

// NewDocxReader compiles the metadata patterns
func NewDocxReader(settings config.FormSettings) (*DocxReader, error) {
	r := &DocxReader{settings: settings, patterns: make([]*regexp.Regexp, len(settings.Metadata))}
	for i, loc := range settings.Metadata {
		if loc.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(loc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", loc.Field, err)
		}
		r.patterns[i] = re
	}
	return r, nil
}

// Read parses one document form
func (r *DocxReader) Read(path string) (*model.Form, error) {
	body, err := ReadDocxBody(path)
	if err != nil {
		return nil, err
	}

	form := &model.Form{
		Path: path,
		Name: filepath.Base(path),
	}

	text := NormalizeDocxText(strings.Join(body.Paragraphs, "\n"))
	for i, loc := range r.settings.Metadata {
		value := ""
		if re := r.patterns[i]; re != nil {
			if m := re.FindStringSubmatch(text); len(m) > 1 {
				value = strings.TrimSpace(m[1])
			}
		}
		if value == "" && loc.Fallback == config.FallbackParentDir {
			value = strings.ToUpper(strings.ReplaceAll(filepath.Base(filepath.Dir(path)), "_", " "))
		}
		form.Metadata = append(form.Metadata, model.Field{Name: loc.Field, Value: CleanValue(value, loc.Clean)})
	}

	for _, table := range body.Tables {
		for _, cells := range table {
			if len(cells) == 0 || !IsDigits(cells[0]) {
				continue
			}
			idx, _ := strconv.Atoi(cells[0])
			form.Rows = append(form.Rows, model.TableRow{Index: idx, Cells: cells})
		}
	}

	if len(form.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", form.Name, ErrNoRows)
	}
	return form, nil
}

// DocxBody top-level paragraphs and tables of a document
type DocxBody struct {
	Paragraphs []string
	// Tables rows of cell texts; rows whose cells are all empty are dropped
	Tables [][][]string
}

// ReadDocxBody extracts paragraph and table text from a .docx file
func ReadDocxBody(path string) (*DocxBody, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc.Document.XMLName.Local == "" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoDocumentPart)
	}
	return documentBody(doc.Document.Body.Items), nil
}

// documentBody keeps the top-level paragraphs and tables of a parsed body
func documentBody(items []interface{}) *DocxBody {
	body := &DocxBody{}
	for _, item := range items {
		switch it := item.(type) {
		case *docx.Paragraph:
			body.Paragraphs = append(body.Paragraphs, paragraphText(it))
		case *docx.Table:
			body.Tables = append(body.Tables, tableRows(it))
		}
	}
	return body
}

// tableRows cell texts per row; rows whose cells are all empty are dropped
func tableRows(t *docx.Table) [][]string {
	var rows [][]string
	for _, tr := range t.TableRows {
		row := make([]string, 0, len(tr.TableCells))
		for _, tc := range tr.TableCells {
			row = append(row, strings.TrimSpace(strings.Join(cellLines(tc), "\n")))
		}
		if !allEmpty(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

// cellLines paragraph texts of a cell, then those of the tables nested in it
func cellLines(tc *docx.WTableCell) []string {
	lines := make([]string, 0, len(tc.Paragraphs))
	for _, p := range tc.Paragraphs {
		lines = append(lines, paragraphText(p))
	}
	for _, nested := range tc.Tables {
		for _, tr := range nested.TableRows {
			for _, inner := range tr.TableCells {
				lines = append(lines, cellLines(inner)...)
			}
		}
	}
	return lines
}

// paragraphText run text with tabs and line breaks; hyperlinks give their visible text
func paragraphText(p *docx.Paragraph) string {
	var b strings.Builder
	for _, child := range p.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRun(&b, c)
		case *docx.Hyperlink:
			writeRun(&b, &c.Run)
		}
	}
	return b.String()
}

func writeRun(b *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			b.WriteString(c.Text)
		case *docx.Tab:
			b.WriteByte('\t')
		case *docx.BarterRabbet:
			b.WriteByte('\n')
		}
	}
}
