// Package testutil builds synthetic supervision forms for tests.
package testutil

import (
	"archive/zip"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook writes a single-sheet workbook with the given cell values
func WriteWorkbook(t testing.TB, path string, cells map[string]any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	sheet := f.GetSheetName(0)
	for ref, v := range cells {
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			t.Fatalf("set %s: %v", ref, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

// ValueForm cells of a value-mode form: metadata in C2/F2/C3/C4, items from row 8, columns C..G.
// Each grade is written in the column matching its value (D=0, E=1, F=2, G=NA).
func ValueForm(unit, district, supervisor string, grades []any) map[string]any {
	cells := map[string]any{
		"B2": "Unidad Territorial:",
		"C2": "Unidad Territorial: " + unit,
		"F2": district,
		"C3": "Supervisor: " + supervisor,
		"C4": "03/10/2025",
		"C7": "Aspecto a evaluar",
		"D7": "0",
		"E7": "1",
		"F7": "2",
		"G7": "NA",
	}
	for i, g := range grades {
		row := 8 + i
		cells[cellName(3, row)] = "Pregunta " + string(rune('A'+i))
		switch v := g.(type) {
		case int:
			cells[cellName(4+v, row)] = v
		case string:
			cells[cellName(7, row)] = v
		}
	}
	return cells
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// WriteDocx writes a minimal .docx with top-level paragraphs followed by one table
func WriteDocx(t testing.TB, path string, paragraphs []string, table [][]string) {
	t.Helper()

	var b strings.Builder
	for _, p := range paragraphs {
		writeParagraph(&b, p)
	}
	if len(table) > 0 {
		b.WriteString(`<w:tbl>`)
		for _, row := range table {
			b.WriteString(`<w:tr>`)
			for _, cell := range row {
				b.WriteString(`<w:tc>`)
				writeParagraph(&b, cell)
				b.WriteString(`</w:tc>`)
			}
			b.WriteString(`</w:tr>`)
		}
		b.WriteString(`</w:tbl>`)
	}
	WriteDocxBody(t, path, b.String())
}

// WriteDocxBody writes a minimal .docx whose word/document.xml body is the given markup
func WriteDocxBody(t testing.TB, path, bodyXML string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		bodyXML + `</w:body></w:document>`

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml":   document,
	}
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func writeParagraph(b *strings.Builder, text string) {
	b.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString(`</w:t></w:r></w:p>`)
}
