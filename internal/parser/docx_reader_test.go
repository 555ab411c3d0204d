package parser

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/portillolaupa-ui/ucc-supervision/internal/testutil"
)

const docxFormYAML = `
id: anexo5
kind: findings
source:
  format: docx
  pattern: "*ANEXO_5*.docx"
metadata:
  - field: Unidad Territorial
    pattern: '(?i)UNIDAD\s*TERRITORIAL\s*:\s*([A-ZÁÉÍÓÚÑ ]+)'
    fallback: parent_dir
    clean: title
  - field: Fecha Supervisión
    pattern: '(?i)FECHA\s*:\s*([\d/]+)'
    clean: date
table:
  columns:
    - {index: 1, name: PUNTOS_CRITICOS}
    - {index: 2, name: ACUERDOS_MEJORA}
    - {index: 3, name: RESPONSABLE}
  deadline: 4
  width: 5
`

var findingsTable = [][]string{
	{"N°", "Puntos críticos", "Acuerdos de mejora", "Responsable", "Plazo"},
	{"1", "Falta de señalética", "Instalar señalética", "Coordinador", "15 días (30/10/2025)"},
	{"", "", "", "", ""},
	{"2", "Registro incompleto", "Completar registro", "Gestor", "30/11/2025"},
	{"Observaciones", "ninguna", "", "", ""},
}

func TestDocxReader_Read(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "PIURA", "ANEXO_5_PIURA.docx")
	testutil.WriteDocx(t, path, []string{
		"ACTA DE SUPERVISIÓN",
		"FECHA: 12/10/2025",
		"UNIDAD TERRITORIAL:\tpiura",
	}, findingsTable)

	r, err := NewDocxReader(mustForm(t, docxFormYAML))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	form, err := r.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got := form.Meta("Unidad Territorial"); got != "Piura" {
		t.Fatalf("unit=%q", got)
	}
	if got := form.Meta("Fecha Supervisión"); got != "2025-10-12" {
		t.Fatalf("date=%q", got)
	}

	if len(form.Rows) != 2 {
		t.Fatalf("want 2 numbered rows, got %d", len(form.Rows))
	}
	if form.Rows[0].Index != 1 || form.Rows[1].Index != 2 {
		t.Fatalf("unexpected indexes: %d %d", form.Rows[0].Index, form.Rows[1].Index)
	}
	if form.Rows[1].Cells[1] != "Registro incompleto" {
		t.Fatalf("cell=%q", form.Rows[1].Cells[1])
	}
}

func TestDocxReader_UnitFallsBackToFolder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "san_martin", "ANEXO_5.docx")
	testutil.WriteDocx(t, path, []string{"Sin encabezado"}, findingsTable)

	r, err := NewDocxReader(mustForm(t, docxFormYAML))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	form, err := r.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := form.Meta("Unidad Territorial"); got != "San Martin" {
		t.Fatalf("unit=%q", got)
	}
	if got := form.Meta("Fecha Supervisión"); got != "" {
		t.Fatalf("date should be empty, got %q", got)
	}
}

func TestDocxReader_NoRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ANEXO_5.docx")
	testutil.WriteDocx(t, path, []string{"UNIDAD TERRITORIAL: CUSCO"}, [][]string{{"N°", "Puntos críticos"}})

	r, err := NewDocxReader(mustForm(t, docxFormYAML))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := r.Read(path); !errors.Is(err, ErrNoRows) {
		t.Fatalf("want ErrNoRows, got %v", err)
	}
}

func TestReadDocxBody_NestedTableStaysInCell(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ANEXO_5.docx")
	testutil.WriteDocxBody(t, path, `
<w:p><w:r><w:t>Intro</w:t><w:tab/><w:t>texto</w:t></w:r></w:p>
<w:tbl>
  <w:tr>
    <w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc>
    <w:tc>
      <w:p><w:r><w:t>Exterior</w:t></w:r></w:p>
      <w:tbl><w:tr><w:tc><w:p><w:r><w:t>Interior</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
    </w:tc>
  </w:tr>
  <w:tr><w:tc><w:p/></w:tc><w:tc><w:p/></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:t>Línea</w:t><w:br/><w:t>siguiente</w:t></w:r></w:p>`)

	body, err := ReadDocxBody(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(body.Paragraphs) != 2 || body.Paragraphs[0] != "Intro\ttexto" || body.Paragraphs[1] != "Línea\nsiguiente" {
		t.Fatalf("paragraphs=%q", body.Paragraphs)
	}
	if len(body.Tables) != 1 || len(body.Tables[0]) != 1 {
		t.Fatalf("tables=%v", body.Tables)
	}
	row := body.Tables[0][0]
	if len(row) != 2 || row[0] != "1" || row[1] != "Exterior\nInterior" {
		t.Fatalf("row=%q", row)
	}
}

func TestReadDocxBody_NotADocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ANEXO_5.docx")
	if err := os.WriteFile(path, []byte("esto no es un docx"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDocxBody(path); err == nil {
		t.Fatal("expected an error for a non-zip file")
	}
}

func TestReadDocxBody_MissingDocumentPart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ANEXO_5.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	if _, err := zw.Create("word/styles.xml"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadDocxBody(path); !errors.Is(err, ErrNoDocumentPart) {
		t.Fatalf("want ErrNoDocumentPart, got %v", err)
	}
}
