package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCache_ReusesUntilFileChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "anexo2_consolidado.xlsx")
	tbl := NewTable("Año", "Mes", "Región", "Archivo", "Puntaje (%)")
	tbl.Rows = []Row{record("fileA", "CUSCO", "OCTUBRE", 2025, 62.5)}
	if err := tbl.Save(path, "Consolidado"); err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	first, err := c.Load(path, "Consolidado")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Load(path, "Consolidado")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the cached table on the second load")
	}
	if c.Len() != 1 {
		t.Fatalf("len=%d", c.Len())
	}

	tbl.Rows = append(tbl.Rows, record("fileB", "PUNO", "OCTUBRE", 2025, 80))
	if err := tbl.Save(path, "Consolidado"); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	third, err := c.Load(path, "Consolidado")
	if err != nil {
		t.Fatal(err)
	}
	if third == first || third.Len() != 2 {
		t.Fatalf("expected a reload with 2 rows, got %d", third.Len())
	}
}

func TestCache_MissingFile(t *testing.T) {
	t.Parallel()

	c := NewCache()
	tbl, err := c.Load(filepath.Join(t.TempDir(), "nope.xlsx"), "Consolidado")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 || c.Len() != 0 {
		t.Fatalf("rows=%d cached=%d", tbl.Len(), c.Len())
	}
}

func TestCache_InvalidateAndClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := NewCache()
	for _, name := range []string{"a.xlsx", "b.xlsx"} {
		path := filepath.Join(dir, name)
		if err := NewTable("Archivo").Save(path, "Consolidado"); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Load(path, "Consolidado"); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d", c.Len())
	}
	c.Invalidate(filepath.Join(dir, "a.xlsx"))
	if c.Len() != 1 {
		t.Fatalf("len after invalidate=%d", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len after clear=%d", c.Len())
	}
}
