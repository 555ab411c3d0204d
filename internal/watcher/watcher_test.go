package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
)

const testDebounce = 50 * time.Millisecond

func testForms() []config.FormSettings {
	return []config.FormSettings{
		{ID: "anexo2", Source: config.SourceSettings{Pattern: "*ANEXO_2*.xlsx"}},
		{ID: "anexo5", Source: config.SourceSettings{Pattern: "*ANEXO_5*.docx"}},
	}
}

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, testForms(), testDebounce, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w
}

func waitChange(t *testing.T, w *Watcher, timeout time.Duration) (Change, bool) {
	t.Helper()
	select {
	case c, ok := <-w.Changes():
		return c, ok
	case <-time.After(timeout):
		return Change{}, false
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DetectsNewFile(t *testing.T) {
	root := t.TempDir()
	region := filepath.Join(root, "2025", "OCTUBRE", "CUSCO")
	if err := os.MkdirAll(region, 0755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root)

	path := filepath.Join(region, "ficha_ANEXO_2_wanchaq.xlsx")
	writeFile(t, path, "v1")

	c, ok := waitChange(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change")
	}
	if !slices.Equal(c.Forms, []string{"anexo2"}) {
		t.Fatalf("forms=%v", c.Forms)
	}
	if !slices.Equal(c.Paths, []string{path}) {
		t.Fatalf("paths=%v", c.Paths)
	}
}

func TestWatcher_IgnoresLockAndUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	region := filepath.Join(root, "2025", "OCTUBRE", "CUSCO")
	if err := os.MkdirAll(region, 0755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root)

	writeFile(t, filepath.Join(region, "~$ficha_ANEXO_2.xlsx"), "lock")
	writeFile(t, filepath.Join(region, "notas.txt"), "texto")
	writeFile(t, filepath.Join(region, "ficha_ANEXO_2.docx"), "otro formato")

	if c, ok := waitChange(t, w, 10*testDebounce); ok {
		t.Fatalf("unexpected change: %+v", c)
	}
}

func TestWatcher_NewDirectoryIsScanned(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	// nested directories created at once; the file may land before the watch is added
	path := filepath.Join(root, "2025", "NOVIEMBRE", "PUNO", "ficha_ANEXO_5_puno.docx")
	writeFile(t, path, "acta")

	c, ok := waitChange(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change")
	}
	if !slices.Equal(c.Forms, []string{"anexo5"}) {
		t.Fatalf("forms=%v", c.Forms)
	}
	if !slices.Contains(c.Paths, path) {
		t.Fatalf("paths=%v", c.Paths)
	}
}

func TestWatcher_UnchangedContentIsSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "2025", "OCTUBRE", "CUSCO", "ficha_ANEXO_2.xlsx")
	writeFile(t, path, "v1")
	w := startWatcher(t, root)

	writeFile(t, path, "v1")
	if c, ok := waitChange(t, w, 10*testDebounce); ok {
		t.Fatalf("unexpected change for identical content: %+v", c)
	}

	writeFile(t, path, "v2")
	c, ok := waitChange(t, w, 3*time.Second)
	if !ok {
		t.Fatal("expected a change after new content")
	}
	if !slices.Equal(c.Forms, []string{"anexo2"}) {
		t.Fatalf("forms=%v", c.Forms)
	}
}

func TestWatcher_ChangesClosedOnStop(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, testForms(), testDebounce, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()

	select {
	case _, ok := <-w.Changes():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("changes channel not closed")
	}
}

func TestFormsFor(t *testing.T) {
	w := &Watcher{forms: testForms()}
	tests := []struct {
		name string
		path string
		want []string
	}{
		{"workbook", "/raw/2025/OCTUBRE/CUSCO/ficha_ANEXO_2.xlsx", []string{"anexo2"}},
		{"document", "/raw/2025/OCTUBRE/CUSCO/acta ANEXO_5 final.docx", []string{"anexo5"}},
		{"lock file", "/raw/2025/OCTUBRE/CUSCO/~$ficha_ANEXO_2.xlsx", nil},
		{"hidden", "/raw/2025/OCTUBRE/CUSCO/.ficha_ANEXO_2.xlsx", nil},
		{"other form", "/raw/2025/OCTUBRE/CUSCO/ficha_ANEXO_9.xlsx", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.formsFor(tt.path)
			if !slices.Equal(got, tt.want) {
				t.Errorf("formsFor(%q)=%v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
