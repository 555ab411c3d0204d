package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "ucc.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id := uuid.NewString()
	start := time.Date(2025, 10, 16, 8, 0, 0, 0, time.UTC)

	if err := s.CreateRun(id, "cli", start); err != nil {
		t.Fatalf("create run: %v", err)
	}

	step := StepRecord{
		RunID:       id,
		Form:        "anexo4",
		State:       "succeeded",
		FilesTotal:  3,
		FilesOK:     2,
		FilesFailed: 1,
		RowsWritten: 2,
		DatasetRows: 10,
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Second),
	}
	files := []FileRecord{
		{Form: "anexo4", Path: "2025/OCTUBRE/CUSCO/a.xlsx", Year: "2025", Month: "OCTUBRE", Region: "CUSCO", Status: "ok", Rows: 1},
		{Form: "anexo4", Path: "2025/OCTUBRE/CUSCO/b.xlsx", Year: "2025", Month: "OCTUBRE", Region: "CUSCO", Status: "ok", Rows: 1},
		{Form: "anexo4", Path: "2025/OCTUBRE/PUNO/c.xlsx", Year: "2025", Month: "OCTUBRE", Region: "PUNO", Status: "error", Error: "no valid items"},
	}
	if err := s.SaveStep(step, files); err != nil {
		t.Fatalf("save step: %v", err)
	}
	if err := s.FinishRun(id, RunSucceeded, 1, 1, start.Add(3*time.Second)); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != RunSucceeded || run.StepsOK != 1 || run.CompletedAt == nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.StartedAt.Equal(start) {
		t.Fatalf("started_at=%v", run.StartedAt)
	}
	if len(run.Steps) != 1 || run.Steps[0].FilesFailed != 1 || run.Steps[0].DatasetRows != 10 {
		t.Fatalf("unexpected steps: %+v", run.Steps)
	}

	got, err := s.ListFiles(id, "anexo4")
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(got) != 3 || got[2].Status != "error" || got[2].Error == "" {
		t.Fatalf("unexpected files: %+v", got)
	}
	if other, _ := s.ListFiles(id, "anexo2"); len(other) != 0 {
		t.Fatalf("form filter ignored: %+v", other)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, id := range ids {
		if err := s.CreateRun(id, "cli", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if runs[0].CompletedAt != nil {
		t.Fatalf("running run should have no completion time")
	}

	last, err := s.LastRun()
	if err != nil || last == nil || last.ID != ids[2] {
		t.Fatalf("last run: %+v %v", last, err)
	}
}

func TestLastRun_Empty(t *testing.T) {
	t.Parallel()

	last, err := newTestStore(t).LastRun()
	if err != nil || last != nil {
		t.Fatalf("want nil run, got %+v %v", last, err)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.GetRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get run: %v", err)
	}
	if err := s.FinishRun("nope", RunFailed, 0, 0, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finish run: %v", err)
	}
	if err := s.FinishUpload("nope", UploadFailed, "", "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finish upload: %v", err)
	}
}

func TestUploads(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	first := Upload{
		ID: uuid.NewString(), Form: "anexo2", Year: "2025", Month: "OCTUBRE", Region: "LA_LIBERTAD",
		Filename: "ficha_ANEXO_2.xlsx", StoredPath: "raw/2025/OCTUBRE/LA_LIBERTAD/ficha_ANEXO_2.xlsx",
		Size: 2048, Hash: "abc", CreatedAt: time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	second := first
	second.ID = uuid.NewString()
	second.Form = "anexo5"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	for _, u := range []Upload{first, second} {
		if err := s.CreateUpload(u); err != nil {
			t.Fatalf("create upload: %v", err)
		}
	}
	if err := s.FinishUpload(first.ID, UploadProcessed, "run-1", ""); err != nil {
		t.Fatalf("finish upload: %v", err)
	}

	all, err := s.ListUploads("", 10)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("unexpected uploads: %+v", all)
	}
	if all[1].Status != UploadProcessed || all[1].RunID != "run-1" || all[1].CompletedAt == nil {
		t.Fatalf("upload not finished: %+v", all[1])
	}
	if all[0].Status != UploadReceived {
		t.Fatalf("default status=%q", all[0].Status)
	}

	only, err := s.ListUploads("anexo2", 10)
	if err != nil || len(only) != 1 || only[0].ID != first.ID {
		t.Fatalf("filtered uploads: %+v %v", only, err)
	}
}

func TestListPeriods_LatestResultPerFile(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	start := time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC)
	save := func(form string, files ...FileRecord) {
		t.Helper()
		id := uuid.NewString()
		if err := s.CreateRun(id, "cli", start); err != nil {
			t.Fatal(err)
		}
		step := StepRecord{RunID: id, Form: form, State: "succeeded", StartedAt: start, CompletedAt: start}
		if err := s.SaveStep(step, files); err != nil {
			t.Fatal(err)
		}
	}
	file := func(form, year, month, region, name, status string) FileRecord {
		return FileRecord{Form: form, Path: year + "/" + month + "/" + region + "/" + name, Year: year, Month: month, Region: region, Status: status}
	}

	save("anexo2",
		file("anexo2", "2025", "SETIEMBRE", "CUSCO", "a.xlsx", "ok"),
		file("anexo2", "2025", "OCTUBRE", "CUSCO", "b.xlsx", "error"),
		file("anexo2", "2025", "OCTUBRE", "PUNO", "c.xlsx", "ok"),
	)
	// second run: b.xlsx fixed
	save("anexo2",
		file("anexo2", "2025", "SETIEMBRE", "CUSCO", "a.xlsx", "ok"),
		file("anexo2", "2025", "OCTUBRE", "CUSCO", "b.xlsx", "ok"),
		file("anexo2", "2025", "OCTUBRE", "PUNO", "c.xlsx", "ok"),
	)
	save("anexo5", file("anexo5", "2024", "DICIEMBRE", "LIMA", "d.docx", "error"))

	all, err := s.ListPeriods("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 periods, got %+v", all)
	}
	if all[0].Month != "OCTUBRE" || all[1].Month != "SETIEMBRE" || all[2].Year != "2024" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[0].Files != 2 || all[0].Regions != 2 || all[0].Failed != 0 {
		t.Fatalf("unexpected OCTUBRE stats: %+v", all[0])
	}
	if all[2].Failed != 1 {
		t.Fatalf("unexpected DICIEMBRE stats: %+v", all[2])
	}

	only, err := s.ListPeriods("anexo5")
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Month != "DICIEMBRE" {
		t.Fatalf("form filter ignored: %+v", only)
	}
}

func TestMonthNumber(t *testing.T) {
	t.Parallel()

	cases := map[string]int{"enero": 1, " Setiembre ": 9, "SEPTIEMBRE": 9, "DICIEMBRE": 12, "2025": 0}
	for in, want := range cases {
		if got := MonthNumber(in); got != want {
			t.Errorf("MonthNumber(%q)=%d, want %d", in, got, want)
		}
	}
}
