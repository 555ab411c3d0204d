package parser

import (
	"testing"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

func TestValueAfterSeparator(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Unidad Territorial: Lima ": "Lima",
		"  Piura  ":                 "Piura",
		"Hora: 10:30":               "10:30",
		"Sin valor:":                "",
	}
	for in, want := range cases {
		if got := ValueAfterSeparator(in); got != want {
			t.Fatalf("ValueAfterSeparator(%q) want=%q got=%q", in, want, got)
		}
	}
}

func TestCleanValue(t *testing.T) {
	t.Parallel()

	if got := CleanValue("  JOSÉ MARÍA arguedas ", config.CleanTitle); got != "José María Arguedas" {
		t.Fatalf("title=%q", got)
	}
	if got := CleanValue("cusco", config.CleanUpper); got != "CUSCO" {
		t.Fatalf("upper=%q", got)
	}
	if got := CleanValue(" tal cual ", config.CleanNone); got != "tal cual" {
		t.Fatalf("none=%q", got)
	}
	if got := CleanValue("   ", config.CleanTitle); got != "" {
		t.Fatalf("blank=%q", got)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"45933":               "2025-10-03",
		"03/10/2025":          "2025-10-03",
		"3/10/2025":           "2025-10-03",
		"2025-10-03":          "2025-10-03",
		"2025-10-03 08:15:00": "2025-10-03",
		"octubre":             "octubre",
		"":                    "",
	}
	for in, want := range cases {
		if got := FormatDate(in); got != want {
			t.Fatalf("FormatDate(%q) want=%q got=%q", in, want, got)
		}
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	t.Parallel()

	if got := Truncate("Señalización", 4); got != "Seña" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("zero limit should not truncate, got %q", got)
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	if got := NormalizeKey("  Unidad   TERRITORIAL "); got != "unidad territorial" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeKey("Fecha de Supervisión"); got != "fecha de supervision" {
		t.Fatalf("got %q", got)
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		kind model.ValueKind
		num  float64
	}{
		{"2", model.ValueScore, 2},
		{"1,5", model.ValueScore, 1.5},
		{" 0 ", model.ValueScore, 0},
		{"NA", model.ValueNA, 0},
		{"n/a", model.ValueNA, 0},
		{"No aplica", model.ValueNA, 0},
		{"", model.ValueNA, 0},
		{"X", model.ValueText, 0},
	}
	for _, c := range cases {
		v := ParseValue(c.in)
		if v.Kind != c.kind || v.Score != c.num {
			t.Fatalf("ParseValue(%q) = %+v", c.in, v)
		}
	}
}

func TestIsDigits(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"1", "12", "007"} {
		if !IsDigits(s) {
			t.Fatalf("%q should be digits", s)
		}
	}
	for _, s := range []string{"", "1.", "N°", " 1"} {
		if IsDigits(s) {
			t.Fatalf("%q should not be digits", s)
		}
	}
}
