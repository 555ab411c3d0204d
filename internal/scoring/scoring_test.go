package scoring

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

func items(values ...model.Value) []model.Item {
	out := make([]model.Item, len(values))
	for i, v := range values {
		out[i] = model.Item{Number: i + 1, Value: v}
	}
	return out
}

func TestScore_MixedValues(t *testing.T) {
	t.Parallel()

	s := Score(items(
		model.ScoreValue(2),
		model.ScoreValue(2),
		model.NAValue(),
		model.ScoreValue(0),
		model.ScoreValue(1),
	), 2)

	if s.Valid != 4 || s.NA != 1 || s.Sum != 5 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Percentage != 62.5 {
		t.Fatalf("percentage want=62.5 got=%v", s.Percentage)
	}
}

func TestScore_TextIsNeitherValidNorNA(t *testing.T) {
	t.Parallel()

	s := Score(items(model.ScoreValue(2), model.TextValue("pendiente"), model.NAValue()), 2)
	if s.Valid != 1 || s.NA != 1 || s.Sum != 2 || s.Percentage != 100 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestScore_NoValidItemsIsZero(t *testing.T) {
	t.Parallel()

	faker := gofakeit.New(7)
	for i := 0; i < 50; i++ {
		n := faker.Number(0, 30)
		vals := make([]model.Value, n)
		for j := range vals {
			if faker.Bool() {
				vals[j] = model.NAValue()
			} else {
				vals[j] = model.TextValue(faker.Word())
			}
		}
		s := Score(items(vals...), float64(faker.Number(1, 5)))
		if s.Percentage != 0 || s.Valid != 0 || s.Sum != 0 {
			t.Fatalf("case %d: %+v", i, s)
		}
	}
}

func TestScore_PercentageBounded(t *testing.T) {
	t.Parallel()

	faker := gofakeit.New(11)
	for i := 0; i < 200; i++ {
		max := faker.Number(1, 4)
		n := faker.Number(1, 40)
		vals := make([]model.Value, n)
		for j := range vals {
			if faker.Number(0, 5) == 0 {
				vals[j] = model.NAValue()
				continue
			}
			vals[j] = model.ScoreValue(float64(faker.Number(0, max)))
		}
		s := Score(items(vals...), float64(max))
		if s.Percentage < 0 || s.Percentage > 100 {
			t.Fatalf("case %d: percentage out of range: %+v", i, s)
		}
		if s.Valid+s.NA != n {
			t.Fatalf("case %d: counts do not add up: %+v n=%d", i, s, n)
		}
	}
}

// TestPercentage_TiesGoToEven one or five points over eight valid items of max 2
func TestPercentage_TiesGoToEven(t *testing.T) {
	t.Parallel()

	if got := Percentage(1, 8, 2); got != 6.2 {
		t.Fatalf("1/16 want=6.2 got=%v", got)
	}
	if got := Percentage(5, 8, 2); got != 31.2 {
		t.Fatalf("5/16 want=31.2 got=%v", got)
	}
	if got := Percentage(5, 4, 2); got != 62.5 {
		t.Fatalf("5/8 want=62.5 got=%v", got)
	}
}

func TestRound1(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{
		62.5:    62.5,
		66.6666: 66.7,
		33.3333: 33.3,
		0.05:    0.1,
		87.25:   87.2,
		6.25:    6.2,
		31.25:   31.2,
		0.25:    0.2,
		0.35:    0.3,
		100:     100,
	}
	for in, want := range cases {
		if got := Round1(in); got != want {
			t.Fatalf("Round1(%v) want=%v got=%v", in, want, got)
		}
	}
}

func TestClassifier_SumAboveAllBoundsIsUnclassified(t *testing.T) {
	t.Parallel()

	c := NewClassifier([]config.Rule{
		{Max: 10, Label: "DEFICIENTE"},
		{Max: 20, Label: "REGULAR"},
		{Max: 30, Label: "BUENO"},
	}, "Sin Clasificación")

	if got := c.ClassifySummary(Summary{Sum: 35}, config.InputSum); got != "Sin Clasificación" {
		t.Fatalf("want sentinel, got %q", got)
	}
	if got := c.Classify(30); got != "BUENO" {
		t.Fatalf("bound is inclusive, got %q", got)
	}
	if got := c.Classify(10.5); got != "REGULAR" {
		t.Fatalf("got %q", got)
	}
	if got := c.Classify(-1); got != "DEFICIENTE" {
		t.Fatalf("got %q", got)
	}
}

func TestClassifier_SortsRules(t *testing.T) {
	t.Parallel()

	rules := []config.Rule{
		{Max: 100, Label: "Óptimo"},
		{Max: 50, Label: "Deficiente"},
		{Max: 75, Label: "Regular"},
	}
	c := NewClassifier(rules, "Sin Clasificación")

	if got := c.ClassifySummary(Summary{Sum: 200, Percentage: 62.5}, config.InputPercentage); got != "Regular" {
		t.Fatalf("got %q", got)
	}
	if rules[0].Label != "Óptimo" {
		t.Fatalf("caller rules must not be reordered")
	}
}

func TestClassifier_NeverPanicsWithoutRules(t *testing.T) {
	t.Parallel()

	c := NewFormClassifier(config.FormSettings{Classification: config.ClassificationSettings{Unclassified: "Sin Clasificación"}})
	faker := gofakeit.New(3)
	for i := 0; i < 20; i++ {
		if got := c.Classify(faker.Float64Range(-1000, 1000)); got != "Sin Clasificación" {
			t.Fatalf("got %q", got)
		}
	}
}

func TestSplitDeadline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, days, date string
	}{
		{"15 días", "15 días", ""},
		{"Plazo: 30 dias hábiles", "30 dias", ""},
		{"30/10/2025", "", "30/10/2025"},
		{"15 días (hasta 5/11/25)", "", "5/11/25"},
		{"Permanente", "Permanente", ""},
		{"  ", "", ""},
	}
	for _, c := range cases {
		days, date := SplitDeadline(c.in)
		if days != c.days || date != c.date {
			t.Fatalf("SplitDeadline(%q) = (%q, %q), want (%q, %q)", c.in, days, date, c.days, c.date)
		}
	}
}

func TestParseLimitDate(t *testing.T) {
	t.Parallel()

	got, ok := ParseLimitDate("5/11/25")
	if !ok || !got.Equal(time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v ok=%v", got, ok)
	}
	got, ok = ParseLimitDate("2025-12-01")
	if !ok || got.Month() != time.December {
		t.Fatalf("iso date: %v ok=%v", got, ok)
	}
	if _, ok := ParseLimitDate("Permanente"); ok {
		t.Fatalf("text should not parse")
	}
}

func TestDeadlineStatus(t *testing.T) {
	t.Parallel()

	today := time.Date(2025, 10, 16, 15, 30, 0, 0, time.UTC)
	day := func(offset int) time.Time { return time.Date(2025, 10, 16+offset, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		limit    time.Time
		verified bool
		want     string
	}{
		{day(-5), true, StatusDone},
		{time.Time{}, false, StatusNoDate},
		{day(-1), false, StatusOverdue},
		{day(0), false, StatusDueSoon},
		{day(3), false, StatusDueSoon},
		{day(4), false, StatusOnTrack},
		{day(10), false, StatusOnTrack},
		{day(11), false, StatusHeadroom},
	}
	for _, c := range cases {
		if got := DeadlineStatus(c.limit, c.verified, today); got != c.want {
			t.Fatalf("limit=%s verified=%v want=%s got=%s", c.limit.Format("2006-01-02"), c.verified, c.want, got)
		}
	}
}
