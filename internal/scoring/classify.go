package scoring

import (
	"sort"

	"github.com/portillolaupa-ui/ucc-supervision/internal/config"
)

// Classifier maps a value to the label of the first band whose upper bound reaches it
type Classifier struct {
	rules        []config.Rule
	unclassified string
}

// NewClassifier copies and sorts the rules ascending by bound
func NewClassifier(rules []config.Rule, unclassified string) *Classifier {
	sorted := make([]config.Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Max < sorted[j].Max })
	return &Classifier{rules: sorted, unclassified: unclassified}
}

// NewFormClassifier classifier configured for a form
func NewFormClassifier(settings config.FormSettings) *Classifier {
	return NewClassifier(settings.Classification.Rules, settings.Classification.Unclassified)
}

// Classify returns the band label, or the unclassified label when value exceeds every bound
func (c *Classifier) Classify(value float64) string {
	for _, r := range c.rules {
		if value <= r.Max {
			return r.Label
		}
	}
	return c.unclassified
}

// ClassifySummary classifies the summary field selected by input (sum or percentage)
func (c *Classifier) ClassifySummary(s Summary, input string) string {
	if input == config.InputSum {
		return c.Classify(s.Sum)
	}
	return c.Classify(s.Percentage)
}
