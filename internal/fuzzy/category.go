package fuzzy

import (
	"fmt"
	"strings"
)

// Category is a performance class. The numeric value is its priority rank:
// lower ranks are more pessimistic and win strict-mode ties.
type Category uint8

const (
	Poor Category = iota + 1
	NeedsImprovement
	Satisfactory
	Good
	Excellent
)

// Categories lists every category in rank order.
var Categories = [...]Category{Poor, NeedsImprovement, Satisfactory, Good, Excellent}

var categoryNames = map[Category]string{
	Poor:             "Poor",
	NeedsImprovement: "Needs Improvement",
	Satisfactory:     "Satisfactory",
	Good:             "Good",
	Excellent:        "Excellent",
}

// Representative crisp score of each category's consequent.
var crispValues = map[Category]float64{
	Poor:             20,
	NeedsImprovement: 50,
	Satisfactory:     70,
	Good:             85,
	Excellent:        95,
}

// String returns the display name, e.g. "Needs Improvement".
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return ""
}

// Rank returns the tie-break priority (Poor=1 … Excellent=5).
func (c Category) Rank() int {
	return int(c)
}

// CrispValue returns the representative score used by Tsukamoto
// defuzzification.
func (c Category) CrispValue() float64 {
	return crispValues[c]
}

// Valid reports whether c is one of the five categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// MarshalText encodes the category by display name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any spelling ParseCategory accepts. An empty string
// decodes to the zero Category (unclassified).
func (c *Category) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = 0
		return nil
	}
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var categoryAliases = map[string]Category{
	"poor":              Poor,
	"kurang":            Poor,
	"needs improvement": NeedsImprovement,
	"needs_improvement": NeedsImprovement,
	"needs-improvement": NeedsImprovement,
	"perlu perbaikan":   NeedsImprovement,
	"satisfactory":      Satisfactory,
	"memuaskan":         Satisfactory,
	"good":              Good,
	"baik":              Good,
	"excellent":         Excellent,
	"sangat baik":       Excellent,
}

// ParseCategory resolves a category name case-insensitively. Indonesian
// labels found in the historical datasets are accepted too.
func ParseCategory(s string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown performance category %q", s)
}

// CategoryForScore maps a crisp score to its category. Boundaries are
// inclusive on the lower category up to Satisfactory. Unlike the historical
// "score <= 95 is Good" rule, a score of exactly 95 is Excellent: 95 is the
// Excellent crisp value and the weighted average never exceeds it, so under
// the old rule no input could ever be classified Excellent.
func CategoryForScore(score float64) Category {
	switch {
	case score <= 40:
		return Poor
	case score <= 60:
		return NeedsImprovement
	case score <= 80:
		return Satisfactory
	case score < excellentFloor:
		return Good
	default:
		return Excellent
	}
}

// excellentFloor absorbs the rounding of w*95/w.
const excellentFloor = 95 - 1e-9
