package fuzzy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoActiveRule is returned when no rule fires (or every category
// membership is zero) and a category cannot be determined.
var ErrNoActiveRule = errors.New("no active rule")

// Defuzzify runs inference and maps the weighted-average score to a
// category. The score is returned alongside so callers can report it.
func Defuzzify(in Inputs) (Category, float64, error) {
	result := Infer(in)
	if !result.Fired() {
		return 0, 0, ErrNoActiveRule
	}
	return CategoryForScore(result.Crisp), result.Crisp, nil
}

// Minimum membership a category needs to be considered in strict mode.
var strictThresholds = map[Category]float64{
	Poor:             0.3,
	NeedsImprovement: 0.2,
	Satisfactory:     0.4,
	Good:             0.5,
	Excellent:        0.7,
}

// StrictThreshold returns the strict-mode survival threshold of c.
func StrictThreshold(c Category) float64 {
	return strictThresholds[c]
}

// DefuzzifyStrict picks the category with the highest membership among
// those meeting their threshold. Ties go to the lower rank. When nothing
// meets its threshold it falls back to DefuzzifyMax.
func DefuzzifyStrict(memberships map[Category]float64) (Category, error) {
	var (
		best    Category
		bestVal float64
	)
	for _, c := range Categories {
		v := memberships[c]
		if v <= 0 || v < strictThresholds[c] {
			continue
		}
		if best == 0 || v > bestVal {
			best, bestVal = c, v
		}
	}
	if best != 0 {
		return best, nil
	}
	return DefuzzifyMax(memberships)
}

// DefuzzifyMax returns the category with the highest membership, ties to
// the lower rank. It fails with ErrNoActiveRule when all are zero.
func DefuzzifyMax(memberships map[Category]float64) (Category, error) {
	var (
		best    Category
		bestVal float64
	)
	for _, c := range Categories {
		if v := memberships[c]; v > bestVal {
			best, bestVal = c, v
		}
	}
	if best == 0 {
		return 0, ErrNoActiveRule
	}
	return best, nil
}

// Method selects a defuzzification strategy.
type Method uint8

const (
	// Tsukamoto maps the weighted-average crisp score to a category.
	Tsukamoto Method = iota
	// Strict applies per-category thresholds to the max firing strength
	// of each consequent.
	Strict
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case Tsukamoto:
		return "tsukamoto"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("method(%d)", m)
	}
}

// MarshalText encodes the method by name.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a method name.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMethod resolves a method name. The empty string means Tsukamoto.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tsukamoto", "weighted":
		return Tsukamoto, nil
	case "strict":
		return Strict, nil
	default:
		return 0, fmt.Errorf("unknown defuzzification method %q", s)
	}
}

// DefuzzifyWith classifies an inference result with the given method.
// The returned score is always the weighted-average crisp value.
func DefuzzifyWith(method Method, result *InferenceResult) (Category, float64, error) {
	if !result.Fired() {
		return 0, 0, ErrNoActiveRule
	}
	switch method {
	case Tsukamoto:
		return CategoryForScore(result.Crisp), result.Crisp, nil
	case Strict:
		c, err := DefuzzifyStrict(result.CategoryMemberships())
		if err != nil {
			return 0, result.Crisp, err
		}
		return c, result.Crisp, nil
	default:
		return 0, 0, fmt.Errorf("unknown defuzzification method %d", method)
	}
}
