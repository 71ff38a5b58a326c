// Package fuzzy implements the Tsukamoto inference engine that classifies
// student performance from five academic measurements.
//
// The pipeline is: fuzzification of each measurement into Low/Medium/High
// degrees, rule firing with fuzzy AND (minimum), weighted accumulation of
// each fired rule's crisp value, and weighted-average defuzzification.
package fuzzy

import "fmt"

// Label is a linguistic level of a measurement.
type Label uint8

const (
	Low Label = iota
	Medium
	High
)

// String returns the label name.
func (l Label) String() string {
	switch l {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the label by name.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a label name.
func (l *Label) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Low":
		*l = Low
	case "Medium":
		*l = Medium
	case "High":
		*l = High
	default:
		return fmt.Errorf("unknown label %q", text)
	}
	return nil
}

// Triple holds the degrees of membership in Low, Medium and High, indexed
// by Label. The degrees need not sum to 1.
type Triple [3]float64

// Degree returns the membership degree for l.
func (t Triple) Degree(l Label) float64 {
	return t[l]
}

func (t Triple) Low() float64    { return t[Low] }
func (t Triple) Medium() float64 { return t[Medium] }
func (t Triple) High() float64   { return t[High] }

// MarshalJSON encodes the triple as {"low":..,"medium":..,"high":..}.
func (t Triple) MarshalJSON() ([]byte, error) {
	return marshalTriple(t)
}

// LeftShoulder is 1 at or below Full and decays linearly to 0 at Zero.
type LeftShoulder struct {
	Full float64 `json:"full"`
	Zero float64 `json:"zero"`
}

// Degree evaluates the shoulder at x.
func (s LeftShoulder) Degree(x float64) float64 {
	if x <= s.Full {
		return 1
	}
	if x >= s.Zero {
		return 0
	}
	return (s.Zero - x) / (s.Zero - s.Full)
}

// RightShoulder is 0 at or below Zero and rises linearly to 1 at Full.
type RightShoulder struct {
	Zero float64 `json:"zero"`
	Full float64 `json:"full"`
}

// Degree evaluates the shoulder at x.
func (s RightShoulder) Degree(x float64) float64 {
	if x >= s.Full {
		return 1
	}
	if x <= s.Zero {
		return 0
	}
	return (x - s.Zero) / (s.Full - s.Zero)
}

// Trapezoid rises from A to B, is flat at 1 between B and C and falls to 0
// at D. B == C gives a triangle.
type Trapezoid struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
	D float64 `json:"d"`
}

// Degree evaluates the trapezoid at x.
func (t Trapezoid) Degree(x float64) float64 {
	switch {
	case x < t.A || x > t.D:
		return 0
	case x >= t.B && x <= t.C:
		return 1
	case x < t.B:
		// A <= x < B, so B > A here.
		return (x - t.A) / (t.B - t.A)
	default:
		// C < x <= D, so D > C here.
		return (t.D - x) / (t.D - t.C)
	}
}
