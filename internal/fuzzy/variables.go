package fuzzy

import (
	"encoding/json"
	"fmt"
)

// Measurement identifies one of the five academic inputs.
type Measurement uint8

const (
	GPA Measurement = iota
	CCA
	Attendance
	Midterm
	FinalExam
)

// NumMeasurements is the number of inputs every rule conditions on.
const NumMeasurements = 5

var measurementNames = [NumMeasurements]string{"gpa", "cca", "attendance", "midterm", "final_exam"}

// String returns the snake_case name used in JSON and CEL activations.
func (m Measurement) String() string {
	if int(m) < len(measurementNames) {
		return measurementNames[m]
	}
	return fmt.Sprintf("measurement(%d)", m)
}

// MarshalText encodes the measurement by name.
func (m Measurement) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Variable is the fuzzy partition of one measurement's domain.
type Variable struct {
	Measurement Measurement   `json:"measurement"`
	Min         float64       `json:"min"`
	Max         float64       `json:"max"`
	Low         LeftShoulder  `json:"low"`
	Medium      Trapezoid     `json:"medium"`
	High        RightShoulder `json:"high"`
}

// Fuzzify converts x into its Low/Medium/High degrees. Values outside
// [Min, Max] are not rejected; they saturate at the boundary shapes.
func (v Variable) Fuzzify(x float64) Triple {
	return Triple{
		Low:    v.Low.Degree(x),
		Medium: v.Medium.Degree(x),
		High:   v.High.Degree(x),
	}
}

// InDomain reports whether x lies within the modeled range.
func (v Variable) InDomain(x float64) bool {
	return x >= v.Min && x <= v.Max
}

// Breakpoints for the five variables. The overlaps (e.g. GPA Medium and
// High between 2.8 and 3.2) are part of the calibration and are kept as is.
var variables = [NumMeasurements]Variable{
	GPA: {
		Measurement: GPA,
		Min:         0, Max: 4,
		Low:         LeftShoulder{Full: 1.8, Zero: 2.2},
		Medium:      Trapezoid{A: 1.8, B: 2.5, C: 2.5, D: 3.2},
		High:        RightShoulder{Zero: 2.8, Full: 3.2},
	},
	CCA: {
		Measurement: CCA,
		Min:         0, Max: 100,
		Low:         LeftShoulder{Full: 50, Zero: 55},
		Medium:      Trapezoid{A: 50, B: 65, C: 65, D: 75},
		High:        RightShoulder{Zero: 70, Full: 80},
	},
	Attendance: {
		Measurement: Attendance,
		Min:         0, Max: 1,
		Low:         LeftShoulder{Full: 0.60, Zero: 0.65},
		Medium:      Trapezoid{A: 0.60, B: 0.75, C: 0.75, D: 0.85},
		High:        RightShoulder{Zero: 0.80, Full: 0.90},
	},
	Midterm: {
		Measurement: Midterm,
		Min:         0, Max: 100,
		Low:         LeftShoulder{Full: 55, Zero: 60},
		Medium:      Trapezoid{A: 55, B: 65, C: 65, D: 75},
		High:        RightShoulder{Zero: 70, Full: 80},
	},
	FinalExam: {
		Measurement: FinalExam,
		Min:         0, Max: 100,
		Low:         LeftShoulder{Full: 52, Zero: 54},
		Medium:      Trapezoid{A: 52, B: 70, C: 70, D: 82},
		High:        RightShoulder{Zero: 78, Full: 82},
	},
}

// Variables returns a copy of the five variable partitions.
func Variables() []Variable {
	out := make([]Variable, NumMeasurements)
	copy(out, variables[:])
	return out
}

// VariableFor returns the partition of m.
func VariableFor(m Measurement) Variable {
	return variables[m]
}

func FuzzifyGPA(gpa float64) Triple               { return variables[GPA].Fuzzify(gpa) }
func FuzzifyCCA(cca float64) Triple               { return variables[CCA].Fuzzify(cca) }
func FuzzifyAttendance(attendance float64) Triple { return variables[Attendance].Fuzzify(attendance) }
func FuzzifyMidterm(midterm float64) Triple       { return variables[Midterm].Fuzzify(midterm) }
func FuzzifyFinalExam(finalExam float64) Triple   { return variables[FinalExam].Fuzzify(finalExam) }

// Inputs are the five raw measurements of one student.
type Inputs struct {
	GPA        float64 `json:"gpa"`
	CCA        float64 `json:"cca"`
	Attendance float64 `json:"attendance"`
	Midterm    float64 `json:"midterm"`
	FinalExam  float64 `json:"finalExam"`
}

// Value returns the raw value of m.
func (in Inputs) Value(m Measurement) float64 {
	switch m {
	case GPA:
		return in.GPA
	case CCA:
		return in.CCA
	case Attendance:
		return in.Attendance
	case Midterm:
		return in.Midterm
	case FinalExam:
		return in.FinalExam
	}
	return 0
}

// Validate checks every measurement against its modeled domain. The engine
// itself accepts any value; callers use this to reject bad records.
func (in Inputs) Validate() error {
	for m := Measurement(0); m < NumMeasurements; m++ {
		v := variables[m]
		if x := in.Value(m); !v.InDomain(x) {
			return fmt.Errorf("%s must be between %g and %g, got %g", m, v.Min, v.Max, x)
		}
	}
	return nil
}

// Memberships holds one Triple per measurement.
type Memberships [NumMeasurements]Triple

// Of returns the triple for m.
func (ms Memberships) Of(m Measurement) Triple {
	return ms[m]
}

// MarshalJSON encodes the memberships keyed by measurement name.
func (ms Memberships) MarshalJSON() ([]byte, error) {
	out := make(map[string]Triple, NumMeasurements)
	for m := Measurement(0); m < NumMeasurements; m++ {
		out[m.String()] = ms[m]
	}
	return json.Marshal(out)
}

// Fuzzify computes the memberships of all five inputs.
func Fuzzify(in Inputs) Memberships {
	var ms Memberships
	for m := Measurement(0); m < NumMeasurements; m++ {
		ms[m] = variables[m].Fuzzify(in.Value(m))
	}
	return ms
}

// UnmarshalJSON decodes memberships keyed by measurement name.
func (ms *Memberships) UnmarshalJSON(data []byte) error {
	var in map[string]Triple
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for name, t := range in {
		m, err := ParseMeasurement(name)
		if err != nil {
			return err
		}
		ms[m] = t
	}
	return nil
}

// ParseMeasurement resolves a snake_case measurement name.
func ParseMeasurement(name string) (Measurement, error) {
	for i, n := range measurementNames {
		if n == name {
			return Measurement(i), nil
		}
	}
	return 0, fmt.Errorf("unknown measurement %q", name)
}

// UnmarshalText decodes a measurement name.
func (m *Measurement) UnmarshalText(text []byte) error {
	parsed, err := ParseMeasurement(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type tripleJSON struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

func marshalTriple(t Triple) ([]byte, error) {
	return json.Marshal(tripleJSON{t[Low], t[Medium], t[High]})
}

// UnmarshalJSON decodes {"low":..,"medium":..,"high":..}.
func (t *Triple) UnmarshalJSON(data []byte) error {
	var tj tripleJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	*t = Triple{tj.Low, tj.Medium, tj.High}
	return nil
}
