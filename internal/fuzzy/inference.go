package fuzzy

// RuleEvaluation is the contribution of one fired rule.
type RuleEvaluation struct {
	Index      int      `json:"index"`
	Strength   float64  `json:"strength"`
	CrispValue float64  `json:"crispValue"`
	Weighted   float64  `json:"weighted"`
	Category   Category `json:"category"`
}

// InferenceResult aggregates one Tsukamoto inference.
//
// Crisp is WeightedSum/TotalStrength and is only meaningful when
// TotalStrength > 0; otherwise it is the 0 sentinel and Fired() is false.
type InferenceResult struct {
	Inputs        Inputs           `json:"inputs"`
	Memberships   Memberships      `json:"memberships"`
	WeightedSum   float64          `json:"weightedSum"`
	TotalStrength float64          `json:"totalStrength"`
	Crisp         float64          `json:"crisp"`
	Rules         []RuleEvaluation `json:"rules"`
}

// Fired reports whether at least one rule had non-zero strength.
func (r *InferenceResult) Fired() bool {
	return r.TotalStrength > 0
}

// CategoryMemberships aggregates the fired rules into a per-category
// degree, taking the maximum strength among rules sharing a consequent.
// This is the input shape of DefuzzifyStrict; it is not arithmetically
// equivalent to the weighted average behind Crisp.
func (r *InferenceResult) CategoryMemberships() map[Category]float64 {
	out := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		out[c] = 0
	}
	for _, re := range r.Rules {
		if re.Strength > out[re.Category] {
			out[re.Category] = re.Strength
		}
	}
	return out
}

// Infer runs every rule against the fuzzified inputs. It never fails: a
// result with TotalStrength == 0 means no rule covers the inputs.
func Infer(in Inputs) InferenceResult {
	ms := Fuzzify(in)
	result := InferenceResult{
		Inputs:      in,
		Memberships: ms,
	}

	for i := range ruleBase {
		rule := &ruleBase[i]

		strength := firingStrength(rule, &ms)
		if strength <= 0 {
			continue
		}

		crisp := rule.Then.CrispValue()
		weighted := strength * crisp

		result.WeightedSum += weighted
		result.TotalStrength += strength
		result.Rules = append(result.Rules, RuleEvaluation{
			Index:      i,
			Strength:   strength,
			CrispValue: crisp,
			Weighted:   weighted,
			Category:   rule.Then,
		})
	}

	if result.TotalStrength > 0 {
		result.Crisp = result.WeightedSum / result.TotalStrength
	}

	return result
}

// InferValues is Infer over positional arguments.
func InferValues(gpa, cca, attendance, midterm, finalExam float64) InferenceResult {
	return Infer(Inputs{
		GPA:        gpa,
		CCA:        cca,
		Attendance: attendance,
		Midterm:    midterm,
		FinalExam:  finalExam,
	})
}

// firingStrength is the fuzzy AND (minimum) of the degrees the rule selects.
// A NaN degree, from a NaN measurement, counts as 0.
func firingStrength(rule *Rule, ms *Memberships) float64 {
	strength := 1.0
	for m := Measurement(0); m < NumMeasurements; m++ {
		d := ms[m][rule.If[m]]
		if !(d >= 0) {
			return 0
		}
		if d < strength {
			strength = d
		}
		if strength == 0 {
			return 0
		}
	}
	return strength
}

// FiringStrength evaluates rule index i of the rule base against in. It
// returns false when i is out of range.
func FiringStrength(i int, in Inputs) (float64, bool) {
	if i < 0 || i >= len(ruleBase) {
		return 0, false
	}
	ms := Fuzzify(in)
	return firingStrength(&ruleBase[i], &ms), true
}
