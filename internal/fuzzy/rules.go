package fuzzy

// Rule maps one combination of linguistic labels, indexed by Measurement,
// to a performance category.
type Rule struct {
	If   [NumMeasurements]Label `json:"if"`
	Then Category               `json:"then"`
}

// Label returns the condition the rule places on m.
func (r Rule) Label(m Measurement) Label {
	return r.If[m]
}

// ruleBase is the fixed, ordered rule table. It is never written after
// package initialization, so concurrent readers need no locking.
var ruleBase = [...]Rule{
	// Predominantly low profiles.
	{If: [NumMeasurements]Label{Low, Low, Low, Low, Low}, Then: Poor},
	{If: [NumMeasurements]Label{Low, Low, Low, Low, Medium}, Then: Poor},
	{If: [NumMeasurements]Label{Low, Low, Low, Medium, Low}, Then: Poor},
	{If: [NumMeasurements]Label{Low, Low, Medium, Low, Low}, Then: Poor},
	{If: [NumMeasurements]Label{Low, Medium, Low, Low, Low}, Then: Poor},
	{If: [NumMeasurements]Label{Medium, Low, Low, Low, Low}, Then: Poor},

	// Mixed low/medium profiles.
	{If: [NumMeasurements]Label{Medium, Medium, Medium, Low, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Medium, Medium, Medium, Low}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Medium, Low, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Low, Medium, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Medium, Medium, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Low, Medium, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Medium, Low, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Medium, Medium, Low, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Medium, Medium, Medium, Low}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Low, Low, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Low, Medium, Low, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Low, Medium, Medium, Low}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Medium, Low, Low, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Medium, Low, Medium, Low}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Medium, Medium, Low, Low}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Low, High, Medium, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Low, Medium, Low, Low, Medium}, Then: NeedsImprovement},
	{If: [NumMeasurements]Label{Medium, Low, Low, Low, Medium}, Then: NeedsImprovement},

	// Medium profiles with at most two high indicators.
	{If: [NumMeasurements]Label{Medium, Medium, Medium, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{High, Medium, Medium, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, High, Medium, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, High, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, Medium, High, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, Medium, Medium, High}, Then: Satisfactory},
	{If: [NumMeasurements]Label{High, High, Medium, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{High, Medium, High, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{High, Medium, Medium, High, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{High, Medium, Medium, Medium, High}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, High, High, Medium, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, High, Medium, High, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, High, Medium, Medium, High}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, High, High, Medium}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, High, Medium, High}, Then: Satisfactory},
	{If: [NumMeasurements]Label{Medium, Medium, Medium, High, High}, Then: Satisfactory},

	// Three or four high indicators.
	{If: [NumMeasurements]Label{High, High, High, Medium, Medium}, Then: Good},
	{If: [NumMeasurements]Label{High, High, Medium, High, Medium}, Then: Good},
	{If: [NumMeasurements]Label{High, High, Medium, Medium, High}, Then: Good},
	{If: [NumMeasurements]Label{High, Medium, High, High, Medium}, Then: Good},
	{If: [NumMeasurements]Label{High, Medium, High, Medium, High}, Then: Good},
	{If: [NumMeasurements]Label{High, Medium, Medium, High, High}, Then: Good},
	{If: [NumMeasurements]Label{Medium, High, High, High, Medium}, Then: Good},
	{If: [NumMeasurements]Label{Medium, High, High, Medium, High}, Then: Good},
	{If: [NumMeasurements]Label{Medium, High, Medium, High, High}, Then: Good},
	{If: [NumMeasurements]Label{Medium, Medium, High, High, High}, Then: Good},
	{If: [NumMeasurements]Label{High, High, High, High, Medium}, Then: Good},
	{If: [NumMeasurements]Label{High, High, High, Medium, High}, Then: Good},
	{If: [NumMeasurements]Label{High, High, Medium, High, High}, Then: Good},
	{If: [NumMeasurements]Label{High, Medium, High, High, High}, Then: Good},
	{If: [NumMeasurements]Label{Medium, High, High, High, High}, Then: Good},

	{If: [NumMeasurements]Label{High, High, High, High, High}, Then: Excellent},
	{If: [NumMeasurements]Label{High, Medium, High, High, High}, Then: Excellent},
	{If: [NumMeasurements]Label{High, High, Medium, High, High}, Then: Excellent},
}

// Rules returns a copy of the rule base in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(ruleBase))
	copy(out, ruleBase[:])
	return out
}

// RuleCount returns the number of rules in the rule base.
func RuleCount() int {
	return len(ruleBase)
}
