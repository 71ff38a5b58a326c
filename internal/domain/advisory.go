package domain

// AdvisoryRule is a CEL expression evaluated after classification to flag
// students worth a closer look. Advisories never change the category.
type AdvisoryRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression yielding a number or a bool
	Expression string `json:"expression"`

	// Bands map the expression value to an outcome
	Bands []AdvisoryBand `json:"bands"`

	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// AdvisoryBand maps a value range [LowerLimit, UpperLimit) to an outcome.
// A nil limit is unbounded.
type AdvisoryBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".ok", ".watch", ".alert"
	Reason     string   `json:"reason"`
}

// AdvisoryResult is the output of one advisory rule.
type AdvisoryResult struct {
	RuleID    string  `json:"ruleId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// Advisory outcomes
const (
	AdvisoryOK    = ".ok"
	AdvisoryWatch = ".watch"
	AdvisoryAlert = ".alert"
	AdvisoryError = ".err"
)
