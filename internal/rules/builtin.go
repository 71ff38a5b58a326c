package rules

import "github.com/edumetrics/kestrel/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultAdvisories returns the global advisory set installed by
// "kestrel seed-advisories". Tenants may override any rule by ID.
func DefaultAdvisories() []*domain.AdvisoryRule {
	return []*domain.AdvisoryRule{
		{
			ID:          "low-attendance",
			TenantID:    domain.GlobalTenantID,
			Name:        "Low attendance",
			Description: "Attendance rate below the level most passing students keep.",
			Version:     "1.0.0",
			Expression:  "attendance",
			Bands: []domain.AdvisoryBand{
				{UpperLimit: limit(0.6), Outcome: domain.AdvisoryAlert, Reason: "attendance below 60%"},
				{LowerLimit: limit(0.6), UpperLimit: limit(0.75), Outcome: domain.AdvisoryWatch, Reason: "attendance below 75%"},
				{LowerLimit: limit(0.75), Outcome: domain.AdvisoryOK, Reason: "attendance on track"},
			},
			Weight:  1,
			Enabled: true,
		},
		{
			ID:          "exam-drop",
			TenantID:    domain.GlobalTenantID,
			Name:        "Final exam drop",
			Description: "Final exam mark well below the midterm mark.",
			Version:     "1.0.0",
			Expression:  "midterm - final_exam",
			Bands: []domain.AdvisoryBand{
				{UpperLimit: limit(15), Outcome: domain.AdvisoryOK, Reason: "exam results consistent"},
				{LowerLimit: limit(15), UpperLimit: limit(25), Outcome: domain.AdvisoryWatch, Reason: "final exam dropped 15+ points from midterm"},
				{LowerLimit: limit(25), Outcome: domain.AdvisoryAlert, Reason: "final exam dropped 25+ points from midterm"},
			},
			Weight:  1,
			Enabled: true,
		},
		{
			ID:          "borderline-score",
			TenantID:    domain.GlobalTenantID,
			Name:        "Borderline score",
			Description: "Crisp score within two points of the Poor/Needs Improvement boundary.",
			Version:     "1.0.0",
			Expression:  "classified && score > 38.0 && score <= 42.0",
			Bands: []domain.AdvisoryBand{
				{UpperLimit: limit(1), Outcome: domain.AdvisoryOK, Reason: "score clear of the failing boundary"},
				{LowerLimit: limit(1), Outcome: domain.AdvisoryWatch, Reason: "score near the failing boundary"},
			},
			Weight:  0.5,
			Enabled: true,
		},
		{
			ID:          "unclassified",
			TenantID:    domain.GlobalTenantID,
			Name:        "No rule coverage",
			Description: "No fuzzy rule fired, so no category could be assigned.",
			Version:     "1.0.0",
			Expression:  "rules_fired == 0",
			Bands: []domain.AdvisoryBand{
				{UpperLimit: limit(1), Outcome: domain.AdvisoryOK, Reason: "classified"},
				{LowerLimit: limit(1), Outcome: domain.AdvisoryAlert, Reason: "measurements fall outside the rule base"},
			},
			Weight:  1,
			Enabled: true,
		},
	}
}
