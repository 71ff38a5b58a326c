package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvisoriesComplete(t *testing.T) {
	a := &Assessment{Status: StatusClassified}
	assert.True(t, a.AdvisoriesComplete(), "no advisories")

	a.Advisories = []AdvisoryResult{
		{RuleID: "low-attendance", Outcome: AdvisoryOK},
		{RuleID: "exam-drop", Outcome: AdvisoryWatch, Reason: "final exam well below midterm"},
	}
	assert.True(t, a.AdvisoriesComplete())

	a.Advisories = append(a.Advisories, AdvisoryResult{
		RuleID:  "borderline-score",
		Outcome: AdvisoryError,
		Reason:  "evaluation error: context canceled",
	})
	assert.False(t, a.AdvisoriesComplete())

	resp := a.ToResponse()
	assert.Equal(t, []string{"final exam well below midterm"}, resp.Reasons)
}
