package domain

import (
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
)

// Assessment is the complete classification of one set of measurements.
type Assessment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	StudentID string    `json:"studentId,omitempty"`
	Status    string    `json:"status"` // CLASSIFIED or UNCLASSIFIED
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`

	// Category is zero when Status is UNCLASSIFIED.
	Category fuzzy.Category `json:"category,omitempty"`
	Score    float64        `json:"score"`

	// Inference trace
	Inputs        fuzzy.Inputs           `json:"inputs"`
	Memberships   fuzzy.Memberships      `json:"memberships"`
	FiredRules    []fuzzy.RuleEvaluation `json:"firedRules"`
	WeightedSum   float64                `json:"weightedSum"`
	TotalStrength float64                `json:"totalStrength"`

	// Advisory results (if any rules are loaded)
	Advisories []AdvisoryResult `json:"advisories,omitempty"`

	// Processing metadata
	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID             string `json:"traceId"`
	InferenceMs         int64  `json:"inferenceMs"`
	AdvisoryMs          int64  `json:"advisoryMs"`
	TotalMs             int64  `json:"totalMs"`
	RulesFired          int    `json:"rulesFired"`
	AdvisoriesEvaluated int    `json:"advisoriesEvaluated"`
	EngineVersion       string `json:"engineVersion"`
}

// Assessment status constants
const (
	StatusClassified   = "CLASSIFIED"
	StatusUnclassified = "UNCLASSIFIED"
)

// Classified reports whether a category was assigned.
func (a *Assessment) Classified() bool {
	return a.Status == StatusClassified
}

// AdvisoriesComplete reports whether every advisory produced an outcome.
func (a *Assessment) AdvisoriesComplete() bool {
	for _, r := range a.Advisories {
		if r.Outcome == AdvisoryError {
			return false
		}
	}
	return true
}

// AssessmentResponse is the API response for an assessment.
type AssessmentResponse struct {
	AssessmentID string                 `json:"assessmentId"`
	StudentID    string                 `json:"studentId,omitempty"`
	TenantID     string                 `json:"tenantId"`
	Status       string                 `json:"status"`
	Category     string                 `json:"category,omitempty"`
	Score        float64                `json:"score"`
	Method       string                 `json:"method"`
	Reasons      []string               `json:"reasons,omitempty"`
	Memberships  fuzzy.Memberships      `json:"memberships"`
	FiredRules   []fuzzy.RuleEvaluation `json:"firedRules"`
	Metadata     AssessmentMetadata     `json:"metadata"`
}

// ToResponse converts an Assessment to an API response. Reasons collects
// the advisories that ended in a watch or alert band.
func (a *Assessment) ToResponse() *AssessmentResponse {
	var reasons []string
	for _, r := range a.Advisories {
		if r.Outcome == AdvisoryWatch || r.Outcome == AdvisoryAlert {
			reasons = append(reasons, r.Reason)
		}
	}

	resp := &AssessmentResponse{
		AssessmentID: a.ID,
		StudentID:    a.StudentID,
		TenantID:     a.TenantID,
		Status:       a.Status,
		Score:        a.Score,
		Method:       a.Method,
		Reasons:      reasons,
		Memberships:  a.Memberships,
		FiredRules:   a.FiredRules,
		Metadata:     a.Metadata,
	}
	if a.Classified() {
		resp.Category = a.Category.String()
	}
	return resp
}
