// Package decision turns five measurements into a finished assessment:
// fuzzy inference, defuzzification and advisory evaluation.
package decision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EngineVersion is stamped on every assessment.
const EngineVersion = "kestrel-1.0"

var tracer = otel.Tracer("github.com/edumetrics/kestrel/internal/decision")

// Processor produces assessments. The advisory engine is optional.
type Processor struct {
	// Method is used when the input does not name one.
	Method fuzzy.Method

	advisories *rules.Engine
}

// NewProcessor creates a processor with the given default method.
func NewProcessor(method fuzzy.Method, advisories *rules.Engine) *Processor {
	return &Processor{
		Method:     method,
		advisories: advisories,
	}
}

// AssessInput contains all data needed for one assessment.
type AssessInput struct {
	TenantID  string
	StudentID string
	TraceID   string
	Inputs    fuzzy.Inputs
	// Method overrides the processor default when set.
	Method    *fuzzy.Method
	StartTime time.Time
}

// Assess classifies the input. It never fails: inputs no rule covers
// produce an UNCLASSIFIED assessment with a zero score.
func (p *Processor) Assess(ctx context.Context, input *AssessInput) *domain.Assessment {
	ctx, span := tracer.Start(ctx, "decision.Assess")
	defer span.End()

	start := time.Now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	method := p.Method
	if input.Method != nil {
		method = *input.Method
	}

	result := fuzzy.Infer(input.Inputs)
	category, score, err := fuzzy.DefuzzifyWith(method, &result)
	inferenceMs := time.Since(start).Milliseconds()

	a := &domain.Assessment{
		ID:            uuid.New().String(),
		TenantID:      input.TenantID,
		StudentID:     input.StudentID,
		Status:        domain.StatusClassified,
		Method:        method.String(),
		Timestamp:     time.Now().UTC(),
		Category:      category,
		Score:         score,
		Inputs:        input.Inputs,
		Memberships:   result.Memberships,
		FiredRules:    result.Rules,
		WeightedSum:   result.WeightedSum,
		TotalStrength: result.TotalStrength,
	}
	if a.FiredRules == nil {
		a.FiredRules = []fuzzy.RuleEvaluation{}
	}

	if err != nil {
		if !errors.Is(err, fuzzy.ErrNoActiveRule) {
			span.RecordError(err)
		}
		a.Status = domain.StatusUnclassified
		a.Category = 0
		a.Score = 0
	}

	advisoryStart := time.Now()
	if p.advisories != nil && p.advisories.RulesCount() > 0 {
		advisories, err := p.advisories.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:    input.TenantID,
			Inputs:      input.Inputs,
			Score:       a.Score,
			Category:    a.Category,
			RulesFired:  len(result.Rules),
			Memberships: result.Memberships,
		})
		if err != nil {
			slog.Warn("advisory evaluation incomplete",
				"tenant_id", input.TenantID,
				"student_id", input.StudentID,
				"error", err,
			)
			span.SetStatus(codes.Error, "advisory evaluation incomplete")
		}
		a.Advisories = advisories
	}

	a.Metadata = domain.AssessmentMetadata{
		TraceID:             input.TraceID,
		InferenceMs:         inferenceMs,
		AdvisoryMs:          time.Since(advisoryStart).Milliseconds(),
		TotalMs:             time.Since(input.StartTime).Milliseconds(),
		RulesFired:          len(result.Rules),
		AdvisoriesEvaluated: len(a.Advisories),
		EngineVersion:       EngineVersion,
	}

	span.SetAttributes(
		attribute.String("tenant_id", input.TenantID),
		attribute.String("method", a.Method),
		attribute.String("status", a.Status),
		attribute.Int("rules_fired", a.Metadata.RulesFired),
	)
	if a.Classified() {
		span.SetAttributes(attribute.String("category", a.Category.String()))
	}

	return a
}

// ShouldNotify reports whether an assessment carries an alert advisory or
// could not be classified.
func ShouldNotify(a *domain.Assessment) bool {
	if !a.Classified() {
		return true
	}
	for _, r := range a.Advisories {
		if r.Outcome == domain.AdvisoryAlert {
			return true
		}
	}
	return false
}
