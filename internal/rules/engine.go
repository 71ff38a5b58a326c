// Package rules evaluates tenant-configured CEL advisory rules against a
// finished classification.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Engine compiles advisory expressions once and evaluates them in parallel.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.AdvisoryRule
	Program cel.Program
}

// NewEngine creates an advisory engine. maxWorkers bounds how many rules
// evaluate concurrently for one assessment.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("gpa", cel.DoubleType),
		cel.Variable("cca", cel.DoubleType),
		cel.Variable("attendance", cel.DoubleType),
		cel.Variable("midterm", cel.DoubleType),
		cel.Variable("final_exam", cel.DoubleType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("category_rank", cel.IntType),
		cel.Variable("classified", cel.BoolType),
		cel.Variable("rules_fired", cel.IntType),
		cel.Variable("membership", cel.MapType(cel.StringType, cel.MapType(cel.StringType, cel.DoubleType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.AdvisoryRule) error {
	if cfg == nil {
		return fmt.Errorf("advisory rule is required")
	}
	if cfg.ID == "" {
		return fmt.Errorf("advisory rule id is required")
	}
	if err := validateBands(cfg.Bands); err != nil {
		return fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule, replacing any rule with the same ID.
func (e *Engine) LoadRule(cfg *domain.AdvisoryRule) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiledRules[cfg.ID] = compiled
	e.mu.Unlock()
	return nil
}

// ReloadRules atomically swaps the loaded set for the enabled rules in
// configs. On a compile error the previous set stays in place.
func (e *Engine) ReloadRules(configs []*domain.AdvisoryRule) error {
	next := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = next
	e.mu.Unlock()
	return nil
}

// EvaluateInput is the classification an advisory run looks at.
type EvaluateInput struct {
	TenantID    string
	Inputs      fuzzy.Inputs
	Score       float64
	Category    fuzzy.Category
	RulesFired  int
	Memberships fuzzy.Memberships
}

func (in *EvaluateInput) activation() map[string]any {
	membership := make(map[string]map[string]float64, fuzzy.NumMeasurements)
	for m := fuzzy.Measurement(0); m < fuzzy.NumMeasurements; m++ {
		t := in.Memberships.Of(m)
		membership[m.String()] = map[string]float64{
			"low":    t.Low(),
			"medium": t.Medium(),
			"high":   t.High(),
		}
	}

	return map[string]any{
		"gpa":           in.Inputs.GPA,
		"cca":           in.Inputs.CCA,
		"attendance":    in.Inputs.Attendance,
		"midterm":       in.Inputs.Midterm,
		"final_exam":    in.Inputs.FinalExam,
		"score":         in.Score,
		"category":      in.Category.String(),
		"category_rank": int64(in.Category.Rank()),
		"classified":    in.Category.Valid(),
		"rules_fired":   int64(in.RulesFired),
		"membership":    membership,
	}
}

// EvaluateAll runs every loaded rule and returns results ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.AdvisoryResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	activation := input.activation()

	results := make([]domain.AdvisoryResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = errorResult(r, ctx.Err(), 0)
				return
			}
			defer func() { <-sem }()

			results[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()
	return results, ctx.Err()
}

func evaluateRule(rule *CompiledRule, activation map[string]any) domain.AdvisoryResult {
	start := time.Now()

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return errorResult(rule, err, time.Since(start).Milliseconds())
	}

	score := toScore(out)
	outcome, reason := matchBand(score, rule.Config.Bands)

	return domain.AdvisoryResult{
		RuleID:    rule.Config.ID,
		Outcome:   outcome,
		Score:     score,
		Reason:    reason,
		Weight:    rule.Config.Weight,
		ProcessMs: time.Since(start).Milliseconds(),
	}
}

func errorResult(rule *CompiledRule, err error, ms int64) domain.AdvisoryResult {
	return domain.AdvisoryResult{
		RuleID:    rule.Config.ID,
		Outcome:   domain.AdvisoryError,
		Reason:    fmt.Sprintf("evaluation error: %v", err),
		Weight:    rule.Config.Weight,
		ProcessMs: ms,
	}
}

// toScore converts a CEL value to a number. Booleans map to 0 or 1.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

// matchBand returns the first band with lower <= score < upper. Nil
// limits are unbounded. A score matching no band is ".ok".
func matchBand(score float64, bands []domain.AdvisoryBand) (string, string) {
	for _, band := range bands {
		lower, upper := math.Inf(-1), math.Inf(1)
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if band.UpperLimit != nil {
			upper = *band.UpperLimit
		}
		if score >= lower && score < upper {
			return band.Outcome, band.Reason
		}
	}
	return domain.AdvisoryOK, "no matching band"
}

func validateBands(bands []domain.AdvisoryBand) error {
	for i, b := range bands {
		switch b.Outcome {
		case domain.AdvisoryOK, domain.AdvisoryWatch, domain.AdvisoryAlert:
		default:
			return fmt.Errorf("band %d: unknown outcome %q", i, b.Outcome)
		}
		if b.LowerLimit != nil && b.UpperLimit != nil && *b.LowerLimit >= *b.UpperLimit {
			return fmt.Errorf("band %d: lower limit must be below upper limit", i)
		}
	}
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.AdvisoryRule {
	e.mu.RLock()
	rules := make([]*domain.AdvisoryRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.AdvisoryRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if !outputType.IsExactType(cel.BoolType) && !outputType.IsExactType(cel.DoubleType) && !outputType.IsExactType(cel.IntType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
