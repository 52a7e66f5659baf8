package alerts

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// ExpressionEngine evaluates optional CEL expressions attached to alert
// rules. Expressions see the organization's portfolio aggregates, not
// individual exposures, so a rule can cut across the structured condition
// grammar ("hhi > 2500 && pml_250_year > 20000000.0").
type ExpressionEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*compiledExpression
}

// compiledExpression caches one rule's compiled program. Source is kept to
// detect expression edits between sweeps.
type compiledExpression struct {
	source  string
	program cel.Program
}

// NewExpressionEngine creates the engine with the portfolio aggregate
// variable set.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("total_insured_value", cel.DoubleType),
		cel.Variable("policy_count", cel.IntType),
		cel.Variable("average_insured_value", cel.DoubleType),
		cel.Variable("hhi", cel.DoubleType),
		cel.Variable("top10_percentage", cel.DoubleType),
		cel.Variable("largest_single_risk", cel.DoubleType),
		cel.Variable("concentration_risk", cel.StringType),
		cel.Variable("max_region_percentage", cel.DoubleType),
		cel.Variable("region_count", cel.IntType),
		cel.Variable("peril_count", cel.IntType),
		cel.Variable("pml_100_year", cel.DoubleType),
		cel.Variable("pml_250_year", cel.DoubleType),
		cel.Variable("pml_500_year", cel.DoubleType),
		cel.Variable("pml_1000_year", cel.DoubleType),
		cel.Variable("aal_total", cel.DoubleType),
		cel.Variable("data_completeness", cel.DoubleType),
		cel.Variable("geocoding_accuracy", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionEngine{
		env:      env,
		compiled: make(map[string]*compiledExpression),
	}, nil
}

// Validate compiles an expression without caching it. Used by the API layer
// to reject bad expressions at rule save time.
func (e *ExpressionEngine) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate runs a rule's expression against the portfolio snapshot and
// reports whether it triggered. Programs are compiled on first use and
// cached per rule until the expression text changes.
func (e *ExpressionEngine) Evaluate(ruleID, expression string, a *domain.PortfolioAnalytics) (bool, error) {
	program, err := e.programFor(ruleID, expression)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(activationFor(a))
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}
	return toTriggered(out), nil
}

// Forget drops a rule's cached program. Called when a rule is deleted or
// disabled.
func (e *ExpressionEngine) Forget(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, ruleID)
}

func (e *ExpressionEngine) programFor(ruleID, expression string) (cel.Program, error) {
	e.mu.RLock()
	cached, ok := e.compiled[ruleID]
	e.mu.RUnlock()
	if ok && cached.source == expression {
		return cached.program, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.compiled[ruleID] = &compiledExpression{source: expression, program: program}
	e.mu.Unlock()

	return program, nil
}

func (e *ExpressionEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("expression must return bool, int, or double, got %s", outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

func activationFor(a *domain.PortfolioAnalytics) map[string]any {
	var maxRegionPct float64
	if len(a.GeographicConcentration) > 0 {
		maxRegionPct = a.GeographicConcentration[0].Percentage
	}
	return map[string]any{
		"total_insured_value":   a.TotalInsuredValue,
		"policy_count":          int64(a.PolicyCount),
		"average_insured_value": a.AverageInsuredValue,
		"hhi":                   a.RiskConcentration.HerfindahlIndex,
		"top10_percentage":      a.RiskConcentration.Top10Percentage,
		"largest_single_risk":   a.RiskConcentration.LargestSingleRisk,
		"concentration_risk":    a.RiskConcentration.ConcentrationRisk,
		"max_region_percentage": maxRegionPct,
		"region_count":          int64(len(a.GeographicConcentration)),
		"peril_count":           int64(len(a.PerilDistribution)),
		"pml_100_year":          a.ProbableMaximumLoss.PML100Year,
		"pml_250_year":          a.ProbableMaximumLoss.PML250Year,
		"pml_500_year":          a.ProbableMaximumLoss.PML500Year,
		"pml_1000_year":         a.ProbableMaximumLoss.PML1000Year,
		"aal_total":             a.AverageAnnualLoss.Total,
		"data_completeness":     a.RiskQuality.DataCompleteness,
		"geocoding_accuracy":    a.RiskQuality.GeocodingAccuracy,
	}
}

// toTriggered converts a CEL result to a trigger decision: booleans pass
// through, numerics trigger when non-zero.
func toTriggered(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) != 0
	case types.Int:
		return int64(v) != 0
	default:
		return false
	}
}
