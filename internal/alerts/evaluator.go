// Package alerts implements the alert rule evaluation engine: condition
// evaluation over exposure aggregates, an optional CEL expression layer over
// the portfolio snapshot, and the orchestrator that drives rules through
// their instance lifecycle.
package alerts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/riskfoundry/kestrel/internal/analytics"
	"github.com/riskfoundry/kestrel/internal/domain"
)

// ErrUnsupportedCondition marks an (aggregation, field) combination the
// evaluator has no aggregator for. The orchestrator treats it as a
// non-triggering evaluation, not a rule failure.
var ErrUnsupportedCondition = errors.New("unsupported condition")

// ConditionResult is the outcome of evaluating one condition against an
// exposure snapshot. AffectedExposures holds the full matching set on
// trigger and is empty otherwise.
type ConditionResult struct {
	Triggered         bool                   `json:"triggered"`
	CurrentValue      string                 `json:"currentValue"`
	Threshold         float64                `json:"threshold"`
	AffectedExposures []*domain.RiskExposure `json:"affectedExposures"`
}

// aggregatorKey selects an aggregator by aggregation kind and target field.
// Count aggregations ignore the field and are keyed with an empty one.
type aggregatorKey struct {
	aggregation string
	field       string
}

// aggregator reduces an exposure set to a single comparable value plus the
// set of exposures that contributed to it.
type aggregator func(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure)

var aggregators = map[aggregatorKey]aggregator{
	{domain.AggSum, "totalInsuredValue"}: sumInsuredValue,
	{domain.AggAvg, "totalInsuredValue"}: avgInsuredValue,
	{domain.AggMax, "totalInsuredValue"}: maxInsuredValue,
	{domain.AggMin, "totalInsuredValue"}: minInsuredValue,
	{domain.AggAvg, "riskScore"}:         avgRiskScore,
	{domain.AggMax, "riskScore"}:         maxRiskScore,
}

// EvaluateCondition evaluates one condition against the exposure snapshot.
// Count aggregations optionally filter by exact match on the GroupBy field
// before counting; everything else dispatches through the aggregator table.
// Unknown combinations return ErrUnsupportedCondition with a zero,
// non-triggering result.
func EvaluateCondition(cond domain.AlertCondition, exposures []*domain.RiskExposure) (*ConditionResult, error) {
	threshold := analytics.ParseAmount(cond.Value)
	result := &ConditionResult{
		CurrentValue:      "0",
		Threshold:         threshold,
		AffectedExposures: []*domain.RiskExposure{},
	}

	var current float64
	var matched []*domain.RiskExposure

	if cond.Aggregation == domain.AggCount {
		// Value does double duty for grouped counts: it is both the exact
		// match target for the GroupBy field and the numeric threshold the
		// count is compared against.
		matched = filterByGroup(exposures, cond.GroupBy, cond.Value)
		current = float64(len(matched))
	} else {
		agg, ok := aggregators[aggregatorKey{cond.Aggregation, cond.Field}]
		if !ok {
			return result, fmt.Errorf("%w: aggregation=%q field=%q",
				ErrUnsupportedCondition, cond.Aggregation, cond.Field)
		}
		current, matched = agg(exposures)
	}

	result.CurrentValue = formatValue(current)

	triggered, err := compare(cond.Operator, current, result.Threshold)
	if err != nil {
		return result, err
	}
	result.Triggered = triggered
	if triggered {
		result.AffectedExposures = matched
	}
	return result, nil
}

// ValidateConditionValue checks a condition's threshold before the rule is
// saved. Exposure values get the forgiving parse because upstream data is
// dirty; rule thresholds are operator input, so garbage or negative values
// are rejected here instead of silently degrading to zero at sweep time.
// Grouped count conditions are exempt: their Value is the group match
// target, not a number.
func ValidateConditionValue(cond domain.AlertCondition) error {
	if cond.Aggregation == domain.AggCount && cond.GroupBy != "" {
		return nil
	}
	s := strings.TrimSpace(cond.Value)
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("condition value %q is not numeric", cond.Value)
	}
	if v < 0 {
		return fmt.Errorf("condition value %q is negative", cond.Value)
	}
	return nil
}

// DescribeCondition renders a condition as the human-readable trigger
// description stored on alert instances.
func DescribeCondition(cond domain.AlertCondition, result *ConditionResult) string {
	target := cond.Field
	if cond.Aggregation == domain.AggCount {
		target = "exposures"
		if cond.GroupBy != "" {
			target = fmt.Sprintf("exposures[%s=%s]", cond.GroupBy, cond.Value)
		}
	}
	return fmt.Sprintf("%s(%s) %s %s (current: %s)",
		cond.Aggregation, target, cond.Operator, cond.Value, result.CurrentValue)
}

// equalityEpsilon is the tolerance for eq/ne comparisons. Exact float
// equality over summed currency values essentially never fires, so equality
// is defined as agreement within a relative tolerance.
const equalityEpsilon = 1e-9

func compare(operator string, current, threshold float64) (bool, error) {
	switch operator {
	case domain.OpGreaterThan:
		return current > threshold, nil
	case domain.OpGreaterOrEqual:
		return current >= threshold, nil
	case domain.OpLessThan:
		return current < threshold, nil
	case domain.OpLessOrEqual:
		return current <= threshold, nil
	case domain.OpEqual:
		return approxEqual(current, threshold), nil
	case domain.OpNotEqual:
		return !approxEqual(current, threshold), nil
	default:
		return false, fmt.Errorf("%w: operator=%q", ErrUnsupportedCondition, operator)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= equalityEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// filterByGroup returns the exposures whose groupBy field exactly matches
// value. An empty groupBy matches everything.
func filterByGroup(exposures []*domain.RiskExposure, groupBy, value string) []*domain.RiskExposure {
	if groupBy == "" {
		return exposures
	}
	var out []*domain.RiskExposure
	for _, e := range exposures {
		if fieldString(e, groupBy) == value {
			out = append(out, e)
		}
	}
	return out
}

// fieldString reads a string-valued exposure field by its wire name.
// Unknown fields read as empty and therefore never match.
func fieldString(e *domain.RiskExposure, field string) string {
	switch field {
	case "perilType":
		return e.Peril()
	case "policyNumber":
		return e.PolicyNumber
	case "region":
		return analytics.ClassifyRegion(e.Latitude, e.Longitude)
	default:
		return ""
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sumInsuredValue(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	var total float64
	for _, e := range exposures {
		total += analytics.ParseAmount(e.TotalInsuredValue)
	}
	return total, exposures
}

func avgInsuredValue(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	if len(exposures) == 0 {
		return 0, nil
	}
	total, _ := sumInsuredValue(exposures)
	return total / float64(len(exposures)), exposures
}

func maxInsuredValue(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	var max float64
	var at *domain.RiskExposure
	for _, e := range exposures {
		if v := analytics.ParseAmount(e.TotalInsuredValue); at == nil || v > max {
			max = v
			at = e
		}
	}
	if at == nil {
		return 0, nil
	}
	return max, []*domain.RiskExposure{at}
}

func minInsuredValue(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	var min float64
	var at *domain.RiskExposure
	for _, e := range exposures {
		if v := analytics.ParseAmount(e.TotalInsuredValue); at == nil || v < min {
			min = v
			at = e
		}
	}
	if at == nil {
		return 0, nil
	}
	return min, []*domain.RiskExposure{at}
}

func avgRiskScore(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	var sum float64
	var scored []*domain.RiskExposure
	for _, e := range exposures {
		if e.HasRiskScore() {
			sum += *e.RiskScore
			scored = append(scored, e)
		}
	}
	if len(scored) == 0 {
		return 0, nil
	}
	return sum / float64(len(scored)), scored
}

func maxRiskScore(exposures []*domain.RiskExposure) (float64, []*domain.RiskExposure) {
	var max float64
	var at *domain.RiskExposure
	for _, e := range exposures {
		if e.HasRiskScore() && (at == nil || *e.RiskScore > max) {
			max = *e.RiskScore
			at = e
		}
	}
	if at == nil {
		return 0, nil
	}
	return max, []*domain.RiskExposure{at}
}
