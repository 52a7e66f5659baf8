package analytics

import (
	"math"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// scenarioSpec is one fixed synthetic catastrophe event. Impact percentages
// are heuristic placeholders for dashboard framing, not modeled losses.
type scenarioSpec struct {
	name            string
	returnPeriod    int
	lossPctOfTIV    float64
	affectedPctBook float64
}

var scenarioTable = []scenarioSpec{
	{"Major Hurricane (Cat 4)", 100, 0.08, 0.35},
	{"Severe Earthquake (M7.5)", 250, 0.15, 0.25},
	{"Widespread Flooding", 50, 0.04, 0.45},
	{"Extreme Wildfire Season", 75, 0.06, 0.20},
}

// catastropheScenarios applies the fixed scenario table to the portfolio.
// Losses round to whole currency units; affected policy counts round up.
func catastropheScenarios(total float64, exposureCount int) []domain.CatastropheScenario {
	out := make([]domain.CatastropheScenario, 0, len(scenarioTable))
	for _, s := range scenarioTable {
		out = append(out, domain.CatastropheScenario{
			Name:             s.name,
			ReturnPeriod:     s.returnPeriod,
			ExpectedLoss:     math.Round(total * s.lossPctOfTIV),
			AffectedPolicies: int(math.Ceil(float64(exposureCount) * s.affectedPctBook)),
		})
	}
	return out
}
