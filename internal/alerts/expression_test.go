package alerts

import (
	"testing"

	"github.com/riskfoundry/kestrel/internal/domain"
)

func snapshotFixture() *domain.PortfolioAnalytics {
	return &domain.PortfolioAnalytics{
		TotalInsuredValue:   100_000_000,
		PolicyCount:         2,
		AverageInsuredValue: 50_000_000,
		GeographicConcentration: []domain.RegionConcentration{
			{Region: "Florida", Exposure: 60_000_000, Percentage: 60},
			{Region: "California", Exposure: 40_000_000, Percentage: 40},
		},
		PerilDistribution: []domain.PerilDistribution{
			{Peril: "Wind", Exposure: 60_000_000, Percentage: 60},
			{Peril: "Flood", Exposure: 40_000_000, Percentage: 40},
		},
		ProbableMaximumLoss: domain.ProbableMaximumLoss{PML250Year: 23_040_000},
		RiskConcentration: domain.RiskConcentration{
			HerfindahlIndex:   5200,
			Top10Percentage:   100,
			ConcentrationRisk: domain.ConcentrationHigh,
		},
	}
}

func TestExpressionEvaluate(t *testing.T) {
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"hhi threshold hit", "hhi > 2500.0", true},
		{"hhi threshold miss", "hhi > 6000.0", false},
		{"compound", "hhi > 2500.0 && pml_250_year > 20000000.0", true},
		{"string comparison", `concentration_risk == "High"`, true},
		{"region concentration", "max_region_percentage >= 60.0", true},
		{"numeric output non-zero", "policy_count", true},
		{"numeric output zero", "policy_count - 2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate("rule-1", tt.expression, snapshotFixture())
			if err != nil {
				t.Fatalf("Evaluate(%q) failed: %v", tt.expression, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expression, got, tt.want)
			}
		})
	}
}

func TestExpressionValidate(t *testing.T) {
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if err := engine.Validate("total_insured_value > 1000000.0"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := engine.Validate("no_such_variable > 1.0"); err == nil {
		t.Error("unknown variable should fail validation")
	}
	if err := engine.Validate("hhi >"); err == nil {
		t.Error("syntax error should fail validation")
	}
	if err := engine.Validate("concentration_risk"); err == nil {
		t.Error("string-typed output should fail validation")
	}
}

func TestExpressionCacheInvalidation(t *testing.T) {
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	got, err := engine.Evaluate("rule-1", "hhi > 2500.0", snapshotFixture())
	if err != nil || !got {
		t.Fatalf("first expression: got=%v err=%v", got, err)
	}

	// Same rule ID, edited expression: the cache must recompile.
	got, err = engine.Evaluate("rule-1", "hhi > 6000.0", snapshotFixture())
	if err != nil {
		t.Fatalf("second expression failed: %v", err)
	}
	if got {
		t.Error("edited expression should have been recompiled and not trigger")
	}
}
