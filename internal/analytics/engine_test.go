package analytics

import (
	"math"
	"testing"

	"github.com/riskfoundry/kestrel/internal/domain"
)

func score(v float64) *float64 { return &v }

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

// twoStateBook is a small fixture with a known hand-computed snapshot:
// 60M of wind in Florida (score 80) and 40M of flood in California
// (score 40).
func twoStateBook() []*domain.RiskExposure {
	return []*domain.RiskExposure{
		{
			ID:                "e-1",
			PolicyNumber:      "P-1001",
			TotalInsuredValue: "60000000",
			Latitude:          25.8,
			Longitude:         -80.2,
			PerilType:         "Wind",
			RiskScore:         score(80),
		},
		{
			ID:                "e-2",
			PolicyNumber:      "P-1002",
			TotalInsuredValue: "$40,000,000",
			Latitude:          34.0,
			Longitude:         -118.2,
			PerilType:         "Flood",
			RiskScore:         score(40),
		},
	}
}

func TestComputeEmptyInput(t *testing.T) {
	a := Compute(nil)

	if a.TotalInsuredValue != 0 || a.PolicyCount != 0 || a.AverageInsuredValue != 0 {
		t.Errorf("expected zero totals, got TIV=%v count=%d avg=%v",
			a.TotalInsuredValue, a.PolicyCount, a.AverageInsuredValue)
	}
	if a.GeographicConcentration == nil || len(a.GeographicConcentration) != 0 {
		t.Errorf("expected empty (non-nil) geographic slice, got %v", a.GeographicConcentration)
	}
	if a.PerilDistribution == nil || len(a.PerilDistribution) != 0 {
		t.Errorf("expected empty (non-nil) peril slice, got %v", a.PerilDistribution)
	}
	if a.CatastropheScenarios == nil || len(a.CatastropheScenarios) != 0 {
		t.Errorf("expected empty (non-nil) scenarios, got %v", a.CatastropheScenarios)
	}
	if a.AverageAnnualLoss.ByPeril == nil || len(a.AverageAnnualLoss.ByPeril) != 0 {
		t.Errorf("expected empty (non-nil) byPeril map, got %v", a.AverageAnnualLoss.ByPeril)
	}
	if a.ProbableMaximumLoss.PML100Year != 0 || a.ProbableMaximumLoss.PML1000Year != 0 {
		t.Errorf("expected zero PML, got %+v", a.ProbableMaximumLoss)
	}
	if a.RiskConcentration.ConcentrationRisk != domain.ConcentrationLow {
		t.Errorf("expected Low concentration for empty book, got %q", a.RiskConcentration.ConcentrationRisk)
	}
}

func TestComputeTwoStateBook(t *testing.T) {
	a := Compute(twoStateBook())

	approx(t, "TotalInsuredValue", a.TotalInsuredValue, 100_000_000)
	if a.PolicyCount != 2 {
		t.Errorf("PolicyCount = %d, want 2", a.PolicyCount)
	}
	approx(t, "AverageInsuredValue", a.AverageInsuredValue, 50_000_000)

	t.Run("geographic", func(t *testing.T) {
		if len(a.GeographicConcentration) != 2 {
			t.Fatalf("region count = %d, want 2", len(a.GeographicConcentration))
		}
		fl := a.GeographicConcentration[0]
		if fl.Region != "Florida" {
			t.Fatalf("largest region = %q, want Florida", fl.Region)
		}
		approx(t, "Florida exposure", fl.Exposure, 60_000_000)
		approx(t, "Florida percentage", fl.Percentage, 60)
		approx(t, "Florida risk score", fl.RiskScore, 80)
		ca := a.GeographicConcentration[1]
		if ca.Region != "California" {
			t.Fatalf("second region = %q, want California", ca.Region)
		}
		approx(t, "California percentage", ca.Percentage, 40)
	})

	t.Run("perils", func(t *testing.T) {
		if len(a.PerilDistribution) != 2 {
			t.Fatalf("peril count = %d, want 2", len(a.PerilDistribution))
		}
		if a.PerilDistribution[0].Peril != "Wind" {
			t.Errorf("largest peril = %q, want Wind", a.PerilDistribution[0].Peril)
		}
		approx(t, "wind percentage", a.PerilDistribution[0].Percentage, 60)
		approx(t, "wind avg score", a.PerilDistribution[0].AverageRiskScore, 80)
	})

	// avgRiskScore 60 gives riskAdj 1.2; Florida at 60% gives concAdj 1.6.
	t.Run("pml", func(t *testing.T) {
		approx(t, "PML100Year", a.ProbableMaximumLoss.PML100Year, 9_600_000)
		approx(t, "PML250Year", a.ProbableMaximumLoss.PML250Year, 23_040_000)
		approx(t, "PML500Year", a.ProbableMaximumLoss.PML500Year, 38_400_000)
		approx(t, "PML1000Year", a.ProbableMaximumLoss.PML1000Year, 57_600_000)
	})

	// baseRate clamp(60/100*0.02) = 0.012; wind 60M*0.015*1.6,
	// flood 40M*0.008*0.8.
	t.Run("aal", func(t *testing.T) {
		approx(t, "AAL total", a.AverageAnnualLoss.Total, 1_200_000)
		approx(t, "AAL percentage", a.AverageAnnualLoss.AsPercentage, 1.2)
		approx(t, "AAL wind", a.AverageAnnualLoss.ByPeril["Wind"], 1_440_000)
		approx(t, "AAL flood", a.AverageAnnualLoss.ByPeril["Flood"], 256_000)
	})

	t.Run("concentration", func(t *testing.T) {
		rc := a.RiskConcentration
		approx(t, "HHI", rc.HerfindahlIndex, 5200)
		approx(t, "Top10Percentage", rc.Top10Percentage, 100)
		approx(t, "LargestSingleRisk", rc.LargestSingleRisk, 60_000_000)
		if rc.ConcentrationRisk != domain.ConcentrationHigh {
			t.Errorf("ConcentrationRisk = %q, want High", rc.ConcentrationRisk)
		}
	})

	t.Run("correlation", func(t *testing.T) {
		ca := a.CorrelationAnalysis
		approx(t, "GeographicCorrelation", ca.GeographicCorrelation, 0.75)
		approx(t, "PerilCorrelation", ca.PerilCorrelation, 1-2.0/6)
		approx(t, "DiversificationBenefit", ca.DiversificationBenefit, (0.25+2.0/6)/2*100)
	})

	t.Run("quality", func(t *testing.T) {
		q := a.RiskQuality
		approx(t, "DataCompleteness", q.DataCompleteness, 100)
		approx(t, "GeocodingAccuracy", q.GeocodingAccuracy, 100)
		approx(t, "score low", q.RiskScoreDistribution.Low, 0)
		approx(t, "score medium", q.RiskScoreDistribution.Medium, 50)
		approx(t, "score high", q.RiskScoreDistribution.High, 50)
	})

	t.Run("scenarios", func(t *testing.T) {
		if len(a.CatastropheScenarios) != 4 {
			t.Fatalf("scenario count = %d, want 4", len(a.CatastropheScenarios))
		}
		hurricane := a.CatastropheScenarios[0]
		if hurricane.Name != "Major Hurricane (Cat 4)" || hurricane.ReturnPeriod != 100 {
			t.Errorf("unexpected first scenario: %+v", hurricane)
		}
		approx(t, "hurricane loss", hurricane.ExpectedLoss, 8_000_000)
		if hurricane.AffectedPolicies != 1 {
			t.Errorf("hurricane affected = %d, want 1", hurricane.AffectedPolicies)
		}
	})
}

func TestComputeDeterministic(t *testing.T) {
	book := twoStateBook()
	first := Compute(book)
	second := Compute(book)

	if first.TotalInsuredValue != second.TotalInsuredValue ||
		first.RiskConcentration != second.RiskConcentration ||
		first.ProbableMaximumLoss != second.ProbableMaximumLoss {
		t.Error("repeated Compute over the same input diverged")
	}
	for i := range first.GeographicConcentration {
		if first.GeographicConcentration[i] != second.GeographicConcentration[i] {
			t.Errorf("region order unstable at %d: %+v vs %+v",
				i, first.GeographicConcentration[i], second.GeographicConcentration[i])
		}
	}
}

func TestComputeDirtyValues(t *testing.T) {
	exposures := []*domain.RiskExposure{
		{ID: "e-1", PolicyNumber: "P-1", TotalInsuredValue: "1000000", PerilType: "Fire"},
		{ID: "e-2", PolicyNumber: "P-2", TotalInsuredValue: "not-a-number", PerilType: "Fire"},
		{ID: "e-3", PolicyNumber: "P-3", TotalInsuredValue: "-500000", PerilType: "Fire"},
		{ID: "e-4", PolicyNumber: "P-4", TotalInsuredValue: "NaN", PerilType: "Fire"},
	}
	a := Compute(exposures)

	approx(t, "TotalInsuredValue", a.TotalInsuredValue, 1_000_000)
	if a.PolicyCount != 4 {
		t.Errorf("PolicyCount = %d, want 4 (dirty rows still count)", a.PolicyCount)
	}
	for _, pml := range []float64{
		a.ProbableMaximumLoss.PML100Year,
		a.ProbableMaximumLoss.PML1000Year,
		a.AverageAnnualLoss.Total,
	} {
		if math.IsNaN(pml) || math.IsInf(pml, 0) {
			t.Fatalf("dirty input leaked NaN/Inf into aggregates: %v", pml)
		}
	}
}

func TestComputeDuplicatePolicyNumbers(t *testing.T) {
	exposures := []*domain.RiskExposure{
		{ID: "e-1", PolicyNumber: "P-1", TotalInsuredValue: "100"},
		{ID: "e-2", PolicyNumber: "P-1", TotalInsuredValue: "200"},
		{ID: "e-3", PolicyNumber: "", TotalInsuredValue: "300"},
		{ID: "e-4", PolicyNumber: "", TotalInsuredValue: "400"},
	}
	a := Compute(exposures)

	// Two rows share P-1, two blank rows count individually.
	if a.PolicyCount != 3 {
		t.Errorf("PolicyCount = %d, want 3", a.PolicyCount)
	}
	approx(t, "AverageInsuredValue", a.AverageInsuredValue, 1000.0/3)
}

func TestComputeNoRiskScores(t *testing.T) {
	exposures := []*domain.RiskExposure{
		{ID: "e-1", PolicyNumber: "P-1", TotalInsuredValue: "1000000", PerilType: "Wind"},
	}
	a := Compute(exposures)

	// Unscored books fall back to a neutral score of 50: riskAdj 1.0 and
	// a single region gives concAdj 1.8.
	approx(t, "PML100Year", a.ProbableMaximumLoss.PML100Year, math.Round(1_000_000*0.05*1.0*1.8))

	d := a.RiskQuality.RiskScoreDistribution
	if d.Low != 0 || d.Medium != 0 || d.High != 0 {
		t.Errorf("score distribution should be all zero without scores, got %+v", d)
	}
}

func TestPercentagesBounded(t *testing.T) {
	a := Compute(twoStateBook())

	var geoSum, perilSum float64
	for _, r := range a.GeographicConcentration {
		if r.Percentage < 0 || r.Percentage > 100 {
			t.Errorf("region %q percentage out of range: %v", r.Region, r.Percentage)
		}
		geoSum += r.Percentage
	}
	for _, p := range a.PerilDistribution {
		if p.Percentage < 0 || p.Percentage > 100 {
			t.Errorf("peril %q percentage out of range: %v", p.Peril, p.Percentage)
		}
		perilSum += p.Percentage
	}
	approx(t, "geo percentage sum", geoSum, 100)
	approx(t, "peril percentage sum", perilSum, 100)
}

func TestConcentrationBandBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		hhi   float64
		top10 float64
		want  string
	}{
		{"well below all thresholds", 100, 10, domain.ConcentrationLow},
		{"hhi exactly 1500", 1500, 10, domain.ConcentrationLow},
		{"hhi just over 1500", 1500.01, 10, domain.ConcentrationMedium},
		{"top10 exactly 30", 100, 30, domain.ConcentrationLow},
		{"top10 just over 30", 100, 30.01, domain.ConcentrationMedium},
		{"hhi exactly 2500", 2500, 10, domain.ConcentrationMedium},
		{"hhi just over 2500", 2500.01, 10, domain.ConcentrationHigh},
		{"top10 exactly 50", 100, 50, domain.ConcentrationMedium},
		{"top10 just over 50", 100, 50.01, domain.ConcentrationHigh},
		{"high wins over medium", 9000, 100, domain.ConcentrationHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := concentrationBand(tt.hhi, tt.top10); got != tt.want {
				t.Errorf("concentrationBand(%v, %v) = %q, want %q", tt.hhi, tt.top10, got, tt.want)
			}
		})
	}
}

func TestHHIRisesWithConcentration(t *testing.T) {
	diffuse := riskConcentration([]float64{25, 25, 25, 25}, 100)
	skewed := riskConcentration([]float64{50, 25, 12.5, 12.5}, 100)
	single := riskConcentration([]float64{100}, 100)

	if !(diffuse.HerfindahlIndex < skewed.HerfindahlIndex) {
		t.Errorf("HHI should rise when exposure skews: %v >= %v",
			diffuse.HerfindahlIndex, skewed.HerfindahlIndex)
	}
	if !(skewed.HerfindahlIndex < single.HerfindahlIndex) {
		t.Errorf("HHI should peak at a single exposure: %v >= %v",
			skewed.HerfindahlIndex, single.HerfindahlIndex)
	}
	approx(t, "single-exposure HHI", single.HerfindahlIndex, 10000)
}

func TestTop10PercentageLargeBook(t *testing.T) {
	// 20 equal exposures: the top 10 hold exactly half the book.
	values := make([]float64, 20)
	for i := range values {
		values[i] = 5
	}
	rc := riskConcentration(values, 100)

	approx(t, "Top10Percentage", rc.Top10Percentage, 50)
	approx(t, "HHI", rc.HerfindahlIndex, 20*25)
	if rc.ConcentrationRisk != domain.ConcentrationMedium {
		t.Errorf("ConcentrationRisk = %q, want Medium (top10 at boundary, hhi low)", rc.ConcentrationRisk)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1000", 1000},
		{"$2,500,000", 2_500_000},
		{"  42.5  ", 42.5},
		{"", 0},
		{"abc", 0},
		{"-100", 0},
		{"NaN", 0},
		{"Inf", 0},
		{"+Inf", 0},
		{"1e4", 10000},
	}
	for _, tt := range tests {
		if got := ParseAmount(tt.in); got != tt.want {
			t.Errorf("ParseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
