package domain

// PortfolioAnalytics is the derived portfolio risk snapshot. It is ephemeral:
// recomputed on demand from the current exposure set and never persisted as
// its own entity. The JSON shape is the reporting contract - nested arrays
// are sorted descending by exposure.
type PortfolioAnalytics struct {
	TotalInsuredValue   float64 `json:"totalInsuredValue"`
	PolicyCount         int     `json:"policyCount"`
	AverageInsuredValue float64 `json:"averageInsuredValue"`

	GeographicConcentration []RegionConcentration `json:"geographicConcentration"`
	PerilDistribution       []PerilDistribution   `json:"perilDistribution"`

	ProbableMaximumLoss ProbableMaximumLoss `json:"probableMaximumLoss"`
	AverageAnnualLoss   AverageAnnualLoss   `json:"averageAnnualLoss"`
	RiskConcentration   RiskConcentration   `json:"riskConcentration"`
	CorrelationAnalysis CorrelationAnalysis `json:"correlationAnalysis"`
	RiskQuality         RiskQuality         `json:"riskQuality"`

	CatastropheScenarios []CatastropheScenario `json:"catastropheScenarios"`
}

// RegionConcentration is the aggregated exposure for one geographic region.
type RegionConcentration struct {
	Region     string  `json:"region"`
	Exposure   float64 `json:"exposure"`
	Percentage float64 `json:"percentage"`
	RiskScore  float64 `json:"riskScore"`
}

// PerilDistribution is the aggregated exposure for one peril category.
type PerilDistribution struct {
	Peril            string  `json:"peril"`
	Exposure         float64 `json:"exposure"`
	Percentage       float64 `json:"percentage"`
	AverageRiskScore float64 `json:"averageRiskScore"`
}

// ProbableMaximumLoss holds PML estimates at the four modeled return periods,
// rounded to whole currency units.
type ProbableMaximumLoss struct {
	PML100Year  float64 `json:"pml100Year"`
	PML250Year  float64 `json:"pml250Year"`
	PML500Year  float64 `json:"pml500Year"`
	PML1000Year float64 `json:"pml1000Year"`
}

// AverageAnnualLoss holds the expected yearly loss estimate.
type AverageAnnualLoss struct {
	Total        float64            `json:"total"`
	ByPeril      map[string]float64 `json:"byPeril"`
	AsPercentage float64            `json:"asPercentage"`
}

// RiskConcentration holds portfolio concentration measures.
// ConcentrationRisk is one of "Low", "Medium", "High".
type RiskConcentration struct {
	HerfindahlIndex   float64 `json:"herfindahlIndex"`
	Top10Percentage   float64 `json:"top10Percentage"`
	LargestSingleRisk float64 `json:"largestSingleRisk"`
	ConcentrationRisk string  `json:"concentrationRisk"`
}

// Concentration risk bands.
const (
	ConcentrationLow    = "Low"
	ConcentrationMedium = "Medium"
	ConcentrationHigh   = "High"
)

// CorrelationAnalysis holds heuristic correlation and diversification
// estimates. Correlations are bounded [0.05, 0.95]; the benefit is a
// percentage in [0, 100].
type CorrelationAnalysis struct {
	GeographicCorrelation  float64 `json:"geographicCorrelation"`
	PerilCorrelation       float64 `json:"perilCorrelation"`
	DiversificationBenefit float64 `json:"diversificationBenefit"`
}

// RiskQuality holds data-quality metrics for the exposure set.
type RiskQuality struct {
	DataCompleteness      float64               `json:"dataCompleteness"`
	GeocodingAccuracy     float64               `json:"geocodingAccuracy"`
	RiskScoreDistribution RiskScoreDistribution `json:"riskScoreDistribution"`
}

// RiskScoreDistribution buckets scored exposures into low (<30),
// medium (30-69.99) and high (>=70), each as a percentage of the
// exposures that carry a score.
type RiskScoreDistribution struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// CatastropheScenario is one synthetic event applied to the portfolio.
type CatastropheScenario struct {
	Name             string  `json:"name"`
	ReturnPeriod     int     `json:"returnPeriod"`
	ExpectedLoss     float64 `json:"expectedLoss"`
	AffectedPolicies int     `json:"affectedPolicies"`
}
