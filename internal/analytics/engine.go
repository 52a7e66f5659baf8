// Package analytics implements the portfolio risk analytics engine.
//
// Compute is a pure function from an exposure list to a PortfolioAnalytics
// snapshot: deterministic, no I/O, safe for concurrent callers. The loss
// model coefficients are heuristic industry-style constants, not a
// calibrated catastrophe model.
package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// PML base percentages of total insured value by return period.
var pmlBasePct = map[int]float64{
	100:  0.05,
	250:  0.12,
	500:  0.20,
	1000: 0.30,
}

// AAL base rates by peril. Perils outside the table use aalDefaultRate.
var aalBaseRates = map[string]float64{
	"wind":       0.015,
	"flood":      0.008,
	"earthquake": 0.003,
	"fire":       0.012,
	"hail":       0.006,
	"cyber":      0.005,
}

const aalDefaultRate = 0.01

// defaultRiskScore substitutes for portfolios where no exposure carries a
// risk score.
const defaultRiskScore = 50.0

// Compute derives the full analytics snapshot from the exposure set.
// Empty input yields the documented zero snapshot; dirty numeric fields
// degrade to zero via ParseAmount and never surface as errors.
func Compute(exposures []*domain.RiskExposure) *domain.PortfolioAnalytics {
	if len(exposures) == 0 {
		return emptySnapshot()
	}

	values := make([]float64, len(exposures))
	var total float64
	for i, e := range exposures {
		values[i] = ParseAmount(e.TotalInsuredValue)
		total += values[i]
	}

	policyCount := distinctPolicyCount(exposures)

	var avgValue float64
	if policyCount > 0 {
		avgValue = total / float64(policyCount)
	}

	var allScores []float64
	for _, e := range exposures {
		if e.HasRiskScore() {
			allScores = append(allScores, *e.RiskScore)
		}
	}
	avgRiskScore := defaultRiskScore
	if len(allScores) > 0 {
		avgRiskScore = mean(allScores)
	}

	geo := geographicConcentration(exposures, values, total)
	perils := perilDistribution(exposures, values, total)

	var maxRegionPct float64
	if len(geo) > 0 {
		maxRegionPct = geo[0].Percentage
	}

	snapshot := &domain.PortfolioAnalytics{
		TotalInsuredValue:       total,
		PolicyCount:             policyCount,
		AverageInsuredValue:     avgValue,
		GeographicConcentration: geo,
		PerilDistribution:       perils,
		ProbableMaximumLoss:     probableMaximumLoss(total, avgRiskScore, maxRegionPct),
		AverageAnnualLoss:       averageAnnualLoss(exposures, values, total, avgRiskScore),
		RiskConcentration:       riskConcentration(values, total),
		CorrelationAnalysis:     correlationAnalysis(len(geo), len(perils)),
		RiskQuality:             riskQuality(exposures),
		CatastropheScenarios:    catastropheScenarios(total, len(exposures)),
	}
	return snapshot
}

// emptySnapshot is the defined result for an empty exposure list: every
// scalar zero, every array empty, concentration risk Low.
func emptySnapshot() *domain.PortfolioAnalytics {
	return &domain.PortfolioAnalytics{
		GeographicConcentration: []domain.RegionConcentration{},
		PerilDistribution:       []domain.PerilDistribution{},
		AverageAnnualLoss: domain.AverageAnnualLoss{
			ByPeril: map[string]float64{},
		},
		RiskConcentration: domain.RiskConcentration{
			ConcentrationRisk: domain.ConcentrationLow,
		},
		CatastropheScenarios: []domain.CatastropheScenario{},
	}
}

// distinctPolicyCount counts active policies. Policy numbers repeat across
// rows; rows without one count individually by exposure ID.
func distinctPolicyCount(exposures []*domain.RiskExposure) int {
	seen := make(map[string]struct{}, len(exposures))
	for _, e := range exposures {
		key := e.PolicyNumber
		if key == "" {
			key = "\x00" + e.ID
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

type bucketAgg struct {
	exposure float64
	scores   []float64
}

func geographicConcentration(exposures []*domain.RiskExposure, values []float64, total float64) []domain.RegionConcentration {
	buckets := make(map[string]*bucketAgg)
	for i, e := range exposures {
		name := ClassifyRegion(e.Latitude, e.Longitude)
		b := buckets[name]
		if b == nil {
			b = &bucketAgg{}
			buckets[name] = b
		}
		b.exposure += values[i]
		if e.HasRiskScore() {
			b.scores = append(b.scores, *e.RiskScore)
		}
	}

	out := make([]domain.RegionConcentration, 0, len(buckets))
	for name, b := range buckets {
		var pct float64
		if total > 0 {
			pct = b.exposure / total * 100
		}
		out = append(out, domain.RegionConcentration{
			Region:     name,
			Exposure:   b.exposure,
			Percentage: pct,
			RiskScore:  mean(b.scores),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exposure != out[j].Exposure {
			return out[i].Exposure > out[j].Exposure
		}
		return out[i].Region < out[j].Region
	})
	return out
}

func perilDistribution(exposures []*domain.RiskExposure, values []float64, total float64) []domain.PerilDistribution {
	buckets := make(map[string]*bucketAgg)
	for i, e := range exposures {
		name := e.Peril()
		b := buckets[name]
		if b == nil {
			b = &bucketAgg{}
			buckets[name] = b
		}
		b.exposure += values[i]
		if e.HasRiskScore() {
			b.scores = append(b.scores, *e.RiskScore)
		}
	}

	out := make([]domain.PerilDistribution, 0, len(buckets))
	for name, b := range buckets {
		var pct float64
		if total > 0 {
			pct = b.exposure / total * 100
		}
		out = append(out, domain.PerilDistribution{
			Peril:            name,
			Exposure:         b.exposure,
			Percentage:       pct,
			AverageRiskScore: mean(b.scores),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exposure != out[j].Exposure {
			return out[i].Exposure > out[j].Exposure
		}
		return out[i].Peril < out[j].Peril
	})
	return out
}

// riskAdjustment scales base loss rates by the average risk score of the
// book, centered on a score of 50.
func riskAdjustment(avgRiskScore float64) float64 {
	return clamp(avgRiskScore/50, 0.5, 2.0)
}

func probableMaximumLoss(total, avgRiskScore, maxRegionPct float64) domain.ProbableMaximumLoss {
	riskAdj := riskAdjustment(avgRiskScore)
	concFactor := clamp(maxRegionPct/100, 0, 0.8)
	concAdj := clamp(1+concFactor, 1.0, 1.8)

	pml := func(period int) float64 {
		return math.Round(total * pmlBasePct[period] * riskAdj * concAdj)
	}
	return domain.ProbableMaximumLoss{
		PML100Year:  pml(100),
		PML250Year:  pml(250),
		PML500Year:  pml(500),
		PML1000Year: pml(1000),
	}
}

func averageAnnualLoss(exposures []*domain.RiskExposure, values []float64, total, avgRiskScore float64) domain.AverageAnnualLoss {
	baseRate := clamp(avgRiskScore/100*0.02, 0.005, 0.03)

	byPeril := make(map[string]float64)
	perilExposure := make(map[string]float64)
	perilScores := make(map[string][]float64)
	for i, e := range exposures {
		name := e.Peril()
		perilExposure[name] += values[i]
		if e.HasRiskScore() {
			perilScores[name] = append(perilScores[name], *e.RiskScore)
		}
	}
	for name, exposure := range perilExposure {
		rate, ok := aalBaseRates[strings.ToLower(name)]
		if !ok {
			rate = aalDefaultRate
		}
		perilAvg := defaultRiskScore
		if scores := perilScores[name]; len(scores) > 0 {
			perilAvg = mean(scores)
		}
		byPeril[name] = exposure * rate * riskAdjustment(perilAvg)
	}

	return domain.AverageAnnualLoss{
		Total:        total * baseRate,
		ByPeril:      byPeril,
		AsPercentage: baseRate * 100,
	}
}

// riskConcentration computes the Herfindahl index over individual exposure
// market shares plus the top-10 share. Band thresholds use strict
// comparisons; the High check runs first.
func riskConcentration(values []float64, total float64) domain.RiskConcentration {
	rc := domain.RiskConcentration{ConcentrationRisk: domain.ConcentrationLow}
	if total <= 0 {
		return rc
	}

	for _, v := range values {
		share := v / total * 100
		rc.HerfindahlIndex += share * share
	}

	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	rc.LargestSingleRisk = sorted[0]

	top := sorted
	if len(top) > 10 {
		top = top[:10]
	}
	var topSum float64
	for _, v := range top {
		topSum += v
	}
	rc.Top10Percentage = topSum / total * 100

	rc.ConcentrationRisk = concentrationBand(rc.HerfindahlIndex, rc.Top10Percentage)
	return rc
}

// concentrationBand maps concentration measures to a risk band. Thresholds
// are strict and the High check runs first: HHI exactly 2500 with a top-10
// share at or below 50 is Medium, not High.
func concentrationBand(hhi, top10Pct float64) string {
	switch {
	case hhi > 2500 || top10Pct > 50:
		return domain.ConcentrationHigh
	case hhi > 1500 || top10Pct > 30:
		return domain.ConcentrationMedium
	default:
		return domain.ConcentrationLow
	}
}

func correlationAnalysis(regionCount, perilCount int) domain.CorrelationAnalysis {
	geographicSpread := math.Min(1, float64(regionCount)/float64(regionLabels))
	perilDiversity := math.Min(1, float64(perilCount)/6)
	return domain.CorrelationAnalysis{
		GeographicCorrelation:  clamp(1-geographicSpread, 0.05, 0.95),
		PerilCorrelation:       clamp(1-perilDiversity, 0.05, 0.95),
		DiversificationBenefit: (geographicSpread + perilDiversity) / 2 * 100,
	}
}

func riskQuality(exposures []*domain.RiskExposure) domain.RiskQuality {
	n := float64(len(exposures))

	var complete, geocoded int
	var low, medium, high, scored int
	for _, e := range exposures {
		if strings.TrimSpace(e.TotalInsuredValue) != "" && e.PolicyNumber != "" && e.PerilType != "" {
			complete++
		}
		if e.Geocoded() {
			geocoded++
		}
		if e.HasRiskScore() {
			scored++
			switch score := *e.RiskScore; {
			case score < 30:
				low++
			case score < 70:
				medium++
			default:
				high++
			}
		}
	}

	q := domain.RiskQuality{
		DataCompleteness:  float64(complete) / n * 100,
		GeocodingAccuracy: float64(geocoded) / n * 100,
	}
	// Buckets are percentages of scored exposures only; all zero when
	// nothing carries a score.
	if scored > 0 {
		q.RiskScoreDistribution = domain.RiskScoreDistribution{
			Low:    float64(low) / float64(scored) * 100,
			Medium: float64(medium) / float64(scored) * 100,
			High:   float64(high) / float64(scored) * 100,
		}
	}
	return q
}
