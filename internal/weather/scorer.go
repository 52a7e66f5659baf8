package weather

import (
	"context"
	"log/slog"

	"github.com/riskfoundry/kestrel/internal/analytics"
	"github.com/riskfoundry/kestrel/internal/domain"
)

// Asset is an insured location to assess against current weather.
type Asset struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	AssetType    string  `json:"assetType"`
	InsuredValue float64 `json:"insuredValue"`
}

// Assessment pairs an asset with its observation and computed risk.
type Assessment struct {
	Asset     Asset       `json:"asset"`
	Weather   Observation `json:"weather"`
	RiskScore float64     `json:"riskScore"`
	RiskLevel string      `json:"riskLevel"`
}

// assetMultipliers scale the weather risk by occupancy class.
var assetMultipliers = map[string]float64{
	"commercial":              1.0,
	"critical_infrastructure": 1.5,
	"hospitality":             1.2,
	"industrial":              1.3,
	"logistics":               0.9,
}

// Scorer computes weather-driven risk scores for insured assets.
type Scorer struct {
	client *Client
	logger *slog.Logger
}

// NewScorer creates a scorer backed by the given weather client.
func NewScorer(client *Client, logger *slog.Logger) *Scorer {
	return &Scorer{client: client, logger: logger}
}

// Score computes a 0-100 weather risk score for one asset. The score is
// multiplicative: fire index scaled by wind, amplified by heat and dryness,
// damped by precipitation, then scaled by the occupancy class.
func Score(obs Observation, assetType string) float64 {
	fireWind := obs.FireIndex * (obs.WindSpeed / 10.0)

	tempFactor := obs.Temperature / 25.0
	if tempFactor < 1.0 {
		tempFactor = 1.0
	}

	humidityFactor := (100.0 - obs.Humidity) / 50.0
	if humidityFactor < 1.0 {
		humidityFactor = 1.0
	}

	precipFactor := 1.0 - obs.Precipitation/5.0
	if precipFactor < 0.1 {
		precipFactor = 0.1
	}

	multiplier, ok := assetMultipliers[assetType]
	if !ok {
		multiplier = 1.0
	}

	score := fireWind * tempFactor * humidityFactor * precipFactor * multiplier
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Level buckets a score into low/medium/high.
func Level(score float64) string {
	switch {
	case score < 25:
		return "low"
	case score < 60:
		return "medium"
	default:
		return "high"
	}
}

// Assess fetches observations and scores each asset. Per-asset fetch
// failures degrade to default observations inside the client, so this
// never returns a partial list.
func (s *Scorer) Assess(ctx context.Context, assets []Asset) []Assessment {
	assessments := make([]Assessment, 0, len(assets))
	for _, asset := range assets {
		obs := s.client.Fetch(ctx, asset.Latitude, asset.Longitude)
		score := Score(obs, asset.AssetType)
		assessments = append(assessments, Assessment{
			Asset:     asset,
			Weather:   obs,
			RiskScore: score,
			RiskLevel: Level(score),
		})
	}
	return assessments
}

// AssetsFromExposures maps risk exposures with usable coordinates onto
// assets so a live book can be assessed without a separate asset registry.
// Exposures carry no occupancy class, so the neutral multiplier applies.
func AssetsFromExposures(exposures []*domain.RiskExposure) []Asset {
	assets := make([]Asset, 0, len(exposures))
	for _, exp := range exposures {
		if exp.Latitude == 0 && exp.Longitude == 0 {
			continue
		}
		assets = append(assets, Asset{
			Name:         exp.PolicyNumber,
			Latitude:     exp.Latitude,
			Longitude:    exp.Longitude,
			AssetType:    "commercial",
			InsuredValue: analytics.ParseAmount(exp.TotalInsuredValue),
		})
	}
	return assets
}

// DefaultAssets returns a sample book of insured locations, used when an
// organization has no geocoded exposures to assess.
func DefaultAssets() []Asset {
	return []Asset{
		{Name: "Los Angeles Office Complex", Latitude: 34.0522, Longitude: -118.2437, AssetType: "commercial", InsuredValue: 5_000_000},
		{Name: "San Francisco Data Center", Latitude: 37.7749, Longitude: -122.4194, AssetType: "critical_infrastructure", InsuredValue: 10_000_000},
		{Name: "Las Vegas Casino Resort", Latitude: 36.1699, Longitude: -115.1398, AssetType: "hospitality", InsuredValue: 15_000_000},
		{Name: "Phoenix Manufacturing Plant", Latitude: 33.4484, Longitude: -112.0740, AssetType: "industrial", InsuredValue: 8_000_000},
		{Name: "Sacramento Distribution Center", Latitude: 38.5816, Longitude: -121.4944, AssetType: "logistics", InsuredValue: 3_000_000},
	}
}
