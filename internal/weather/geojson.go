package weather

import (
	"math"
	"time"
)

// Feature is a GeoJSON Feature with a Point geometry.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a GeoJSON Point. Coordinates are [lon, lat].
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureCollection is a GeoJSON FeatureCollection with metadata for the
// map layer.
type FeatureCollection struct {
	Type     string         `json:"type"`
	Features []Feature      `json:"features"`
	Metadata map[string]any `json:"metadata"`
}

// ToGeoJSON renders assessments as a FeatureCollection for map clients.
func ToGeoJSON(assessments []Assessment) *FeatureCollection {
	features := make([]Feature, 0, len(assessments))
	for _, a := range assessments {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{a.Asset.Longitude, a.Asset.Latitude},
			},
			Properties: map[string]any{
				"name":          a.Asset.Name,
				"asset_type":    a.Asset.AssetType,
				"insured_value": a.Asset.InsuredValue,
				"fire_index":    round2(a.Weather.FireIndex),
				"wind_speed":    round2(a.Weather.WindSpeed),
				"temperature":   round2(a.Weather.Temperature),
				"humidity":      round2(a.Weather.Humidity),
				"precipitation": round2(a.Weather.Precipitation),
				"risk_score":    round2(a.RiskScore),
				"risk_level":    a.RiskLevel,
			},
		})
	}

	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
		Metadata: map[string]any{
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"total_assets": len(features),
			"data_source":  "Tomorrow.io Weather API",
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
