package weather

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/riskfoundry/kestrel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		obs       Observation
		assetType string
		want      float64
	}{
		{
			name:      "DefaultObservationIsMild",
			obs:       defaultObservation(),
			assetType: "commercial",
			want:      0.5, // 1.0 * (5/10), all other factors floor at 1
		},
		{
			name:      "HotDryWindy",
			obs:       Observation{FireIndex: 3, WindSpeed: 20, Temperature: 30, Humidity: 20},
			assetType: "commercial",
			want:      11.52, // 6 * 1.2 * 1.6
		},
		{
			name:      "CriticalInfrastructureScalesUp",
			obs:       Observation{FireIndex: 3, WindSpeed: 20, Temperature: 30, Humidity: 20},
			assetType: "critical_infrastructure",
			want:      17.28,
		},
		{
			name:      "UnknownAssetTypeIsNeutral",
			obs:       Observation{FireIndex: 3, WindSpeed: 20, Temperature: 30, Humidity: 20},
			assetType: "warehouse",
			want:      11.52,
		},
		{
			name:      "HeavyRainDampsToFloor",
			obs:       Observation{FireIndex: 3, WindSpeed: 20, Temperature: 30, Humidity: 20, Precipitation: 10},
			assetType: "commercial",
			want:      1.152, // precip factor floored at 0.1
		},
		{
			name:      "ExtremeConditionsClampTo100",
			obs:       Observation{FireIndex: 10, WindSpeed: 50, Temperature: 50, Humidity: 10},
			assetType: "industrial",
			want:      100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.obs, tt.assetType)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "low"},
		{24.99, "low"},
		{25, "medium"},
		{59.99, "medium"},
		{60, "high"},
		{100, "high"},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestClientFetch(t *testing.T) {
	t.Run("ParsesRealtimePayload", func(t *testing.T) {
		var gotPath, gotLocation, gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotLocation = r.URL.Query().Get("location")
			gotKey = r.URL.Query().Get("apikey")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"values":{"fireIndex":3.5,"windSpeed":12.0,"temperature":28.0,"humidity":35.0,"precipitationIntensity":0.2}}}`))
		}))
		defer server.Close()

		client := NewClient(domain.WeatherConfig{BaseURL: server.URL, APIKey: "test-key"}, testLogger())
		obs := client.Fetch(context.Background(), 34.0522, -118.2437)

		if gotPath != "/weather/realtime" {
			t.Errorf("expected /weather/realtime, got %s", gotPath)
		}
		if gotLocation != "34.0522,-118.2437" {
			t.Errorf("unexpected location param: %s", gotLocation)
		}
		if gotKey != "test-key" {
			t.Errorf("unexpected apikey param: %s", gotKey)
		}
		if obs.FireIndex != 3.5 || obs.WindSpeed != 12.0 || obs.Precipitation != 0.2 {
			t.Errorf("unexpected observation: %+v", obs)
		}
	})

	t.Run("ServerErrorFallsBackToDefault", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient(domain.WeatherConfig{BaseURL: server.URL, APIKey: "test-key"}, testLogger())
		obs := client.Fetch(context.Background(), 34.05, -118.24)

		if obs != defaultObservation() {
			t.Errorf("expected default observation, got %+v", obs)
		}
	})

	t.Run("MissingAPIKeySkipsFetch", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		client := NewClient(domain.WeatherConfig{BaseURL: server.URL}, testLogger())
		obs := client.Fetch(context.Background(), 34.05, -118.24)

		if called {
			t.Error("expected no API call without an API key")
		}
		if obs != defaultObservation() {
			t.Errorf("expected default observation, got %+v", obs)
		}
	})
}

func TestScorerAssess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"values":{"fireIndex":3,"windSpeed":20,"temperature":30,"humidity":20,"precipitationIntensity":0}}}`))
	}))
	defer server.Close()

	client := NewClient(domain.WeatherConfig{BaseURL: server.URL, APIKey: "test-key"}, testLogger())
	scorer := NewScorer(client, testLogger())

	assessments := scorer.Assess(context.Background(), DefaultAssets())
	if len(assessments) != 5 {
		t.Fatalf("expected 5 assessments, got %d", len(assessments))
	}

	// Same weather everywhere, so scores differ only by asset multiplier.
	byName := make(map[string]Assessment)
	for _, a := range assessments {
		byName[a.Asset.Name] = a
	}
	commercial := byName["Los Angeles Office Complex"]
	critical := byName["San Francisco Data Center"]
	if math.Abs(commercial.RiskScore-11.52) > 1e-9 {
		t.Errorf("commercial score = %v, want 11.52", commercial.RiskScore)
	}
	if math.Abs(critical.RiskScore-17.28) > 1e-9 {
		t.Errorf("critical infrastructure score = %v, want 17.28", critical.RiskScore)
	}
	if commercial.RiskLevel != "low" {
		t.Errorf("expected low level, got %s", commercial.RiskLevel)
	}
}

func TestAssetsFromExposures(t *testing.T) {
	exposures := []*domain.RiskExposure{
		{PolicyNumber: "POL-001", TotalInsuredValue: "$5,000,000", Latitude: 25.77, Longitude: -80.19},
		{PolicyNumber: "POL-002", TotalInsuredValue: "1000000", Latitude: 0, Longitude: 0}, // not geocoded
	}

	assets := AssetsFromExposures(exposures)
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	if assets[0].Name != "POL-001" {
		t.Errorf("unexpected asset name: %s", assets[0].Name)
	}
	if assets[0].InsuredValue != 5_000_000 {
		t.Errorf("expected parsed insured value 5000000, got %v", assets[0].InsuredValue)
	}
	if assets[0].AssetType != "commercial" {
		t.Errorf("expected commercial default, got %s", assets[0].AssetType)
	}
}

func TestToGeoJSON(t *testing.T) {
	assessments := []Assessment{
		{
			Asset:     Asset{Name: "Miami Tower", Latitude: 25.7617, Longitude: -80.1918, AssetType: "commercial", InsuredValue: 2_000_000},
			Weather:   Observation{FireIndex: 1.234, WindSpeed: 8.567, Temperature: 31.005, Humidity: 70, Precipitation: 0.1},
			RiskScore: 12.345,
			RiskLevel: "low",
		},
	}

	fc := ToGeoJSON(assessments)
	if fc.Type != "FeatureCollection" {
		t.Errorf("unexpected type: %s", fc.Type)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}

	f := fc.Features[0]
	// GeoJSON order is [lon, lat].
	if f.Geometry.Coordinates[0] != -80.1918 || f.Geometry.Coordinates[1] != 25.7617 {
		t.Errorf("unexpected coordinates: %v", f.Geometry.Coordinates)
	}
	if f.Properties["risk_score"] != 12.35 {
		t.Errorf("expected rounded risk_score 12.35, got %v", f.Properties["risk_score"])
	}
	if f.Properties["fire_index"] != 1.23 {
		t.Errorf("expected rounded fire_index 1.23, got %v", f.Properties["fire_index"])
	}
	if fc.Metadata["total_assets"] != 1 {
		t.Errorf("expected total_assets 1, got %v", fc.Metadata["total_assets"])
	}
}
