package domain

import (
	"time"
)

// RiskExposure is one insured property/policy record as delivered by the
// ingestion pipeline. Exposures are immutable for analytics purposes: the
// engine only ever reads them.
type RiskExposure struct {
	// Core identifiers
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`

	// PolicyNumber may repeat across rows; active policy counts use a
	// distinct count over this field.
	PolicyNumber string `json:"policyNumber"`

	// TotalInsuredValue is kept as the raw ingested string. Upstream CSV
	// data is dirty; parsing happens centrally via analytics.ParseAmount
	// and unparsable values degrade to zero, never NaN.
	TotalInsuredValue string `json:"totalInsuredValue"`

	// Coordinates in decimal degrees. Zero values mean "ungeocoded".
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// PerilType is a free-text category ("wind", "flood", ...). Empty is
	// normalized to PerilUnknown during aggregation.
	PerilType string `json:"perilType"`

	// RiskScore on a 0-100 scale; nil when the ingested row had none.
	RiskScore *float64 `json:"riskScore,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PerilUnknown is the catch-all peril category for exposures without one.
const PerilUnknown = "Unknown"

// HasRiskScore reports whether the exposure carries a risk score.
func (e *RiskExposure) HasRiskScore() bool {
	return e.RiskScore != nil
}

// Geocoded reports whether the exposure has usable coordinates.
// A zero latitude AND longitude is the ungeocoded sentinel.
func (e *RiskExposure) Geocoded() bool {
	return e.Latitude != 0 && e.Longitude != 0
}

// Peril returns the peril category, normalizing empty to PerilUnknown.
func (e *RiskExposure) Peril() string {
	if e.PerilType == "" {
		return PerilUnknown
	}
	return e.PerilType
}
