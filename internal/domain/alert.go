package domain

import (
	"time"
)

// AlertRule is a persisted, user-defined monitoring rule. Rules are scoped
// to one organization and evaluated against that organization's current
// exposure set.
type AlertRule struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Description    string `json:"description"`

	// Conditions over exposure aggregates. A rule triggers when any of
	// its conditions triggers; the first triggering condition supplies
	// the instance's trigger value and description.
	Conditions []AlertCondition `json:"conditions"`

	// Expression is an optional CEL expression evaluated over the
	// organization's portfolio aggregates (total_insured_value,
	// policy_count, hhi, ...). When set it is evaluated alongside the
	// structured conditions.
	Expression string `json:"expression,omitempty"`

	NotificationMethods []NotificationMethod `json:"notificationMethods"`

	IsActive        bool       `json:"isActive"`
	LastEvaluatedAt *time.Time `json:"lastEvaluatedAt,omitempty"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// AlertCondition is one threshold check over an exposure aggregate.
// Value is kept as a string: for grouped counts it doubles as the exact
// match target for the GroupBy field, and for numeric comparisons it is
// parsed with the same forgiving semantics as exposure values.
type AlertCondition struct {
	Field       string `json:"field"`
	Operator    string `json:"operator"`    // gt, gte, lt, lte, eq, ne
	Value       string `json:"value"`
	Aggregation string `json:"aggregation"` // sum, count, avg, max, min
	GroupBy     string `json:"groupBy,omitempty"`
}

// Supported comparison operators.
const (
	OpGreaterThan    = "gt"
	OpGreaterOrEqual = "gte"
	OpLessThan       = "lt"
	OpLessOrEqual    = "lte"
	OpEqual          = "eq"
	OpNotEqual       = "ne"
)

// Supported aggregations.
const (
	AggSum   = "sum"
	AggCount = "count"
	AggAvg   = "avg"
	AggMax   = "max"
	AggMin   = "min"
)

// NotificationMethod configures one delivery channel for a rule.
type NotificationMethod struct {
	Type   string             `json:"type"` // email or webhook
	Config NotificationConfig `json:"config"`
}

// NotificationConfig holds per-channel settings. Email methods use To and
// Subject; webhook methods use URL and Headers.
type NotificationConfig struct {
	To      []string          `json:"to,omitempty"`
	Subject string            `json:"subject,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Notification channel types.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// AlertInstance is one triggering event of a rule. At most one active
// instance exists per rule at any time; a re-trigger while one is open is
// suppressed. Instances transition active -> acknowledged -> resolved only
// via explicit API action.
type AlertInstance struct {
	ID             string `json:"id"`
	AlertRuleID    string `json:"alertRuleId"`
	OrganizationID string `json:"organizationId"`

	Status string `json:"status"` // active, acknowledged, resolved

	TriggerValue     string  `json:"triggerValue"`
	Threshold        float64 `json:"threshold"`
	TriggerCondition string  `json:"triggerCondition"`

	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	NotificationsSent []NotificationRecord `json:"notificationsSent"`

	CreatedAt time.Time `json:"createdAt"`
}

// Alert instance statuses.
const (
	InstanceActive       = "active"
	InstanceAcknowledged = "acknowledged"
	InstanceResolved     = "resolved"
)

// NotificationRecord is the delivery outcome of one channel attempt.
type NotificationRecord struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"` // sent or failed
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Notification delivery statuses.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// SweepSummary is the structured result of an alert processing pass.
// Evaluated counts rules that were evaluated without error, whether or not
// they triggered; Triggered counts new instance creations only.
type SweepSummary struct {
	Evaluated int      `json:"evaluated"`
	Triggered int      `json:"triggered"`
	Errors    []string `json:"errors"`
}

// Merge folds another summary into this one.
func (s *SweepSummary) Merge(other *SweepSummary) {
	if other == nil {
		return
	}
	s.Evaluated += other.Evaluated
	s.Triggered += other.Triggered
	s.Errors = append(s.Errors, other.Errors...)
}
