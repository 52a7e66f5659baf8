// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require organizationID for strict multi-tenancy isolation.
type Repository interface {
	// Exposure operations (written by the ingestion pipeline, read here)
	SaveExposure(ctx context.Context, organizationID string, exposure *RiskExposure) error
	ListExposures(ctx context.Context, organizationID string) ([]*RiskExposure, error)

	// Alert rule operations
	SaveAlertRule(ctx context.Context, organizationID string, rule *AlertRule) error
	GetAlertRule(ctx context.Context, organizationID string, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context, organizationID string) ([]*AlertRule, error)
	DisableAlertRule(ctx context.Context, organizationID string, ruleID string) error
	UpdateAlertRuleEvaluated(ctx context.Context, organizationID string, ruleID string, at time.Time) error

	// Alert instance operations.
	// CreateAlertInstanceIfNoneActive atomically creates the instance
	// unless an active instance already exists for its rule. Returns
	// false when creation was suppressed.
	CreateAlertInstanceIfNoneActive(ctx context.Context, organizationID string, instance *AlertInstance) (bool, error)
	GetActiveAlertInstance(ctx context.Context, organizationID string, ruleID string) (*AlertInstance, error)
	GetAlertInstance(ctx context.Context, organizationID string, instanceID string) (*AlertInstance, error)
	ListAlertInstances(ctx context.Context, organizationID string) ([]*AlertInstance, error)
	UpdateAlertInstanceNotifications(ctx context.Context, organizationID string, instanceID string, sent []NotificationRecord) error
	AcknowledgeAlertInstance(ctx context.Context, organizationID string, instanceID string, by string, at time.Time) error
	ResolveAlertInstance(ctx context.Context, organizationID string, instanceID string, at time.Time) error

	// Organization discovery for the cross-organization batch sweep
	ListOrganizationsWithActiveRules(ctx context.Context) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
