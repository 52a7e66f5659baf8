// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveExposure stores a risk exposure with organization isolation.
func (r *SQLRepository) SaveExposure(ctx context.Context, organizationID string, exposure *domain.RiskExposure) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	var riskScore sql.NullFloat64
	if exposure.RiskScore != nil {
		riskScore = sql.NullFloat64{Float64: *exposure.RiskScore, Valid: true}
	}

	query := `
		INSERT INTO risk_exposures (
			id, organization_id, policy_number, total_insured_value,
			latitude, longitude, peril_type, risk_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		exposure.ID, organizationID, exposure.PolicyNumber, exposure.TotalInsuredValue,
		exposure.Latitude, exposure.Longitude, exposure.PerilType,
		riskScore, exposure.CreatedAt,
	)
	return err
}

// ListExposures retrieves all exposures for an organization.
func (r *SQLRepository) ListExposures(ctx context.Context, organizationID string) ([]*domain.RiskExposure, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, policy_number, total_insured_value,
			   latitude, longitude, peril_type, risk_score, created_at
		FROM risk_exposures
		WHERE organization_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exposures []*domain.RiskExposure
	for rows.Next() {
		var e domain.RiskExposure
		var riskScore sql.NullFloat64

		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.PolicyNumber, &e.TotalInsuredValue,
			&e.Latitude, &e.Longitude, &e.PerilType, &riskScore, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if riskScore.Valid {
			v := riskScore.Float64
			e.RiskScore = &v
		}
		exposures = append(exposures, &e)
	}

	return exposures, rows.Err()
}

// SaveAlertRule stores or updates an alert rule with organization isolation.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, organizationID string, rule *domain.AlertRule) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	conditions, _ := json.Marshal(rule.Conditions)
	methods, _ := json.Marshal(rule.NotificationMethods)

	isActive := 0
	if rule.IsActive {
		isActive = 1
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO alert_rules (
			id, organization_id, name, description, conditions, expression,
			notification_methods, is_active, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, organization_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			conditions = excluded.conditions,
			expression = excluded.expression,
			notification_methods = excluded.notification_methods,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, organizationID, rule.Name, rule.Description,
		string(conditions), rule.Expression, string(methods),
		isActive, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetAlertRule retrieves an alert rule by ID with organization isolation.
func (r *SQLRepository) GetAlertRule(ctx context.Context, organizationID string, ruleID string) (*domain.AlertRule, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, name, description, conditions, expression,
			   notification_methods, is_active, last_evaluated_at, created_by,
			   created_at, updated_at
		FROM alert_rules
		WHERE organization_id = ? AND id = ?
	`

	rule, err := scanAlertRule(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListAlertRules retrieves all alert rules for an organization.
func (r *SQLRepository) ListAlertRules(ctx context.Context, organizationID string) ([]*domain.AlertRule, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, name, description, conditions, expression,
			   notification_methods, is_active, last_evaluated_at, created_by,
			   created_at, updated_at
		FROM alert_rules
		WHERE organization_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DisableAlertRule soft-deletes a rule by setting is_active = 0.
func (r *SQLRepository) DisableAlertRule(ctx context.Context, organizationID string, ruleID string) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_rules
		SET is_active = 0, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), organizationID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateAlertRuleEvaluated records when a rule was last evaluated.
func (r *SQLRepository) UpdateAlertRuleEvaluated(ctx context.Context, organizationID string, ruleID string, at time.Time) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_rules
		SET last_evaluated_at = ?
		WHERE organization_id = ? AND id = ?
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), at, organizationID, ruleID)
	return err
}

// CreateAlertInstanceIfNoneActive creates an alert instance unless the rule
// already has an active one. The guard runs in the INSERT itself and the
// partial unique index on (organization_id, alert_rule_id) WHERE
// status='active' backs it up, so two concurrent sweeps cannot both create
// an instance.
func (r *SQLRepository) CreateAlertInstanceIfNoneActive(ctx context.Context, organizationID string, instance *domain.AlertInstance) (bool, error) {
	if organizationID == "" {
		return false, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	sent, _ := json.Marshal(instance.NotificationsSent)
	if instance.NotificationsSent == nil {
		sent = []byte("[]")
	}

	query := `
		INSERT INTO alert_instances (
			id, alert_rule_id, organization_id, status, trigger_value,
			threshold, trigger_condition, acknowledged_by, notifications_sent, created_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alert_instances
			WHERE organization_id = ? AND alert_rule_id = ? AND status = 'active'
		)
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		instance.ID, instance.AlertRuleID, organizationID, instance.Status,
		instance.TriggerValue, instance.Threshold, instance.TriggerCondition,
		instance.AcknowledgedBy, string(sent), instance.CreatedAt,
		organizationID, instance.AlertRuleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetActiveAlertInstance retrieves the rule's currently active instance.
func (r *SQLRepository) GetActiveAlertInstance(ctx context.Context, organizationID string, ruleID string) (*domain.AlertInstance, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, alert_rule_id, organization_id, status, trigger_value,
			   threshold, trigger_condition, acknowledged_by, acknowledged_at,
			   resolved_at, notifications_sent, created_at
		FROM alert_instances
		WHERE organization_id = ? AND alert_rule_id = ? AND status = 'active'
	`

	instance, err := scanAlertInstance(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return instance, err
}

// GetAlertInstance retrieves an alert instance by ID with organization isolation.
func (r *SQLRepository) GetAlertInstance(ctx context.Context, organizationID string, instanceID string) (*domain.AlertInstance, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, alert_rule_id, organization_id, status, trigger_value,
			   threshold, trigger_condition, acknowledged_by, acknowledged_at,
			   resolved_at, notifications_sent, created_at
		FROM alert_instances
		WHERE organization_id = ? AND id = ?
	`

	instance, err := scanAlertInstance(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return instance, err
}

// ListAlertInstances retrieves all alert instances for an organization,
// newest first.
func (r *SQLRepository) ListAlertInstances(ctx context.Context, organizationID string) ([]*domain.AlertInstance, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, alert_rule_id, organization_id, status, trigger_value,
			   threshold, trigger_condition, acknowledged_by, acknowledged_at,
			   resolved_at, notifications_sent, created_at
		FROM alert_instances
		WHERE organization_id = ?
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*domain.AlertInstance
	for rows.Next() {
		instance, err := scanAlertInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// UpdateAlertInstanceNotifications replaces the instance's notification
// outcome list in one write.
func (r *SQLRepository) UpdateAlertInstanceNotifications(ctx context.Context, organizationID string, instanceID string, sent []domain.NotificationRecord) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(sent)
	if err != nil {
		return fmt.Errorf("failed to marshal notification records: %w", err)
	}

	query := `
		UPDATE alert_instances
		SET notifications_sent = ?
		WHERE organization_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(payload), organizationID, instanceID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AcknowledgeAlertInstance moves an active instance to acknowledged.
func (r *SQLRepository) AcknowledgeAlertInstance(ctx context.Context, organizationID string, instanceID string, by string, at time.Time) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_instances
		SET status = ?, acknowledged_by = ?, acknowledged_at = ?
		WHERE organization_id = ? AND id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		domain.InstanceAcknowledged, by, at,
		organizationID, instanceID, domain.InstanceActive,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveAlertInstance moves an active or acknowledged instance to resolved,
// re-arming the rule for future triggers.
func (r *SQLRepository) ResolveAlertInstance(ctx context.Context, organizationID string, instanceID string, at time.Time) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_instances
		SET status = ?, resolved_at = ?
		WHERE organization_id = ? AND id = ? AND status != ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		domain.InstanceResolved, at,
		organizationID, instanceID, domain.InstanceResolved,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrganizationsWithActiveRules returns the distinct organizations that
// have at least one active alert rule. Drives the cross-organization sweep.
func (r *SQLRepository) ListOrganizationsWithActiveRules(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT organization_id
		FROM alert_rules
		WHERE is_active = 1
		ORDER BY organization_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var orgID string
		if err := rows.Scan(&orgID); err != nil {
			return nil, err
		}
		orgs = append(orgs, orgID)
	}

	return orgs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlertRule(s scanner) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	var conditions, methods string
	var isActive int
	var lastEvaluated sql.NullTime

	if err := s.Scan(
		&rule.ID, &rule.OrganizationID, &rule.Name, &rule.Description,
		&conditions, &rule.Expression, &methods, &isActive,
		&lastEvaluated, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.IsActive = isActive == 1
	if lastEvaluated.Valid {
		t := lastEvaluated.Time
		rule.LastEvaluatedAt = &t
	}
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to parse rule conditions for %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(methods), &rule.NotificationMethods); err != nil {
		return nil, fmt.Errorf("failed to parse notification methods for %s: %w", rule.ID, err)
	}
	return &rule, nil
}

func scanAlertInstance(s scanner) (*domain.AlertInstance, error) {
	var instance domain.AlertInstance
	var sent string
	var acknowledgedAt, resolvedAt sql.NullTime

	if err := s.Scan(
		&instance.ID, &instance.AlertRuleID, &instance.OrganizationID,
		&instance.Status, &instance.TriggerValue, &instance.Threshold,
		&instance.TriggerCondition, &instance.AcknowledgedBy,
		&acknowledgedAt, &resolvedAt, &sent, &instance.CreatedAt,
	); err != nil {
		return nil, err
	}

	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		instance.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		instance.ResolvedAt = &t
	}
	if sent != "" {
		if err := json.Unmarshal([]byte(sent), &instance.NotificationsSent); err != nil {
			return nil, fmt.Errorf("failed to parse notification records for %s: %w", instance.ID, err)
		}
	}
	return &instance, nil
}

// isUniqueViolation reports whether an error came from the one-active-
// instance unique index, on either driver.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
