package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRiskExposures = `
CREATE TABLE IF NOT EXISTS risk_exposures (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    policy_number TEXT NOT NULL DEFAULT '',
    total_insured_value TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    peril_type TEXT NOT NULL DEFAULT '',
    risk_score REAL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_exposures_org ON risk_exposures(organization_id);
CREATE INDEX IF NOT EXISTS idx_risk_exposures_peril ON risk_exposures(organization_id, peril_type);
`

// Rule IDs are only unique within an organization. The composite key keeps
// one org's upsert from ever touching another org's rule of the same ID.
const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    conditions TEXT NOT NULL,
    expression TEXT NOT NULL DEFAULT '',
    notification_methods TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    last_evaluated_at TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_org ON alert_rules(organization_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_active ON alert_rules(organization_id, is_active);
`

// The partial unique index makes "at most one active instance per rule" a
// database invariant, so concurrent sweeps cannot double-fire a rule even
// across processes.
const schemaAlertInstances = `
CREATE TABLE IF NOT EXISTS alert_instances (
    id TEXT PRIMARY KEY,
    alert_rule_id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    status TEXT NOT NULL,
    trigger_value TEXT NOT NULL DEFAULT '',
    threshold REAL NOT NULL DEFAULT 0,
    trigger_condition TEXT NOT NULL DEFAULT '',
    acknowledged_by TEXT NOT NULL DEFAULT '',
    acknowledged_at TIMESTAMP,
    resolved_at TIMESTAMP,
    notifications_sent TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_instances_org ON alert_instances(organization_id);
CREATE INDEX IF NOT EXISTS idx_alert_instances_rule ON alert_instances(organization_id, alert_rule_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_instances_one_active
    ON alert_instances(organization_id, alert_rule_id) WHERE status = 'active';
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRiskExposures,
		schemaAlertRules,
		schemaAlertInstances,
	}
}
