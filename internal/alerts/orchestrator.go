package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskfoundry/kestrel/internal/analytics"
	"github.com/riskfoundry/kestrel/internal/domain"
)

// Notifier dispatches alert notifications across a rule's configured
// channels and reports the per-channel outcomes. Implementations must
// isolate channel failures from each other.
type Notifier interface {
	Dispatch(ctx context.Context, rule *domain.AlertRule, instance *domain.AlertInstance) []domain.NotificationRecord
}

// defaultRuleTimeout bounds one rule's evaluation plus notification
// dispatch so a slow webhook cannot stall the rest of the sweep.
const defaultRuleTimeout = 30 * time.Second

// Service is the alert orchestrator. It drives every active rule of an
// organization through evaluation against the current exposure snapshot,
// creates alert instances for new triggers, suppresses re-triggers while an
// instance is already active, and dispatches notifications.
//
// Evaluation of the same rule is serialized by a per-rule lock; the
// repository additionally enforces the single-active-instance invariant
// atomically, so concurrent sweeps cannot double-fire a rule.
type Service struct {
	repo        domain.Repository
	notifier    Notifier
	expr        *ExpressionEngine
	bus         domain.EventBus // optional
	logger      *slog.Logger
	ruleTimeout time.Duration

	mu        sync.Mutex
	ruleLocks map[string]*sync.Mutex
}

// NewService creates the orchestrator. The event bus is optional; pass nil
// to disable trigger/sweep events.
func NewService(repo domain.Repository, notifier Notifier, expr *ExpressionEngine, bus domain.EventBus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		notifier:    notifier,
		expr:        expr,
		bus:         bus,
		logger:      logger,
		ruleTimeout: defaultRuleTimeout,
		ruleLocks:   make(map[string]*sync.Mutex),
	}
}

// ProcessAll runs the sweep across every organization with at least one
// active rule. A failure enumerating organizations is fatal for the whole
// batch; per-organization failures are folded into the summary.
func (s *Service) ProcessAll(ctx context.Context) (*domain.SweepSummary, error) {
	orgs, err := s.repo.ListOrganizationsWithActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations with active rules: %w", err)
	}

	summary := &domain.SweepSummary{Errors: []string{}}
	for _, orgID := range orgs {
		summary.Merge(s.ProcessOrganization(ctx, orgID))
	}

	s.logger.Info("alert sweep completed",
		"organizations", len(orgs),
		"evaluated", summary.Evaluated,
		"triggered", summary.Triggered,
		"errors", len(summary.Errors))
	return summary, nil
}

// ProcessOrganization evaluates every active rule of one organization
// against its current exposures. A single rule's failure is recorded in the
// summary and never aborts the remaining rules.
func (s *Service) ProcessOrganization(ctx context.Context, organizationID string) *domain.SweepSummary {
	summary := &domain.SweepSummary{Errors: []string{}}

	exposures, err := s.repo.ListExposures(ctx, organizationID)
	if err != nil {
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("org %s: failed to load exposures: %v", organizationID, err))
		return summary
	}
	snapshot := analytics.Compute(exposures)

	rules, err := s.repo.ListAlertRules(ctx, organizationID)
	if err != nil {
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("org %s: failed to load alert rules: %v", organizationID, err))
		return summary
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		s.processRule(ctx, organizationID, rule, exposures, snapshot, summary)
	}

	s.publishSweepCompleted(ctx, organizationID, summary)
	return summary
}

// processRule runs one rule through evaluate -> create instance -> notify.
// A panic at any stage is contained here so one pathological rule cannot
// take down the sweep.
func (s *Service) processRule(ctx context.Context, organizationID string, rule *domain.AlertRule, exposures []*domain.RiskExposure, snapshot *domain.PortfolioAnalytics, summary *domain.SweepSummary) {
	lock := s.lockFor(organizationID, rule.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.ruleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("rule %s (%s): panic: %v", rule.ID, rule.Name, r))
		}
	}()

	triggered, result, description, err := s.evaluateRule(rule, exposures, snapshot)
	if err != nil {
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("rule %s (%s): %v", rule.ID, rule.Name, err))
		return
	}
	summary.Evaluated++

	if err := s.repo.UpdateAlertRuleEvaluated(ctx, organizationID, rule.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update rule evaluation timestamp",
			"ruleId", rule.ID, "error", err)
	}

	if !triggered {
		return
	}

	instance := &domain.AlertInstance{
		ID:                uuid.New().String(),
		AlertRuleID:       rule.ID,
		OrganizationID:    organizationID,
		Status:            domain.InstanceActive,
		TriggerValue:      result.CurrentValue,
		Threshold:         result.Threshold,
		TriggerCondition:  description,
		NotificationsSent: []domain.NotificationRecord{},
		CreatedAt:         time.Now().UTC(),
	}

	created, err := s.repo.CreateAlertInstanceIfNoneActive(ctx, organizationID, instance)
	if err != nil {
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("rule %s (%s): failed to create alert instance: %v", rule.ID, rule.Name, err))
		return
	}
	if !created {
		s.logger.Info("alert re-trigger suppressed, active instance exists",
			"ruleId", rule.ID, "ruleName", rule.Name, "organizationId", organizationID)
		return
	}
	summary.Triggered++

	s.logger.Info("alert triggered",
		"ruleId", rule.ID,
		"ruleName", rule.Name,
		"organizationId", organizationID,
		"instanceId", instance.ID,
		"triggerValue", instance.TriggerValue)

	s.dispatchNotifications(ctx, organizationID, rule, instance)
	s.publishTriggered(ctx, organizationID, rule, instance)
}

// evaluateRule checks the structured conditions first (any triggering
// condition wins and supplies the trigger value), then the optional CEL
// expression. Unsupported condition combinations are logged and skipped
// rather than failing the rule.
func (s *Service) evaluateRule(rule *domain.AlertRule, exposures []*domain.RiskExposure, snapshot *domain.PortfolioAnalytics) (bool, *ConditionResult, string, error) {
	for _, cond := range rule.Conditions {
		result, err := EvaluateCondition(cond, exposures)
		if err != nil {
			if errors.Is(err, ErrUnsupportedCondition) {
				s.logger.Debug("skipping unsupported condition",
					"ruleId", rule.ID, "aggregation", cond.Aggregation, "field", cond.Field)
				continue
			}
			return false, nil, "", err
		}
		if result.Triggered {
			return true, result, DescribeCondition(cond, result), nil
		}
	}

	if rule.Expression != "" && s.expr != nil {
		ok, err := s.expr.Evaluate(rule.ID, rule.Expression, snapshot)
		if err != nil {
			return false, nil, "", err
		}
		if ok {
			result := &ConditionResult{
				Triggered:         true,
				CurrentValue:      "true",
				AffectedExposures: []*domain.RiskExposure{},
			}
			return true, result, rule.Expression, nil
		}
	}

	return false, nil, "", nil
}

// dispatchNotifications fans the trigger out to every configured channel
// and persists the complete outcome list in one write after all channels
// were attempted.
func (s *Service) dispatchNotifications(ctx context.Context, organizationID string, rule *domain.AlertRule, instance *domain.AlertInstance) {
	if s.notifier == nil || len(rule.NotificationMethods) == 0 {
		return
	}

	records := s.notifier.Dispatch(ctx, rule, instance)
	if len(records) == 0 {
		return
	}
	instance.NotificationsSent = records

	if err := s.repo.UpdateAlertInstanceNotifications(ctx, organizationID, instance.ID, records); err != nil {
		s.logger.Warn("failed to persist notification records",
			"instanceId", instance.ID, "error", err)
	}
}

func (s *Service) publishTriggered(ctx context.Context, organizationID string, rule *domain.AlertRule, instance *domain.AlertInstance) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"ruleId":           rule.ID,
		"ruleName":         rule.Name,
		"instanceId":       instance.ID,
		"triggerValue":     instance.TriggerValue,
		"triggerCondition": instance.TriggerCondition,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, organizationID, domain.TopicAlertTriggered, payload); err != nil {
		s.logger.Warn("failed to publish alert trigger event", "error", err)
	}
}

func (s *Service) publishSweepCompleted(ctx context.Context, organizationID string, summary *domain.SweepSummary) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, organizationID, domain.TopicSweepCompleted, payload); err != nil {
		s.logger.Warn("failed to publish sweep event", "error", err)
	}
}

// lockFor returns the mutex serializing evaluation of one rule. Rule IDs
// are only unique within an organization, so the lock key carries both.
func (s *Service) lockFor(organizationID, ruleID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := organizationID + "/" + ruleID
	lock, ok := s.ruleLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.ruleLocks[key] = lock
	}
	return lock
}
