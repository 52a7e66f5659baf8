// Package worker provides async exposure-update processing.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// alertProcessor is the slice of the alert service the worker needs.
type alertProcessor interface {
	ProcessOrganization(ctx context.Context, organizationID string) *domain.SweepSummary
}

// Worker reacts to exposure updates from the EventBus: it invalidates the
// cached analytics snapshot and re-evaluates the organization's alert rules.
type Worker struct {
	bus    domain.EventBus
	cache  domain.Cache
	alerts alertProcessor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// OrganizationIDs is the list of organizations to process
	// (empty = all via the global subscription)
	OrganizationIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, cache domain.Cache, alerts alertProcessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		cache:  cache,
		alerts: alerts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing exposure updates for the given organizations.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.OrganizationIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, orgID := range cfg.OrganizationIDs {
		if err := w.startOrganizationWorker(orgID); err != nil {
			slog.Error("failed to start worker for organization",
				"organization_id", orgID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"organization_count", len(cfg.OrganizationIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all organizations
// (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" organization ID.
	// In production, you'd want to subscribe with wildcards or JetStream.
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicExposuresUpdated, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startOrganizationWorker starts a worker for a specific organization.
func (w *Worker) startOrganizationWorker(orgID string) error {
	sub, err := w.bus.Subscribe(w.ctx, orgID, domain.TopicExposuresUpdated, func(ctx context.Context, msg *domain.Message) error {
		return w.processUpdate(ctx, orgID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("organization worker started",
		"organization_id", orgID,
		"topic", domain.TopicExposuresUpdated,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processUpdate(ctx, msg.OrganizationID, msg)
}

// ExposureUpdateMessage is the payload published when an organization's
// exposure book changes.
type ExposureUpdateMessage struct {
	OrganizationID string `json:"organizationId"`
	ExposureCount  int    `json:"exposureCount"`
	TraceID        string `json:"traceId,omitempty"`
}

// processUpdate reacts to one exposure-book change.
func (w *Worker) processUpdate(ctx context.Context, orgID string, msg *domain.Message) error {
	start := time.Now()

	var update ExposureUpdateMessage
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		slog.Error("failed to parse exposure update message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message organization if provided
	if update.OrganizationID != "" {
		orgID = update.OrganizationID
	}

	slog.Debug("processing exposure update",
		"organization_id", orgID,
		"exposure_count", update.ExposureCount,
	)

	// 1. Drop the stale analytics snapshot so the next read recomputes.
	if w.cache != nil {
		if err := w.cache.InvalidateAnalytics(ctx, orgID); err != nil {
			slog.Error("failed to invalidate analytics cache",
				"organization_id", orgID,
				"error", err,
			)
		}
	}

	// 2. Re-evaluate the organization's alert rules against the new book.
	summary := w.alerts.ProcessOrganization(ctx, orgID)

	slog.Info("exposure update processed",
		"organization_id", orgID,
		"rules_evaluated", summary.Evaluated,
		"alerts_triggered", summary.Triggered,
		"errors", len(summary.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
