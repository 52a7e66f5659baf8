package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/riskfoundry/kestrel/internal/alerts"
	"github.com/riskfoundry/kestrel/internal/analytics"
	"github.com/riskfoundry/kestrel/internal/domain"
	"github.com/riskfoundry/kestrel/internal/repository"
	"github.com/riskfoundry/kestrel/internal/weather"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	alerts       *alerts.Service
	expr         *alerts.ExpressionEngine
	scorer       *weather.Scorer
	analyticsTTL time.Duration
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, alertService *alerts.Service, expr *alerts.ExpressionEngine, scorer *weather.Scorer, analyticsTTL time.Duration, version string) *Handler {
	if analyticsTTL <= 0 {
		analyticsTTL = time.Minute
	}
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		alerts:       alertService,
		expr:         expr,
		scorer:       scorer,
		analyticsTTL: analyticsTTL,
		version:      version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAnalytics computes the portfolio analytics snapshot for the
// organization, serving from cache when a fresh snapshot exists.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	if h.cache != nil {
		snapshot, err := h.cache.GetAnalytics(ctx, orgID)
		if err != nil {
			slog.Warn("analytics cache read failed", "organization_id", orgID, "error", err)
		}
		if snapshot != nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	exposures, err := h.repo.ListExposures(ctx, orgID)
	if err != nil {
		slog.Error("failed to list exposures", "organization_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load exposures",
		})
		return
	}

	snapshot := analytics.Compute(exposures)

	if h.cache != nil {
		if err := h.cache.SetAnalytics(ctx, orgID, snapshot, h.analyticsTTL); err != nil {
			slog.Warn("analytics cache write failed", "organization_id", orgID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// ProcessAlerts runs an alert sweep for the organization.
func (h *Handler) ProcessAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	summary := h.alerts.ProcessOrganization(ctx, orgID)
	writeJSON(w, http.StatusOK, summary)
}

// CreateAlertRuleRequest is the request body for creating an alert rule.
type CreateAlertRuleRequest struct {
	ID                  string                      `json:"id,omitempty"`
	Name                string                      `json:"name"`
	Description         string                      `json:"description,omitempty"`
	Conditions          []domain.AlertCondition     `json:"conditions,omitempty"`
	Expression          string                      `json:"expression,omitempty"`
	NotificationMethods []domain.NotificationMethod `json:"notificationMethods,omitempty"`
	IsActive            *bool                       `json:"isActive,omitempty"`
	CreatedBy           string                      `json:"createdBy,omitempty"`
}

// CreateAlertRule creates or updates an alert rule. CEL expressions are
// compiled at save time so a broken expression is rejected here, not
// discovered during a sweep.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	var req CreateAlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if len(req.Conditions) == 0 && req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one condition or an expression is required",
		})
		return
	}

	for _, cond := range req.Conditions {
		if cond.Field == "" || cond.Operator == "" || cond.Aggregation == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "condition field, operator, and aggregation are required",
			})
			return
		}
		if err := alerts.ValidateConditionValue(cond); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	if req.Expression != "" && h.expr != nil {
		if err := h.expr.Validate(req.Expression); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid expression: " + err.Error(),
			})
			return
		}
	}

	now := time.Now().UTC()
	rule := &domain.AlertRule{
		ID:                  req.ID,
		OrganizationID:      orgID,
		Name:                req.Name,
		Description:         req.Description,
		Conditions:          req.Conditions,
		Expression:          req.Expression,
		NotificationMethods: req.NotificationMethods,
		IsActive:            true,
		CreatedBy:           req.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := h.repo.SaveAlertRule(ctx, orgID, rule); err != nil {
		slog.Error("failed to save alert rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save alert rule",
		})
		return
	}

	slog.Info("alert rule created", "id", rule.ID, "name", rule.Name, "organization_id", orgID)
	writeJSON(w, http.StatusCreated, rule)
}

// ListAlertRules returns all alert rules for the organization.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	rules, err := h.repo.ListAlertRules(ctx, orgID)
	if err != nil {
		slog.Error("failed to list alert rules", "organization_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alert rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetAlertRule retrieves an alert rule by ID.
func (h *Handler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetAlertRule(ctx, orgID, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert rule not found",
			})
			return
		}
		slog.Error("failed to get alert rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get alert rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// DeleteAlertRule soft-deletes an alert rule by marking it inactive.
// History referencing the rule stays intact.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DisableAlertRule(ctx, orgID, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert rule not found",
			})
			return
		}
		slog.Error("failed to disable alert rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to disable alert rule",
		})
		return
	}

	if h.expr != nil {
		h.expr.Forget(ruleID)
	}

	slog.Info("alert rule disabled", "id", ruleID, "organization_id", orgID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "alert rule disabled",
	})
}

// ListAlertInstances returns all alert instances for the organization.
func (h *Handler) ListAlertInstances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	instances, err := h.repo.ListAlertInstances(ctx, orgID)
	if err != nil {
		slog.Error("failed to list alert instances", "organization_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alert instances",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instances": instances,
		"count":     len(instances),
	})
}

// AcknowledgeRequest is the request body for acknowledging an instance.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy"`
}

// AcknowledgeAlertInstance marks an active alert instance as acknowledged.
func (h *Handler) AcknowledgeAlertInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)
	instanceID := chi.URLParam(r, "id")

	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.AcknowledgedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "acknowledgedBy is required",
		})
		return
	}

	err := h.repo.AcknowledgeAlertInstance(ctx, orgID, instanceID, req.AcknowledgedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no active alert instance to acknowledge",
			})
			return
		}
		slog.Error("failed to acknowledge alert instance", "id", instanceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to acknowledge alert instance",
		})
		return
	}

	instance, err := h.repo.GetAlertInstance(ctx, orgID, instanceID)
	if err != nil {
		slog.Error("failed to reload alert instance", "id", instanceID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"message": "acknowledged"})
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

// ResolveAlertInstance marks an alert instance as resolved, re-arming its
// rule for the next sweep.
func (h *Handler) ResolveAlertInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)
	instanceID := chi.URLParam(r, "id")

	err := h.repo.ResolveAlertInstance(ctx, orgID, instanceID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no unresolved alert instance to resolve",
			})
			return
		}
		slog.Error("failed to resolve alert instance", "id", instanceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert instance",
		})
		return
	}

	instance, err := h.repo.GetAlertInstance(ctx, orgID, instanceID)
	if err != nil {
		slog.Error("failed to reload alert instance", "id", instanceID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"message": "resolved"})
		return
	}

	writeJSON(w, http.StatusOK, instance)
}

// WeatherRisk assesses the organization's geocoded exposures against
// current weather and returns a GeoJSON FeatureCollection for map clients.
// Organizations with no geocoded exposures get the sample asset book.
func (h *Handler) WeatherRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrganizationID(ctx)

	exposures, err := h.repo.ListExposures(ctx, orgID)
	if err != nil {
		slog.Error("failed to list exposures", "organization_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load exposures",
		})
		return
	}

	assets := weather.AssetsFromExposures(exposures)
	if len(assets) == 0 {
		assets = weather.DefaultAssets()
	}

	assessments := h.scorer.Assess(ctx, assets)
	writeJSON(w, http.StatusOK, weather.ToGeoJSON(assessments))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
