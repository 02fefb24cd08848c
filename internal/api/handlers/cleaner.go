// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/cleaner"
	"github.com/sweeparr/sweeparr/internal/models"
)

type CleanerHandler struct {
	service       *cleaner.Service
	scheduler     *cleaner.Scheduler
	instanceStore *models.InstanceStore
	configStore   *models.CleanerConfigStore
	logStore      *models.CleanerLogStore
}

func NewCleanerHandler(service *cleaner.Service, scheduler *cleaner.Scheduler, instanceStore *models.InstanceStore, configStore *models.CleanerConfigStore, logStore *models.CleanerLogStore) *CleanerHandler {
	return &CleanerHandler{
		service:       service,
		scheduler:     scheduler,
		instanceStore: instanceStore,
		configStore:   configStore,
		logStore:      logStore,
	}
}

type instanceStatus struct {
	InstanceID   int        `json:"instanceId"`
	Name         string     `json:"name"`
	Enabled      bool       `json:"enabled"`
	DryRunMode   bool       `json:"dryRunMode"`
	HasConfig    bool       `json:"hasConfig"`
	Running      bool       `json:"running"`
	CleanedToday int        `json:"cleanedToday"`
	SkippedToday int        `json:"skippedToday"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
}

type statusResponse struct {
	Instances        []instanceStatus `json:"instances"`
	SchedulerRunning bool             `json:"schedulerRunning"`
}

// GetStatus returns a per-instance summary plus the global scheduler flag.
func (h *CleanerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instanceStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list instances for status")
		RespondError(w, http.StatusInternalServerError, "Failed to load status")
		return
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	statuses := make([]instanceStatus, 0, len(instances))
	for _, instance := range instances {
		status := instanceStatus{
			InstanceID: instance.ID,
			Name:       instance.Name,
			Enabled:    instance.Enabled,
			Running:    h.scheduler.InstanceActive(instance.ID),
		}

		cfg, err := h.configStore.Get(r.Context(), instance.ID)
		switch {
		case err == nil:
			status.HasConfig = true
			status.DryRunMode = cfg.DryRunMode
		case errors.Is(err, models.ErrConfigNotFound):
		default:
			log.Error().Err(err).Int("instanceID", instance.ID).Msg("failed to load config for status")
		}

		stats, err := h.logStore.DayStats(r.Context(), instance.ID, dayStart)
		if err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Msg("failed to load day stats")
		} else {
			status.CleanedToday = stats.CleanedToday
			status.SkippedToday = stats.SkippedToday
			status.LastRunAt = stats.LastRunAt
		}

		statuses = append(statuses, status)
	}

	RespondJSON(w, http.StatusOK, statusResponse{
		Instances:        statuses,
		SchedulerRunning: h.scheduler.Running(),
	})
}

type configWithInstance struct {
	*models.CleanerConfig
	InstanceName string              `json:"instanceName"`
	InstanceKind models.InstanceKind `json:"instanceKind"`
}

// ListConfigs returns every cleaner config joined with instance metadata.
func (h *CleanerHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list cleaner configs")
		RespondError(w, http.StatusInternalServerError, "Failed to list configs")
		return
	}

	instances, err := h.instanceStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list instances")
		RespondError(w, http.StatusInternalServerError, "Failed to list configs")
		return
	}

	byID := make(map[int]*models.Instance, len(instances))
	for _, instance := range instances {
		byID[instance.ID] = instance
	}

	result := make([]configWithInstance, 0, len(configs))
	for _, cfg := range configs {
		entry := configWithInstance{CleanerConfig: cfg}
		if instance, ok := byID[cfg.InstanceID]; ok {
			entry.InstanceName = instance.Name
			entry.InstanceKind = instance.Kind
		}
		result = append(result, entry)
	}

	RespondJSON(w, http.StatusOK, result)
}

// CreateConfig creates a default config for an instance.
func (h *CleanerHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceID int `json:"instanceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.instanceStore.Get(r.Context(), req.InstanceID); err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to load instance")
		return
	}

	cfg, err := h.configStore.Upsert(r.Context(), models.DefaultCleanerConfig(req.InstanceID))
	if err != nil {
		log.Error().Err(err).Int("instanceID", req.InstanceID).Msg("failed to create cleaner config")
		RespondError(w, http.StatusInternalServerError, "Failed to create config")
		return
	}

	RespondJSON(w, http.StatusCreated, cfg)
}

// UpdateConfig applies a partial update: fields absent from the request body
// keep their stored values. Out-of-range values are rejected with field-level
// detail, never silently clamped at this boundary.
func (h *CleanerHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	existing, err := h.configStore.Get(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, models.ErrConfigNotFound) {
			RespondError(w, http.StatusNotFound, "Config not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to load config")
		return
	}

	// Unmarshalling over a copy of the stored config gives partial-update
	// semantics for free: absent fields keep their current values.
	updated := *existing
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	updated.InstanceID = instanceID

	if err := updated.Validate(); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			RespondJSON(w, http.StatusBadRequest, vErr)
			return
		}
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.configStore.Upsert(r.Context(), &updated)
	if err != nil {
		log.Error().Err(err).Int("instanceID", instanceID).Msg("failed to update cleaner config")
		RespondError(w, http.StatusInternalServerError, "Failed to update config")
		return
	}

	RespondJSON(w, http.StatusOK, saved)
}

func (h *CleanerHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	if err := h.configStore.Delete(r.Context(), instanceID); err != nil {
		if errors.Is(err, models.ErrConfigNotFound) {
			RespondError(w, http.StatusNotFound, "Config not found")
			return
		}
		log.Error().Err(err).Int("instanceID", instanceID).Msg("failed to delete cleaner config")
		RespondError(w, http.StatusInternalServerError, "Failed to delete config")
		return
	}

	RespondJSON(w, http.StatusNoContent, nil)
}

// Trigger starts a manual run. Responds 429 inside the cooldown window and
// 409 while a run is already active.
func (h *CleanerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	if err := h.scheduler.TriggerManual(r.Context(), instanceID); err != nil {
		var cooldownErr *cleaner.CooldownError
		switch {
		case errors.As(err, &cooldownErr):
			RespondJSON(w, http.StatusTooManyRequests, map[string]any{
				"triggered": false,
				"message":   cooldownErr.Error(),
			})
		case errors.Is(err, cleaner.ErrRunInProgress):
			RespondJSON(w, http.StatusConflict, map[string]any{
				"triggered": false,
				"message":   err.Error(),
			})
		case errors.Is(err, models.ErrConfigNotFound):
			RespondError(w, http.StatusNotFound, "Config not found")
		default:
			log.Error().Err(err).Int("instanceID", instanceID).Msg("manual trigger failed")
			RespondError(w, http.StatusInternalServerError, "Failed to trigger run")
		}
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"triggered": true,
		"message":   "run started",
	})
}

// Preview runs a dry-run evaluation and returns the grouped preview payload.
func (h *CleanerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	preview, err := h.service.Preview(r.Context(), instanceID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInstanceNotFound):
			RespondError(w, http.StatusNotFound, "Instance not found")
		case errors.Is(err, models.ErrConfigNotFound):
			RespondError(w, http.StatusNotFound, "Config not found")
		default:
			log.Error().Err(err).Int("instanceID", instanceID).Msg("preview failed")
			RespondError(w, http.StatusInternalServerError, "Failed to generate preview")
		}
		return
	}

	RespondJSON(w, http.StatusOK, preview)
}

// DryRun runs a non-destructive evaluation and returns the flat result.
func (h *CleanerHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	result, err := h.service.DryRun(r.Context(), instanceID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInstanceNotFound):
			RespondError(w, http.StatusNotFound, "Instance not found")
		case errors.Is(err, models.ErrConfigNotFound):
			RespondError(w, http.StatusNotFound, "Config not found")
		default:
			log.Error().Err(err).Int("instanceID", instanceID).Msg("dry run failed")
			RespondError(w, http.StatusInternalServerError, "Dry run failed")
		}
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// ListLogs returns a paginated run history, optionally filtered by status
// and instance.
func (h *CleanerHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.CleanerLogFilter{
		Status: models.RunStatus(query.Get("status")),
	}
	if raw := query.Get("instanceId"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			filter.InstanceID = id
		}
	}
	if raw := query.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			filter.Page = page
		}
	}
	if raw := query.Get("pageSize"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			filter.PageSize = size
		}
	}

	logs, totalCount, err := h.logStore.List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list cleaner logs")
		RespondError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	if logs == nil {
		logs = []*models.CleanerLog{}
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"logs":       logs,
		"totalCount": totalCount,
	})
}

// GetStatistics returns aggregate run history for the statistics view.
func (h *CleanerHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	stats, err := h.logStore.Statistics(r.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("failed to compute statistics")
		RespondError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}

	RespondJSON(w, http.StatusOK, stats)
}

// ToggleScheduler flips the global scheduler flag.
func (h *CleanerHandler) ToggleScheduler(w http.ResponseWriter, r *http.Request) {
	running := h.scheduler.Toggle()
	RespondJSON(w, http.StatusOK, map[string]bool{"running": running})
}
