// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

type InstancesHandler struct {
	instanceStore *models.InstanceStore
	configStore   *models.CleanerConfigStore
	clientFactory arr.ClientFactory
}

func NewInstancesHandler(instanceStore *models.InstanceStore, configStore *models.CleanerConfigStore, clientFactory arr.ClientFactory) *InstancesHandler {
	return &InstancesHandler{
		instanceStore: instanceStore,
		configStore:   configStore,
		clientFactory: clientFactory,
	}
}

type instanceRequest struct {
	Name    string              `json:"name"`
	Host    string              `json:"host"`
	Kind    models.InstanceKind `json:"kind"`
	APIKey  string              `json:"apiKey"`
	Enabled *bool               `json:"enabled,omitempty"`
}

func (h *InstancesHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instanceStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list instances")
		RespondError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}
	if instances == nil {
		instances = []*models.Instance{}
	}
	RespondJSON(w, http.StatusOK, instances)
}

func (h *InstancesHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	instance, err := h.instanceStore.Create(r.Context(), req.Name, req.Host, req.Kind, req.APIKey)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("failed to create instance")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Every instance gets a default cleaner config, disabled and in dry-run.
	if _, err := h.configStore.Upsert(r.Context(), models.DefaultCleanerConfig(instance.ID)); err != nil {
		log.Error().Err(err).Int("instanceID", instance.ID).Msg("failed to create default cleaner config")
	}

	RespondJSON(w, http.StatusCreated, instance)
}

func (h *InstancesHandler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	instance, err := h.instanceStore.Update(r.Context(), instanceID, req.Name, req.Host, req.Kind, req.APIKey, req.Enabled)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", instanceID).Msg("failed to update instance")
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, instance)
}

func (h *InstancesHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	if err := h.instanceStore.Delete(r.Context(), instanceID); err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Int("instanceID", instanceID).Msg("failed to delete instance")
		RespondError(w, http.StatusInternalServerError, "Failed to delete instance")
		return
	}

	RespondJSON(w, http.StatusNoContent, nil)
}

// TestConnection checks that the instance's API is reachable with the stored
// credentials.
func (h *InstancesHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	instanceID, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	instance, err := h.instanceStore.Get(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, models.ErrInstanceNotFound) {
			RespondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to load instance")
		return
	}

	apiKey, err := h.instanceStore.GetDecryptedAPIKey(instance)
	if err != nil {
		log.Error().Err(err).Int("instanceID", instanceID).Msg("failed to decrypt api key")
		RespondError(w, http.StatusInternalServerError, "Failed to decrypt API key")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	client := h.clientFactory(instance, apiKey)
	if err := client.Ping(ctx); err != nil {
		RespondJSON(w, http.StatusOK, map[string]any{
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{"reachable": true})
}
