// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/metrics"
	"github.com/sweeparr/sweeparr/internal/models"
)

// Service runs the decision engine for one instance at a time: fetch the
// queue snapshot, evaluate every item, dispatch side effects in live mode,
// and persist the run log.
type Service struct {
	instances *models.InstanceStore
	configs   *models.CleanerConfigStore
	strikes   *models.StrikeStore
	attempts  *models.ImportAttemptStore
	logs      *models.CleanerLogStore
	clients   arr.ClientFactory
	metrics   *metrics.Metrics

	// now is injected so evaluation is reproducible in tests.
	now func() time.Time
}

func NewService(
	instances *models.InstanceStore,
	configs *models.CleanerConfigStore,
	strikes *models.StrikeStore,
	attempts *models.ImportAttemptStore,
	logs *models.CleanerLogStore,
	clients arr.ClientFactory,
	m *metrics.Metrics,
) *Service {
	return &Service{
		instances: instances,
		configs:   configs,
		strikes:   strikes,
		attempts:  attempts,
		logs:      logs,
		clients:   clients,
		metrics:   m,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Run executes one cleaner pass for an instance. dryRun overrides the
// config's dry-run mode when true (preview paths); when false the config
// decides. The run is logged regardless of outcome.
func (s *Service) Run(ctx context.Context, instanceID int, forceDryRun bool) (*RunResult, error) {
	startedAt := s.now()

	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance %d: %w", instanceID, err)
	}

	cfg, err := s.configs.Get(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load cleaner config for instance %d: %w", instanceID, err)
	}

	dryRun := cfg.DryRunMode || forceDryRun

	logID, err := s.logs.Create(ctx, &models.CleanerLog{
		InstanceID: instanceID,
		Status:     models.RunStatusRunning,
		DryRun:     dryRun,
		StartedAt:  startedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	result, runErr := s.execute(ctx, instance, cfg, dryRun, startedAt)
	if runErr != nil {
		finishedAt := s.now()
		s.finishLog(ctx, logID, &models.CleanerLog{
			InstanceID:   instanceID,
			Status:       models.RunStatusError,
			DryRun:       dryRun,
			ErrorMessage: runErr.Error(),
			StartedAt:    startedAt,
			FinishedAt:   &finishedAt,
			DurationMs:   finishedAt.Sub(startedAt).Milliseconds(),
		})
		s.observeRun(instance.Name, string(models.RunStatusError), finishedAt.Sub(startedAt))
		return nil, runErr
	}

	decisionsJSON, err := json.Marshal(result.Decisions)
	if err != nil {
		decisionsJSON = json.RawMessage("[]")
		result.HasDataError = true
	}

	finishedAt := result.FinishedAt
	s.finishLog(ctx, logID, &models.CleanerLog{
		InstanceID:            instanceID,
		Status:                result.Status,
		DryRun:                dryRun,
		RemovedCount:          result.Removed,
		WarnedCount:           result.Warned,
		SkippedCount:          result.Skipped,
		WhitelistedCount:      result.Whitelisted,
		DeferredCount:         result.Deferred,
		ImportDispatchedCount: result.ImportsDispatched,
		RuleBreakdown:         result.RuleBreakdown,
		Decisions:             decisionsJSON,
		HasDataError:          result.HasDataError,
		ErrorMessage:          result.ErrorMessage,
		StartedAt:             startedAt,
		FinishedAt:            &finishedAt,
		DurationMs:            finishedAt.Sub(startedAt).Milliseconds(),
	})

	s.observeRun(instance.Name, string(result.Status), finishedAt.Sub(startedAt))
	if s.metrics != nil && !dryRun {
		for _, d := range result.Decisions {
			if d.Action == ActionRemove && !d.Deferred && !d.ImportDispatched {
				s.metrics.ItemsRemoved.WithLabelValues(instance.Name, d.Rule).Inc()
				s.metrics.RemovedToday.WithLabelValues(instance.Name).Inc()
			}
			if d.Action == ActionWarn {
				s.metrics.ItemsWarned.WithLabelValues(instance.Name).Inc()
			}
		}
	}

	return result, nil
}

// execute fetches the snapshot, evaluates it, and in live mode dispatches
// side effects. Returns the assembled result or a run-level error.
func (s *Service) execute(ctx context.Context, instance *models.Instance, cfg *models.CleanerConfig, dryRun bool, startedAt time.Time) (*RunResult, error) {
	client, err := s.client(instance)
	if err != nil {
		return nil, err
	}

	items, err := client.FetchQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch queue: %w", err)
	}

	tracker := NewStrikeTracker(s.strikes, instance.ID, cfg.StrikeDecayHours)
	if _, err := tracker.Prune(ctx, startedAt); err != nil {
		log.Warn().Err(err).Int("instanceID", instance.ID).Msg("cleaner: pruning decayed strikes failed")
	}

	decisions, hasDataError, err := s.evaluateAll(ctx, items, cfg, tracker, dryRun, startedAt)
	if err != nil {
		return nil, err
	}

	cancelled := false
	dispatchFailed := 0

	if !dryRun {
		decisions = ApplyRemovalCap(decisions, cfg.MaxRemovalsPerRun)
		cancelled, dispatchFailed = s.dispatch(ctx, client, instance.ID, cfg, decisions, tracker, startedAt)
	}

	result := AssembleResult(instance.ID, dryRun, decisions, startedAt, s.now(), hasDataError)
	if cancelled || dispatchFailed > 0 {
		result.Status = models.RunStatusPartial
		if cancelled {
			result.ErrorMessage = "run cancelled before all items were processed"
		} else {
			result.ErrorMessage = fmt.Sprintf("%d dispatch calls failed", dispatchFailed)
		}
	}

	return result, nil
}

// evaluateAll produces one decision per item. Strike increments are applied
// only in live mode so previews never mutate state.
func (s *Service) evaluateAll(ctx context.Context, items []arr.QueueItem, cfg *models.CleanerConfig, tracker *StrikeTracker, dryRun bool, now time.Time) ([]Decision, bool, error) {
	decisions := make([]Decision, 0, len(items))
	hasDataError := false

	for _, item := range items {
		if item.DataError {
			hasDataError = true
		}

		strikes, err := tracker.CurrentStrikes(ctx, item.Key(), now)
		if err != nil {
			return nil, false, fmt.Errorf("load strikes for %s: %w", item.Key(), err)
		}

		attempt, err := s.attempts.Get(ctx, cfg.InstanceID, item.Key())
		if err != nil {
			return nil, false, fmt.Errorf("load import attempts for %s: %w", item.Key(), err)
		}

		decision := Evaluate(EvalInput{
			Item:          item,
			Config:        cfg,
			Strikes:       strikes,
			ImportAttempt: attempt,
			Now:           now,
		})

		if decision.RecordStrike && !dryRun {
			if _, err := tracker.RecordStrike(ctx, item.Key(), now); err != nil {
				log.Warn().Err(err).Str("itemKey", item.Key()).Msg("cleaner: recording strike failed")
			}
		}

		decisions = append(decisions, decision)
	}

	return decisions, hasDataError, nil
}

// dispatch executes live side effects for remove decisions: an import
// attempt first when advised, falling back to removal if the dispatch fails,
// then the removal itself. Stops early on cancellation; already-dispatched
// effects are not rolled back.
func (s *Service) dispatch(ctx context.Context, client arr.Client, instanceID int, cfg *models.CleanerConfig, decisions []Decision, tracker *StrikeTracker, now time.Time) (cancelled bool, failed int) {
	removalsDispatched := false

	for i := range decisions {
		if ctx.Err() != nil {
			return true, failed
		}

		d := &decisions[i]
		if d.Action != ActionRemove || d.Deferred {
			continue
		}

		if d.AttemptImport {
			if err := s.attempts.Record(ctx, instanceID, d.ItemKey, now); err != nil {
				log.Warn().Err(err).Str("itemKey", d.ItemKey).Msg("cleaner: recording import attempt failed")
			}

			if err := client.TriggerImport(ctx, d.ItemID); err != nil {
				// Import dispatch failure falls back to the removal
				// this decision would otherwise have executed.
				log.Warn().Err(err).Int64("itemID", d.ItemID).Msg("cleaner: import dispatch failed, falling back to removal")
				s.countImportAttempt(instanceID, "failed")
			} else {
				s.countImportAttempt(instanceID, "dispatched")
				d.ImportDispatched = true
				d.Reason = fmt.Sprintf("%s; import attempt dispatched instead of removal", d.Reason)
				continue
			}
		}

		if err := client.RemoveItem(ctx, d.ItemID, cfg.Removal.RemoveFromClient, cfg.Removal.AddToBlocklist); err != nil {
			log.Error().Err(err).Int64("itemID", d.ItemID).Str("title", d.Title).Msg("cleaner: removal dispatch failed")
			failed++
			if s.metrics != nil {
				s.metrics.DispatchFailures.WithLabelValues(strconv.Itoa(instanceID)).Inc()
			}
			continue
		}

		removalsDispatched = true
		log.Info().Int64("itemID", d.ItemID).Str("title", d.Title).Str("rule", d.Rule).Msg("cleaner: removed queue item")

		if err := tracker.Clear(ctx, d.ItemKey); err != nil {
			log.Warn().Err(err).Str("itemKey", d.ItemKey).Msg("cleaner: clearing strikes after removal failed")
		}
		if err := s.attempts.Clear(ctx, instanceID, d.ItemKey); err != nil {
			log.Warn().Err(err).Str("itemKey", d.ItemKey).Msg("cleaner: clearing import attempts after removal failed")
		}
	}

	if removalsDispatched && cfg.Removal.SearchAfterRemoval {
		if err := client.TriggerSearch(ctx); err != nil {
			log.Warn().Err(err).Int("instanceID", instanceID).Msg("cleaner: post-removal search dispatch failed")
		}
	}

	return false, failed
}

// Preview runs a non-destructive evaluation and returns the grouped payload
// served to the preview surface. Never mutates strike or attempt state.
func (s *Service) Preview(ctx context.Context, instanceID int) (*EnhancedPreviewResult, error) {
	now := s.now()

	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	client, err := s.client(instance)
	if err != nil {
		return nil, err
	}

	items, err := client.FetchQueue(ctx)
	if err != nil {
		// Unreachable instance still yields a preview shell so the
		// surface can show connectivity state.
		return &EnhancedPreviewResult{
			PreviewItems:       []ItemGroup{},
			RuleSummary:        map[string]int{},
			ConfigSnapshot:     cfg,
			InstanceReachable:  false,
			PreviewGeneratedAt: now,
		}, nil
	}

	tracker := NewStrikeTracker(s.strikes, instanceID, cfg.StrikeDecayHours)
	decisions, hasDataError, err := s.evaluateAll(ctx, items, cfg, tracker, true, now)
	if err != nil {
		return nil, err
	}

	result := AssembleResult(instanceID, true, decisions, now, s.now(), hasDataError)
	return BuildPreview(result, summarizeQueue(items, now), cfg, true, now), nil
}

// DryRun runs a non-destructive evaluation and returns the flat run result.
func (s *Service) DryRun(ctx context.Context, instanceID int) (*RunResult, error) {
	return s.Run(ctx, instanceID, true)
}

func summarizeQueue(items []arr.QueueItem, now time.Time) QueueSummary {
	summary := QueueSummary{
		TotalItems: len(items),
		ByState:    make(map[string]int),
		ByProtocol: make(map[string]int),
	}
	for _, item := range items {
		summary.ByState[string(item.State)]++
		summary.ByProtocol[string(item.Protocol)]++
		if age := item.AgeMinutes(now); age > summary.OldestAgeMin {
			summary.OldestAgeMin = age
		}
	}
	return summary
}

func (s *Service) client(instance *models.Instance) (arr.Client, error) {
	apiKey, err := s.instances.GetDecryptedAPIKey(instance)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key for instance %d: %w", instance.ID, err)
	}
	return s.clients(instance, apiKey), nil
}

func (s *Service) finishLog(ctx context.Context, logID int, entry *models.CleanerLog) {
	if err := s.logs.Finish(ctx, logID, entry); err != nil {
		log.Error().Err(err).Int("logID", logID).Msg("cleaner: finishing run log failed")
	}
}

func (s *Service) observeRun(instanceName, status string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.WithLabelValues(instanceName, status).Inc()
	s.metrics.RunDuration.WithLabelValues(instanceName).Observe(duration.Seconds())
}

func (s *Service) countImportAttempt(instanceID int, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ImportAttempts.WithLabelValues(strconv.Itoa(instanceID), outcome).Inc()
}
