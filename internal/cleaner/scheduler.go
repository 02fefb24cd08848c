// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/metrics"
	"github.com/sweeparr/sweeparr/internal/models"
)

// ErrRunInProgress is returned when a trigger arrives while the instance's
// previous run has not completed.
var ErrRunInProgress = errors.New("a run is already in progress for this instance")

// CooldownError signals a manual trigger inside the cooldown window. Carries
// the remaining wait so the API can surface it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("manual trigger on cooldown, retry in %s", e.Remaining.Round(time.Second))
}

// Scheduler drives periodic runs per instance and gates manual triggers.
// Two independent gates control automatic ticks: the global running flag and
// each instance's enabled flag. Manual triggers ignore the global flag.
type Scheduler struct {
	service   *Service
	instances *models.InstanceStore
	configs   *models.CleanerConfigStore
	metrics   *metrics.Metrics
	now       func() time.Time

	mu            sync.Mutex
	globalRunning bool
	baseCtx       context.Context
	activeRuns    map[int]bool
	lastAutoRun   map[int]time.Time
	lastTrigger   map[int]time.Time

	cron *cron.Cron
}

// tickInterval is the master wake-up cadence; each wake-up starts runs only
// for instances whose own interval has elapsed.
const tickInterval = time.Minute

func NewScheduler(service *Service, instances *models.InstanceStore, configs *models.CleanerConfigStore, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		service:       service,
		instances:     instances,
		configs:       configs,
		metrics:       m,
		now:           time.Now,
		globalRunning: true,
		baseCtx:       context.Background(),
		activeRuns:    make(map[int]bool),
		lastAutoRun:   make(map[int]time.Time),
		lastTrigger:   make(map[int]time.Time),
		cron:          cron.New(),
	}
	if m != nil {
		m.SchedulerRunning.Set(1)
	}
	return s
}

// SetNowFunc overrides the clock, for tests. Must be called before Start.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Start runs the scheduling loop until the context is cancelled. Also
// installs the midnight rollover that resets per-day gauges.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if s.metrics != nil {
		if _, err := s.cron.AddFunc("0 0 * * *", s.metrics.ResetDailyCounters); err != nil {
			log.Error().Err(err).Msg("scheduler: installing midnight rollover failed")
		}
		s.cron.Start()
		defer s.cron.Stop()
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log.Info().Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a run for every enabled instance whose interval has elapsed,
// unless the global flag is off or the instance is already running.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.Running() {
		return
	}

	instances, err := s.instances.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: listing instances failed")
		return
	}

	now := s.now()
	for _, instance := range instances {
		if !instance.Enabled {
			continue
		}

		cfg, err := s.configs.Get(ctx, instance.ID)
		if err != nil {
			if !errors.Is(err, models.ErrConfigNotFound) {
				log.Error().Err(err).Int("instanceID", instance.ID).Msg("scheduler: loading config failed")
			}
			continue
		}
		if !cfg.Enabled {
			continue
		}

		s.mu.Lock()
		due := now.Sub(s.lastAutoRun[instance.ID]) >= time.Duration(cfg.IntervalMins)*time.Minute
		busy := s.activeRuns[instance.ID]
		if due && !busy {
			s.lastAutoRun[instance.ID] = now
			s.activeRuns[instance.ID] = true
		}
		s.mu.Unlock()

		if !due {
			continue
		}
		if busy {
			// Skipped, not queued. The next due tick will try again.
			log.Debug().Int("instanceID", instance.ID).Msg("scheduler: previous run still active, skipping tick")
			continue
		}

		go s.runInstance(ctx, instance.ID)
	}
}

func (s *Scheduler) runInstance(ctx context.Context, instanceID int) {
	defer func() {
		s.mu.Lock()
		delete(s.activeRuns, instanceID)
		s.mu.Unlock()
	}()

	if _, err := s.service.Run(ctx, instanceID, false); err != nil {
		log.Error().Err(err).Int("instanceID", instanceID).Msg("scheduler: run failed")
	}
}

// TriggerManual starts a run outside the periodic schedule. Rejected with a
// CooldownError inside the cooldown window of the previous manual trigger,
// and with ErrRunInProgress while a run is active. The global scheduler flag
// does not gate manual triggers.
func (s *Scheduler) TriggerManual(ctx context.Context, instanceID int) error {
	cfg, err := s.configs.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	now := s.now()
	cooldown := time.Duration(cfg.TriggerCooldownMins) * time.Minute

	s.mu.Lock()
	if s.activeRuns[instanceID] {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	if last, ok := s.lastTrigger[instanceID]; ok {
		if elapsed := now.Sub(last); elapsed < cooldown {
			s.mu.Unlock()
			return &CooldownError{Remaining: cooldown - elapsed}
		}
	}
	s.lastTrigger[instanceID] = now
	s.activeRuns[instanceID] = true
	s.mu.Unlock()

	// The caller's context only scopes the config lookup above. The run
	// itself must outlive the triggering HTTP request, so it gets the
	// scheduler's own context.
	go s.runInstance(s.runContext(), instanceID)
	return nil
}

// runContext returns the context spawned runs execute on: the context passed
// to Start, or background before Start is called.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Toggle flips the global scheduler flag and returns the new state.
func (s *Scheduler) Toggle() bool {
	s.mu.Lock()
	s.globalRunning = !s.globalRunning
	running := s.globalRunning
	s.mu.Unlock()

	if s.metrics != nil {
		if running {
			s.metrics.SchedulerRunning.Set(1)
		} else {
			s.metrics.SchedulerRunning.Set(0)
		}
	}

	log.Info().Bool("running", running).Msg("scheduler: global flag toggled")
	return running
}

// Running reports the global scheduler flag.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalRunning
}

// InstanceActive reports whether a run is currently in flight for an instance.
func (s *Scheduler) InstanceActive(instanceID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRuns[instanceID]
}
