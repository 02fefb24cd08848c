// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/dbinterface"
)

var ErrConfigNotFound = errors.New("cleaner config not found")

// Documented threshold ranges. The store clamps to these; the API rejects
// out-of-range values with field-level detail before they reach the store.
const (
	MinIntervalMins        = 5
	MaxIntervalMins        = 1440
	MinTriggerCooldownMins = 1
	MaxTriggerCooldownMins = 120

	MinStalledThresholdMins = 5
	MaxStalledThresholdMins = 1440
	MinSlowSpeedKB          = 1
	MaxSlowSpeedKB          = 102400
	MinSlowGraceMins        = 5
	MaxSlowGraceMins        = 1440
	MinSeedingTimeoutHours  = 1
	MaxSeedingTimeoutHours  = 720
	MinCompletionMultiplier = 1.1
	MaxCompletionMultiplier = 10.0
	MinImportThresholdMins  = 5
	MaxImportThresholdMins  = 1440

	MinMaxStrikes       = 1
	MaxMaxStrikes       = 10
	MinStrikeDecayHours = 1
	MaxStrikeDecayHours = 168

	MinAutoImportAttempts     = 1
	MaxAutoImportAttempts     = 10
	MinAutoImportCooldownMins = 5
	MaxAutoImportCooldownMins = 1440

	MinRemovalsPerRun  = 1
	MaxRemovalsPerRun  = 100
	MinQueueAgeMinsLow = 0
	MaxQueueAgeMins    = 1440
)

// CleanupLevel controls how aggressively import-blocked items are acted on.
type CleanupLevel string

const (
	CleanupLevelSafe       CleanupLevel = "safe"
	CleanupLevelModerate   CleanupLevel = "moderate"
	CleanupLevelAggressive CleanupLevel = "aggressive"
)

// PatternMode selects how custom patterns interact with the cleanup level's
// built-in block-reason keywords.
type PatternMode string

const (
	PatternModeDefaults PatternMode = "defaults"
	PatternModeInclude  PatternMode = "include"
	PatternModeExclude  PatternMode = "exclude"
)

// WhitelistPatternType selects which queue-item field a whitelist pattern is
// matched against.
type WhitelistPatternType string

const (
	WhitelistTypeTracker  WhitelistPatternType = "tracker"
	WhitelistTypeTag      WhitelistPatternType = "tag"
	WhitelistTypeCategory WhitelistPatternType = "category"
	WhitelistTypeTitle    WhitelistPatternType = "title"
)

// WhitelistPattern is a typed exemption pattern. Matching items are never
// removed regardless of any other rule.
type WhitelistPattern struct {
	Type WhitelistPatternType `json:"type"`
	Text string               `json:"text"`
}

// AutoImportConfig governs whether an import attempt is tried before removing
// an import-blocked item.
type AutoImportConfig struct {
	Enabled       bool     `json:"enabled"`
	SafeOnly      bool     `json:"safeOnly"`
	MaxAttempts   int      `json:"maxAttempts"`
	CooldownMins  int      `json:"cooldownMins"`
	SafePatterns  []string `json:"safePatterns"`
	NeverPatterns []string `json:"neverPatterns"`
}

// RemovalOptions controls the side effects dispatched for a removal.
type RemovalOptions struct {
	RemoveFromClient      bool `json:"removeFromClient"`
	AddToBlocklist        bool `json:"addToBlocklist"`
	SearchAfterRemoval    bool `json:"searchAfterRemoval"`
	ChangeCategoryEnabled bool `json:"changeCategoryEnabled"`
}

// CleanerConfig is the per-instance configuration for the decision engine.
// Disabling a rule removes it from evaluation entirely.
type CleanerConfig struct {
	InstanceID          int  `json:"instanceId"`
	Enabled             bool `json:"enabled"`
	DryRunMode          bool `json:"dryRunMode"`
	IntervalMins        int  `json:"intervalMins"`
	TriggerCooldownMins int  `json:"triggerCooldownMins"`

	StalledEnabled                bool    `json:"stalledEnabled"`
	StalledThresholdMins          int     `json:"stalledThresholdMins"`
	FailedEnabled                 bool    `json:"failedEnabled"`
	SlowEnabled                   bool    `json:"slowEnabled"`
	SlowSpeedThresholdKB          int     `json:"slowSpeedThresholdKB"`
	SlowGracePeriodMins           int     `json:"slowGracePeriodMins"`
	ErrorPatternEnabled           bool    `json:"errorPatternEnabled"`
	ErrorPatterns                 []string `json:"errorPatterns"`
	SeedingTimeoutEnabled         bool    `json:"seedingTimeoutEnabled"`
	SeedingTimeoutHours           int     `json:"seedingTimeoutHours"`
	EstimatedCompletionEnabled    bool    `json:"estimatedCompletionEnabled"`
	EstimatedCompletionMultiplier float64 `json:"estimatedCompletionMultiplier"`
	ImportEnabled                 bool    `json:"importEnabled"`
	ImportPendingThresholdMins    int     `json:"importPendingThresholdMins"`

	StrikeSystemEnabled bool `json:"strikeSystemEnabled"`
	MaxStrikes          int  `json:"maxStrikes"`
	StrikeDecayHours    int  `json:"strikeDecayHours"`

	CleanupLevel   CleanupLevel `json:"cleanupLevel"`
	PatternMode    PatternMode  `json:"patternMode"`
	CustomPatterns []string     `json:"customPatterns"`

	AutoImport AutoImportConfig `json:"autoImport"`

	WhitelistPatterns []WhitelistPattern `json:"whitelistPatterns"`

	Removal RemovalOptions `json:"removal"`

	MaxRemovalsPerRun int `json:"maxRemovalsPerRun"`
	MinQueueAgeMins   int `json:"minQueueAgeMins"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidationError carries field-level detail for an out-of-range config value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate rejects out-of-range values with field-level detail. Used at the
// API boundary so users see exactly which field is wrong instead of having
// the store silently clamp it.
func (c *CleanerConfig) Validate() error {
	checkInt := func(field string, value, min, max int) error {
		if value < min || value > max {
			return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}
		}
		return nil
	}

	checks := []error{
		checkInt("intervalMins", c.IntervalMins, MinIntervalMins, MaxIntervalMins),
		checkInt("triggerCooldownMins", c.TriggerCooldownMins, MinTriggerCooldownMins, MaxTriggerCooldownMins),
		checkInt("stalledThresholdMins", c.StalledThresholdMins, MinStalledThresholdMins, MaxStalledThresholdMins),
		checkInt("slowSpeedThresholdKB", c.SlowSpeedThresholdKB, MinSlowSpeedKB, MaxSlowSpeedKB),
		checkInt("slowGracePeriodMins", c.SlowGracePeriodMins, MinSlowGraceMins, MaxSlowGraceMins),
		checkInt("seedingTimeoutHours", c.SeedingTimeoutHours, MinSeedingTimeoutHours, MaxSeedingTimeoutHours),
		checkInt("importPendingThresholdMins", c.ImportPendingThresholdMins, MinImportThresholdMins, MaxImportThresholdMins),
		checkInt("maxStrikes", c.MaxStrikes, MinMaxStrikes, MaxMaxStrikes),
		checkInt("strikeDecayHours", c.StrikeDecayHours, MinStrikeDecayHours, MaxStrikeDecayHours),
		checkInt("autoImport.maxAttempts", c.AutoImport.MaxAttempts, MinAutoImportAttempts, MaxAutoImportAttempts),
		checkInt("autoImport.cooldownMins", c.AutoImport.CooldownMins, MinAutoImportCooldownMins, MaxAutoImportCooldownMins),
		checkInt("maxRemovalsPerRun", c.MaxRemovalsPerRun, MinRemovalsPerRun, MaxRemovalsPerRun),
		checkInt("minQueueAgeMins", c.MinQueueAgeMins, MinQueueAgeMinsLow, MaxQueueAgeMins),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.EstimatedCompletionMultiplier < MinCompletionMultiplier || c.EstimatedCompletionMultiplier > MaxCompletionMultiplier {
		return &ValidationError{
			Field:   "estimatedCompletionMultiplier",
			Message: fmt.Sprintf("must be between %.1f and %.1f", MinCompletionMultiplier, MaxCompletionMultiplier),
		}
	}

	switch c.CleanupLevel {
	case CleanupLevelSafe, CleanupLevelModerate, CleanupLevelAggressive:
	default:
		return &ValidationError{Field: "cleanupLevel", Message: "must be one of safe, moderate, aggressive"}
	}

	switch c.PatternMode {
	case PatternModeDefaults, PatternModeInclude, PatternModeExclude:
	default:
		return &ValidationError{Field: "patternMode", Message: "must be one of defaults, include, exclude"}
	}

	for i, p := range c.WhitelistPatterns {
		switch p.Type {
		case WhitelistTypeTracker, WhitelistTypeTag, WhitelistTypeCategory, WhitelistTypeTitle:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("whitelistPatterns[%d].type", i),
				Message: "must be one of tracker, tag, category, title",
			}
		}
		if strings.TrimSpace(p.Text) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("whitelistPatterns[%d].text", i),
				Message: "cannot be empty",
			}
		}
	}

	return nil
}

// DefaultCleanerConfig returns default values for a new instance.
func DefaultCleanerConfig(instanceID int) *CleanerConfig {
	return &CleanerConfig{
		InstanceID:          instanceID,
		Enabled:             false,
		DryRunMode:          true,
		IntervalMins:        30,
		TriggerCooldownMins: 5,

		StalledEnabled:                true,
		StalledThresholdMins:          60,
		FailedEnabled:                 true,
		SlowEnabled:                   false,
		SlowSpeedThresholdKB:          100,
		SlowGracePeriodMins:           30,
		ErrorPatternEnabled:           false,
		ErrorPatterns:                 []string{},
		SeedingTimeoutEnabled:         false,
		SeedingTimeoutHours:           48,
		EstimatedCompletionEnabled:    false,
		EstimatedCompletionMultiplier: 2.0,
		ImportEnabled:                 true,
		ImportPendingThresholdMins:    30,

		StrikeSystemEnabled: true,
		MaxStrikes:          3,
		StrikeDecayHours:    24,

		CleanupLevel:   CleanupLevelSafe,
		PatternMode:    PatternModeDefaults,
		CustomPatterns: []string{},

		AutoImport: AutoImportConfig{
			Enabled:       false,
			SafeOnly:      true,
			MaxAttempts:   3,
			CooldownMins:  30,
			SafePatterns:  []string{},
			NeverPatterns: []string{},
		},

		WhitelistPatterns: []WhitelistPattern{},

		Removal: RemovalOptions{
			RemoveFromClient:   true,
			AddToBlocklist:     true,
			SearchAfterRemoval: true,
		},

		MaxRemovalsPerRun: 10,
		MinQueueAgeMins:   10,
	}
}

// CleanerConfigStore manages persistence for per-instance cleaner configs.
type CleanerConfigStore struct {
	db dbinterface.Querier
}

func NewCleanerConfigStore(db dbinterface.Querier) *CleanerConfigStore {
	return &CleanerConfigStore{db: db}
}

const cleanerConfigColumns = `instance_id, enabled, dry_run_mode, interval_mins, trigger_cooldown_mins,
	stalled_enabled, stalled_threshold_mins, failed_enabled,
	slow_enabled, slow_speed_threshold_kb, slow_grace_period_mins,
	error_pattern_enabled, error_patterns_json,
	seeding_timeout_enabled, seeding_timeout_hours,
	estimated_completion_enabled, estimated_completion_multiplier,
	import_enabled, import_pending_threshold_mins,
	strike_system_enabled, max_strikes, strike_decay_hours,
	cleanup_level, pattern_mode, custom_patterns_json,
	auto_import_enabled, auto_import_safe_only, auto_import_max_attempts,
	auto_import_cooldown_mins, auto_import_safe_patterns_json, auto_import_never_patterns_json,
	whitelist_patterns_json,
	remove_from_client, add_to_blocklist, search_after_removal, change_category_enabled,
	max_removals_per_run, min_queue_age_mins, updated_at`

// Get returns the config for an instance. Returns ErrConfigNotFound if none exists.
func (s *CleanerConfigStore) Get(ctx context.Context, instanceID int) (*CleanerConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cleanerConfigColumns+` FROM cleaner_configs WHERE instance_id = ?`, instanceID)

	cfg, err := scanCleanerConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// List returns configs for all instances that have one.
func (s *CleanerConfigStore) List(ctx context.Context) ([]*CleanerConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cleanerConfigColumns+` FROM cleaner_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*CleanerConfig
	for rows.Next() {
		cfg, err := scanCleanerConfig(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Upsert saves a config, creating or updating as needed. Numeric thresholds
// are clamped to their documented ranges before persisting.
func (s *CleanerConfigStore) Upsert(ctx context.Context, cfg *CleanerConfig) (*CleanerConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	coerced := sanitizeCleanerConfig(cfg)

	errPatJSON, err := encodeStringSliceJSON(coerced.ErrorPatterns)
	if err != nil {
		return nil, err
	}
	customJSON, err := encodeStringSliceJSON(coerced.CustomPatterns)
	if err != nil {
		return nil, err
	}
	safeJSON, err := encodeStringSliceJSON(coerced.AutoImport.SafePatterns)
	if err != nil {
		return nil, err
	}
	neverJSON, err := encodeStringSliceJSON(coerced.AutoImport.NeverPatterns)
	if err != nil {
		return nil, err
	}
	whitelistJSON, err := encodeWhitelistJSON(coerced.WhitelistPatterns)
	if err != nil {
		return nil, err
	}

	const stmt = `INSERT INTO cleaner_configs (
		instance_id, enabled, dry_run_mode, interval_mins, trigger_cooldown_mins,
		stalled_enabled, stalled_threshold_mins, failed_enabled,
		slow_enabled, slow_speed_threshold_kb, slow_grace_period_mins,
		error_pattern_enabled, error_patterns_json,
		seeding_timeout_enabled, seeding_timeout_hours,
		estimated_completion_enabled, estimated_completion_multiplier,
		import_enabled, import_pending_threshold_mins,
		strike_system_enabled, max_strikes, strike_decay_hours,
		cleanup_level, pattern_mode, custom_patterns_json,
		auto_import_enabled, auto_import_safe_only, auto_import_max_attempts,
		auto_import_cooldown_mins, auto_import_safe_patterns_json, auto_import_never_patterns_json,
		whitelist_patterns_json,
		remove_from_client, add_to_blocklist, search_after_removal, change_category_enabled,
		max_removals_per_run, min_queue_age_mins, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(instance_id) DO UPDATE SET
		enabled = excluded.enabled,
		dry_run_mode = excluded.dry_run_mode,
		interval_mins = excluded.interval_mins,
		trigger_cooldown_mins = excluded.trigger_cooldown_mins,
		stalled_enabled = excluded.stalled_enabled,
		stalled_threshold_mins = excluded.stalled_threshold_mins,
		failed_enabled = excluded.failed_enabled,
		slow_enabled = excluded.slow_enabled,
		slow_speed_threshold_kb = excluded.slow_speed_threshold_kb,
		slow_grace_period_mins = excluded.slow_grace_period_mins,
		error_pattern_enabled = excluded.error_pattern_enabled,
		error_patterns_json = excluded.error_patterns_json,
		seeding_timeout_enabled = excluded.seeding_timeout_enabled,
		seeding_timeout_hours = excluded.seeding_timeout_hours,
		estimated_completion_enabled = excluded.estimated_completion_enabled,
		estimated_completion_multiplier = excluded.estimated_completion_multiplier,
		import_enabled = excluded.import_enabled,
		import_pending_threshold_mins = excluded.import_pending_threshold_mins,
		strike_system_enabled = excluded.strike_system_enabled,
		max_strikes = excluded.max_strikes,
		strike_decay_hours = excluded.strike_decay_hours,
		cleanup_level = excluded.cleanup_level,
		pattern_mode = excluded.pattern_mode,
		custom_patterns_json = excluded.custom_patterns_json,
		auto_import_enabled = excluded.auto_import_enabled,
		auto_import_safe_only = excluded.auto_import_safe_only,
		auto_import_max_attempts = excluded.auto_import_max_attempts,
		auto_import_cooldown_mins = excluded.auto_import_cooldown_mins,
		auto_import_safe_patterns_json = excluded.auto_import_safe_patterns_json,
		auto_import_never_patterns_json = excluded.auto_import_never_patterns_json,
		whitelist_patterns_json = excluded.whitelist_patterns_json,
		remove_from_client = excluded.remove_from_client,
		add_to_blocklist = excluded.add_to_blocklist,
		search_after_removal = excluded.search_after_removal,
		change_category_enabled = excluded.change_category_enabled,
		max_removals_per_run = excluded.max_removals_per_run,
		min_queue_age_mins = excluded.min_queue_age_mins,
		updated_at = CURRENT_TIMESTAMP`

	_, err = s.db.ExecContext(ctx, stmt,
		coerced.InstanceID,
		boolToSQLite(coerced.Enabled),
		boolToSQLite(coerced.DryRunMode),
		coerced.IntervalMins,
		coerced.TriggerCooldownMins,
		boolToSQLite(coerced.StalledEnabled),
		coerced.StalledThresholdMins,
		boolToSQLite(coerced.FailedEnabled),
		boolToSQLite(coerced.SlowEnabled),
		coerced.SlowSpeedThresholdKB,
		coerced.SlowGracePeriodMins,
		boolToSQLite(coerced.ErrorPatternEnabled),
		errPatJSON,
		boolToSQLite(coerced.SeedingTimeoutEnabled),
		coerced.SeedingTimeoutHours,
		boolToSQLite(coerced.EstimatedCompletionEnabled),
		coerced.EstimatedCompletionMultiplier,
		boolToSQLite(coerced.ImportEnabled),
		coerced.ImportPendingThresholdMins,
		boolToSQLite(coerced.StrikeSystemEnabled),
		coerced.MaxStrikes,
		coerced.StrikeDecayHours,
		string(coerced.CleanupLevel),
		string(coerced.PatternMode),
		customJSON,
		boolToSQLite(coerced.AutoImport.Enabled),
		boolToSQLite(coerced.AutoImport.SafeOnly),
		coerced.AutoImport.MaxAttempts,
		coerced.AutoImport.CooldownMins,
		safeJSON,
		neverJSON,
		whitelistJSON,
		boolToSQLite(coerced.Removal.RemoveFromClient),
		boolToSQLite(coerced.Removal.AddToBlocklist),
		boolToSQLite(coerced.Removal.SearchAfterRemoval),
		boolToSQLite(coerced.Removal.ChangeCategoryEnabled),
		coerced.MaxRemovalsPerRun,
		coerced.MinQueueAgeMins,
	)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, coerced.InstanceID)
}

func (s *CleanerConfigStore) Delete(ctx context.Context, instanceID int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cleaner_configs WHERE instance_id = ?`, instanceID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrConfigNotFound
	}

	return nil
}

func clampInt(field string, value, min, max int) int {
	if value < min {
		log.Debug().Str("field", field).Int("original", value).Int("clamped", min).Msg("cleaner config: value below minimum, clamping")
		return min
	}
	if value > max {
		log.Debug().Str("field", field).Int("original", value).Int("clamped", max).Msg("cleaner config: value above maximum, clamping")
		return max
	}
	return value
}

func clampFloat(field string, value, min, max float64) float64 {
	if value < min {
		log.Debug().Str("field", field).Float64("original", value).Float64("clamped", min).Msg("cleaner config: value below minimum, clamping")
		return min
	}
	if value > max {
		log.Debug().Str("field", field).Float64("original", value).Float64("clamped", max).Msg("cleaner config: value above maximum, clamping")
		return max
	}
	return value
}

func sanitizeCleanerConfig(c *CleanerConfig) *CleanerConfig {
	clone := *c

	clone.IntervalMins = clampInt("intervalMins", clone.IntervalMins, MinIntervalMins, MaxIntervalMins)
	clone.TriggerCooldownMins = clampInt("triggerCooldownMins", clone.TriggerCooldownMins, MinTriggerCooldownMins, MaxTriggerCooldownMins)
	clone.StalledThresholdMins = clampInt("stalledThresholdMins", clone.StalledThresholdMins, MinStalledThresholdMins, MaxStalledThresholdMins)
	clone.SlowSpeedThresholdKB = clampInt("slowSpeedThresholdKB", clone.SlowSpeedThresholdKB, MinSlowSpeedKB, MaxSlowSpeedKB)
	clone.SlowGracePeriodMins = clampInt("slowGracePeriodMins", clone.SlowGracePeriodMins, MinSlowGraceMins, MaxSlowGraceMins)
	clone.SeedingTimeoutHours = clampInt("seedingTimeoutHours", clone.SeedingTimeoutHours, MinSeedingTimeoutHours, MaxSeedingTimeoutHours)
	clone.EstimatedCompletionMultiplier = clampFloat("estimatedCompletionMultiplier", clone.EstimatedCompletionMultiplier, MinCompletionMultiplier, MaxCompletionMultiplier)
	clone.ImportPendingThresholdMins = clampInt("importPendingThresholdMins", clone.ImportPendingThresholdMins, MinImportThresholdMins, MaxImportThresholdMins)
	clone.MaxStrikes = clampInt("maxStrikes", clone.MaxStrikes, MinMaxStrikes, MaxMaxStrikes)
	clone.StrikeDecayHours = clampInt("strikeDecayHours", clone.StrikeDecayHours, MinStrikeDecayHours, MaxStrikeDecayHours)
	clone.AutoImport.MaxAttempts = clampInt("autoImport.maxAttempts", clone.AutoImport.MaxAttempts, MinAutoImportAttempts, MaxAutoImportAttempts)
	clone.AutoImport.CooldownMins = clampInt("autoImport.cooldownMins", clone.AutoImport.CooldownMins, MinAutoImportCooldownMins, MaxAutoImportCooldownMins)
	clone.MaxRemovalsPerRun = clampInt("maxRemovalsPerRun", clone.MaxRemovalsPerRun, MinRemovalsPerRun, MaxRemovalsPerRun)
	clone.MinQueueAgeMins = clampInt("minQueueAgeMins", clone.MinQueueAgeMins, MinQueueAgeMinsLow, MaxQueueAgeMins)

	if clone.CleanupLevel == "" {
		clone.CleanupLevel = CleanupLevelSafe
	}
	if clone.PatternMode == "" {
		clone.PatternMode = PatternModeDefaults
	}

	clone.ErrorPatterns = sanitizeStringSlice(clone.ErrorPatterns)
	clone.CustomPatterns = sanitizeStringSlice(clone.CustomPatterns)
	clone.AutoImport.SafePatterns = sanitizeStringSlice(clone.AutoImport.SafePatterns)
	clone.AutoImport.NeverPatterns = sanitizeStringSlice(clone.AutoImport.NeverPatterns)
	clone.WhitelistPatterns = sanitizeWhitelist(clone.WhitelistPatterns)

	return &clone
}

func sanitizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, exists := seen[lower]; exists {
			continue
		}
		seen[lower] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func sanitizeWhitelist(patterns []WhitelistPattern) []WhitelistPattern {
	if len(patterns) == 0 {
		return []WhitelistPattern{}
	}
	result := make([]WhitelistPattern, 0, len(patterns))
	for _, p := range patterns {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		result = append(result, WhitelistPattern{Type: p.Type, Text: text})
	}
	return result
}

func encodeStringSliceJSON(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeStringSliceJSON(raw sql.NullString) ([]string, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeWhitelistJSON(patterns []WhitelistPattern) (string, error) {
	if len(patterns) == 0 {
		return "[]", nil
	}
	payload, err := json.Marshal(patterns)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeWhitelistJSON(raw sql.NullString) ([]WhitelistPattern, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return []WhitelistPattern{}, nil
	}
	var patterns []WhitelistPattern
	if err := json.Unmarshal([]byte(raw.String), &patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func scanCleanerConfig(scanner interface {
	Scan(dest ...any) error
}) (*CleanerConfig, error) {
	var (
		cfg CleanerConfig

		enabledInt, dryRunInt                                  int
		stalledInt, failedInt, slowInt, errPatInt              int
		seedingInt, estCompInt, importInt, strikeInt           int
		aiEnabledInt, aiSafeOnlyInt                            int
		removeClientInt, blocklistInt, searchInt, changeCatInt int
		cleanupLevel, patternMode                              string
		errPatJSON, customJSON, safeJSON, neverJSON            sql.NullString
		whitelistJSON                                          sql.NullString
		updatedAt                                              sql.NullTime
	)

	if err := scanner.Scan(
		&cfg.InstanceID,
		&enabledInt,
		&dryRunInt,
		&cfg.IntervalMins,
		&cfg.TriggerCooldownMins,
		&stalledInt,
		&cfg.StalledThresholdMins,
		&failedInt,
		&slowInt,
		&cfg.SlowSpeedThresholdKB,
		&cfg.SlowGracePeriodMins,
		&errPatInt,
		&errPatJSON,
		&seedingInt,
		&cfg.SeedingTimeoutHours,
		&estCompInt,
		&cfg.EstimatedCompletionMultiplier,
		&importInt,
		&cfg.ImportPendingThresholdMins,
		&strikeInt,
		&cfg.MaxStrikes,
		&cfg.StrikeDecayHours,
		&cleanupLevel,
		&patternMode,
		&customJSON,
		&aiEnabledInt,
		&aiSafeOnlyInt,
		&cfg.AutoImport.MaxAttempts,
		&cfg.AutoImport.CooldownMins,
		&safeJSON,
		&neverJSON,
		&whitelistJSON,
		&removeClientInt,
		&blocklistInt,
		&searchInt,
		&changeCatInt,
		&cfg.MaxRemovalsPerRun,
		&cfg.MinQueueAgeMins,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Enabled = enabledInt == 1
	cfg.DryRunMode = dryRunInt == 1
	cfg.StalledEnabled = stalledInt == 1
	cfg.FailedEnabled = failedInt == 1
	cfg.SlowEnabled = slowInt == 1
	cfg.ErrorPatternEnabled = errPatInt == 1
	cfg.SeedingTimeoutEnabled = seedingInt == 1
	cfg.EstimatedCompletionEnabled = estCompInt == 1
	cfg.ImportEnabled = importInt == 1
	cfg.StrikeSystemEnabled = strikeInt == 1
	cfg.CleanupLevel = CleanupLevel(cleanupLevel)
	cfg.PatternMode = PatternMode(patternMode)
	cfg.AutoImport.Enabled = aiEnabledInt == 1
	cfg.AutoImport.SafeOnly = aiSafeOnlyInt == 1
	cfg.Removal.RemoveFromClient = removeClientInt == 1
	cfg.Removal.AddToBlocklist = blocklistInt == 1
	cfg.Removal.SearchAfterRemoval = searchInt == 1
	cfg.Removal.ChangeCategoryEnabled = changeCatInt == 1

	var err error
	if cfg.ErrorPatterns, err = decodeStringSliceJSON(errPatJSON); err != nil {
		return nil, fmt.Errorf("decode error patterns: %w", err)
	}
	if cfg.CustomPatterns, err = decodeStringSliceJSON(customJSON); err != nil {
		return nil, fmt.Errorf("decode custom patterns: %w", err)
	}
	if cfg.AutoImport.SafePatterns, err = decodeStringSliceJSON(safeJSON); err != nil {
		return nil, fmt.Errorf("decode auto-import safe patterns: %w", err)
	}
	if cfg.AutoImport.NeverPatterns, err = decodeStringSliceJSON(neverJSON); err != nil {
		return nil, fmt.Errorf("decode auto-import never patterns: %w", err)
	}
	if cfg.WhitelistPatterns, err = decodeWhitelistJSON(whitelistJSON); err != nil {
		return nil, fmt.Errorf("decode whitelist patterns: %w", err)
	}

	if updatedAt.Valid {
		cfg.UpdatedAt = updatedAt.Time
	}

	return &cfg, nil
}
