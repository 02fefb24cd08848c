// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"context"
	"time"

	"github.com/sweeparr/sweeparr/internal/models"
)

// StrikeTracker applies time-based decay on top of the durable strike store.
// Decay is computed lazily at read time from the last-strike timestamp; no
// background sweep is required for correctness.
type StrikeTracker struct {
	store      *models.StrikeStore
	instanceID int
	decay      time.Duration
}

func NewStrikeTracker(store *models.StrikeStore, instanceID int, decayHours int) *StrikeTracker {
	return &StrikeTracker{
		store:      store,
		instanceID: instanceID,
		decay:      time.Duration(decayHours) * time.Hour,
	}
}

// CurrentStrikes returns the effective strike count for an item, treating a
// record older than the decay window as zero.
func (t *StrikeTracker) CurrentStrikes(ctx context.Context, itemKey string, now time.Time) (int, error) {
	rec, err := t.store.Get(ctx, t.instanceID, itemKey)
	if err != nil {
		return 0, err
	}
	if rec == nil || now.Sub(rec.LastStrikeAt) > t.decay {
		return 0, nil
	}
	return rec.Count, nil
}

// RecordStrike increments the item's strike count and returns the new value.
// A gap longer than the decay window since the last strike resets the count
// to one.
func (t *StrikeTracker) RecordStrike(ctx context.Context, itemKey string, now time.Time) (int, error) {
	rec, err := t.store.Get(ctx, t.instanceID, itemKey)
	if err != nil {
		return 0, err
	}

	count := 1
	if rec != nil && now.Sub(rec.LastStrikeAt) <= t.decay {
		count = rec.Count + 1
	}

	if err := t.store.Set(ctx, &models.StrikeRecord{
		InstanceID:   t.instanceID,
		ItemKey:      itemKey,
		Count:        count,
		LastStrikeAt: now,
	}); err != nil {
		return 0, err
	}

	return count, nil
}

// Clear drops the strike record for an item, e.g. after removal.
func (t *StrikeTracker) Clear(ctx context.Context, itemKey string) error {
	return t.store.Delete(ctx, t.instanceID, itemKey)
}

// Prune removes fully decayed records so the table stays bounded.
func (t *StrikeTracker) Prune(ctx context.Context, now time.Time) (int64, error) {
	return t.store.PruneDecayed(ctx, t.instanceID, now.Add(-t.decay))
}
