// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"strconv"
	"time"
)

// Protocol is the transfer protocol a queue item uses.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// ItemState is the normalized state of a queue item, derived from the raw
// status fields the media manager reports.
type ItemState string

const (
	StateDownloading   ItemState = "downloading"
	StateStalled       ItemState = "stalled"
	StateFailed        ItemState = "failed"
	StateSeeding       ItemState = "seeding"
	StateImportPending ItemState = "import_pending"
	StateImportBlocked ItemState = "import_blocked"
	StateUnknown       ItemState = "unknown"
)

// QueueItem is an immutable snapshot of one entry in a download queue.
type QueueItem struct {
	ID             int64         `json:"id"`
	DownloadID     string        `json:"downloadId"`
	Title          string        `json:"title"`
	State          ItemState     `json:"state"`
	StatusText     string        `json:"statusText"`
	Added          time.Time     `json:"added"`
	Progress       float64       `json:"progress"`
	Indexer        string        `json:"indexer"`
	Protocol       Protocol      `json:"protocol"`
	DownloadClient string        `json:"downloadClient"`
	Category       string        `json:"category"`
	Tags           []string      `json:"tags"`
	Tracker        string        `json:"tracker"`
	SpeedKBps      float64       `json:"speedKBps"`
	ETA            time.Duration `json:"eta"`
	SeedingSince   *time.Time    `json:"seedingSince,omitempty"`
	ErrorMessage   string        `json:"errorMessage"`

	// DataError marks an item whose detail payload failed to parse. The
	// evaluator skips such items and flags the run instead of aborting.
	DataError bool `json:"dataError,omitempty"`
}

// Key returns the strike/import-attempt key for this item: downloadId when
// present so all files of one pack share state, otherwise the item id.
func (i QueueItem) Key() string {
	if i.DownloadID != "" {
		return i.DownloadID
	}
	return strconv.FormatInt(i.ID, 10)
}

// AgeMinutes returns how long the item has been queued as of now.
func (i QueueItem) AgeMinutes(now time.Time) float64 {
	if i.Added.IsZero() {
		return 0
	}
	return now.Sub(i.Added).Minutes()
}
