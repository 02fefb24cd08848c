// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/models"
)

// Client is the surface the cleaner needs from a media manager: fetching the
// queue snapshot and dispatching removal/import/search side effects.
type Client interface {
	FetchQueue(ctx context.Context) ([]QueueItem, error)
	RemoveItem(ctx context.Context, itemID int64, removeFromClient, addToBlocklist bool) error
	TriggerImport(ctx context.Context, itemID int64) error
	TriggerSearch(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ClientFactory builds a Client for an instance. The scheduler resolves
// clients per run so API key changes take effect without a restart.
type ClientFactory func(instance *models.Instance, apiKey string) Client

// HTTPClient talks to a Sonarr/Radarr-style v3 API.
type HTTPClient struct {
	host   string
	apiKey string
	kind   models.InstanceKind
	http   *http.Client
}

const (
	requestTimeout = 30 * time.Second
	retryAttempts  = 3
	retryDelay     = 500 * time.Millisecond
)

// NewHTTPClient returns a Client for the given instance.
func NewHTTPClient(instance *models.Instance, apiKey string) Client {
	return &HTTPClient{
		host:   strings.TrimRight(instance.Host, "/"),
		apiKey: apiKey,
		kind:   instance.Kind,
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// queueRecord mirrors the queue payload of the v3 API.
type queueRecord struct {
	ID                    int64  `json:"id"`
	DownloadID            string `json:"downloadId"`
	Title                 string `json:"title"`
	Status                string `json:"status"`
	TrackedDownloadStatus string `json:"trackedDownloadStatus"`
	TrackedDownloadState  string `json:"trackedDownloadState"`
	StatusMessages        []struct {
		Title    string   `json:"title"`
		Messages []string `json:"messages"`
	} `json:"statusMessages"`
	ErrorMessage   string          `json:"errorMessage"`
	Added          string          `json:"added"`
	Size           float64         `json:"size"`
	SizeLeft       float64         `json:"sizeleft"`
	TimeLeft       string          `json:"timeleft"`
	Indexer        string          `json:"indexer"`
	Protocol       string          `json:"protocol"`
	DownloadClient string          `json:"downloadClient"`
	OutputPath     string          `json:"outputPath"`
	CustomFormat   json.RawMessage `json:"customFormat"`
}

type queueResponse struct {
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
	TotalRecords int           `json:"totalRecords"`
	Records      []queueRecord `json:"records"`
}

func (c *HTTPClient) FetchQueue(ctx context.Context) ([]QueueItem, error) {
	var items []QueueItem
	page := 1

	for {
		params := url.Values{}
		params.Set("page", fmt.Sprintf("%d", page))
		params.Set("pageSize", "250")
		params.Set("includeUnknownSeriesItems", "true")

		var resp queueResponse
		if err := c.getJSON(ctx, "/api/v3/queue?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("fetch queue page %d: %w", page, err)
		}

		now := time.Now()
		for _, record := range resp.Records {
			items = append(items, mapQueueRecord(record, now))
		}

		if len(resp.Records) == 0 || len(items) >= resp.TotalRecords {
			break
		}
		page++
	}

	return items, nil
}

// mapQueueRecord converts a raw API record into a normalized QueueItem.
// Malformed detail fields set DataError instead of failing the snapshot.
func mapQueueRecord(record queueRecord, now time.Time) QueueItem {
	item := QueueItem{
		ID:             record.ID,
		DownloadID:     record.DownloadID,
		Title:          record.Title,
		Indexer:        record.Indexer,
		Protocol:       Protocol(strings.ToLower(record.Protocol)),
		DownloadClient: record.DownloadClient,
		ErrorMessage:   record.ErrorMessage,
	}

	if record.Added != "" {
		added, err := time.Parse(time.RFC3339, record.Added)
		if err != nil {
			log.Debug().Str("added", record.Added).Int64("itemID", record.ID).Msg("arr: unparseable added timestamp")
			item.DataError = true
		} else {
			item.Added = added
		}
	}

	if record.Size > 0 {
		item.Progress = (record.Size - record.SizeLeft) / record.Size * 100
	}

	if record.TimeLeft != "" {
		eta, err := parseTimeLeft(record.TimeLeft)
		if err != nil {
			log.Debug().Str("timeleft", record.TimeLeft).Int64("itemID", record.ID).Msg("arr: unparseable timeleft")
			item.DataError = true
		} else {
			item.ETA = eta
		}
	}

	// Average throughput over the item's queue lifetime. Instantaneous
	// speed is not exposed by the queue API.
	if !item.Added.IsZero() {
		elapsed := now.Sub(item.Added).Seconds()
		if elapsed > 0 {
			item.SpeedKBps = (record.Size - record.SizeLeft) / 1024 / elapsed
		}
	}

	item.State = classifyState(record)
	item.StatusText = buildStatusText(record)

	return item
}

func classifyState(record queueRecord) ItemState {
	status := strings.ToLower(record.Status)
	tds := strings.ToLower(record.TrackedDownloadState)
	tdStatus := strings.ToLower(record.TrackedDownloadStatus)

	switch {
	case status == "failed" || tdStatus == "error":
		return StateFailed
	case tds == "importpending":
		return StateImportPending
	case tds == "importblocked" || tds == "importfailed":
		return StateImportBlocked
	case status == "completed" && tds == "downloading":
		// Torrent finished but still announced as downloading: seeding.
		return StateSeeding
	case status == "seeding":
		return StateSeeding
	case status == "stalled" || (status == "warning" && strings.Contains(strings.ToLower(record.ErrorMessage), "stalled")):
		return StateStalled
	case status == "downloading" || status == "queued" || status == "delay" || status == "paused":
		return StateDownloading
	default:
		return StateUnknown
	}
}

// buildStatusText flattens status messages into one haystack for pattern
// matching against block reasons.
func buildStatusText(record queueRecord) string {
	var parts []string
	if record.ErrorMessage != "" {
		parts = append(parts, record.ErrorMessage)
	}
	for _, sm := range record.StatusMessages {
		if sm.Title != "" {
			parts = append(parts, sm.Title)
		}
		parts = append(parts, sm.Messages...)
	}
	return strings.Join(parts, "; ")
}

// parseTimeLeft parses the "hh:mm:ss" (or "d.hh:mm:ss") remaining-time format.
func parseTimeLeft(value string) (time.Duration, error) {
	var days int
	rest := value

	if idx := strings.Index(value, "."); idx > 0 && !strings.Contains(value[:idx], ":") {
		if _, err := fmt.Sscanf(value[:idx], "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid day component %q", value)
		}
		rest = value[idx+1:]
	}

	var h, m, s int
	if _, err := fmt.Sscanf(rest, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("invalid timeleft %q", value)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second, nil
}

func (c *HTTPClient) RemoveItem(ctx context.Context, itemID int64, removeFromClient, addToBlocklist bool) error {
	params := url.Values{}
	params.Set("removeFromClient", fmt.Sprintf("%t", removeFromClient))
	params.Set("blocklist", fmt.Sprintf("%t", addToBlocklist))

	path := fmt.Sprintf("/api/v3/queue/%d?%s", itemID, params.Encode())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) TriggerImport(ctx context.Context, itemID int64) error {
	path := fmt.Sprintf("/api/v3/queue/grab/%d", itemID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *HTTPClient) TriggerSearch(ctx context.Context) error {
	command := "MissingEpisodeSearch"
	if c.kind == models.InstanceKindRadarr {
		command = "MissingMoviesSearch"
	}

	body := map[string]any{"name": command}
	return c.do(ctx, http.MethodPost, "/api/v3/command", body, nil)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.getJSON(ctx, "/api/v3/system/status", &struct{}{})
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	return retry.Do(
		func() error {
			return c.do(ctx, http.MethodGet, path, nil, out)
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
