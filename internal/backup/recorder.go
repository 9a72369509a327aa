// Package backup keeps an append-only audit trail of catalog
// mutations in the local key-value substrate. Recording is
// best-effort: a failed audit write is logged and swallowed so it can
// never block the mutation it describes. Callers record before the
// remote write, so the pre-image survives even when the write itself
// later fails.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"galley/api/internal/catalog"
	"galley/api/internal/diff"
	"galley/api/internal/util"

	"github.com/redis/go-redis/v9"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Entry is one immutable audit record. Entries are never mutated;
// the only way they leave the trail is an explicit age-based purge.
type Entry struct {
	ID             string              `json:"id"`
	Timestamp      int64               `json:"timestamp"`
	Action         Action              `json:"action"`
	EntityType     string              `json:"entityType"`
	EntityID       string              `json:"entityId"`
	EntityName     string              `json:"entityName"`
	Data           catalog.Restaurant  `json:"data"`
	PreviousData   *catalog.Restaurant `json:"previousData,omitempty"`
	Changes        []diff.Detail       `json:"changes,omitempty"`
	ChangesSummary string              `json:"changesSummary"`
}

// Recorder appends audit entries to a Redis list.
type Recorder struct {
	client *redis.Client
	key    string
}

// New connects a recorder to Redis at the given URL.
func New(redisURL string) (*Recorder, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewWithClient(redis.NewClient(opts)), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client) *Recorder {
	return &Recorder{client: client, key: "galley:backups"}
}

// Record appends one audit entry for a restaurant mutation. Changes
// are computed only for updates, where both snapshots exist. Failure
// is logged, never returned.
func (r *Recorder) Record(ctx context.Context, action Action, current catalog.Restaurant, previous *catalog.Restaurant) {
	entry := Entry{
		ID:         util.NewID("bak"),
		Timestamp:  time.Now().UnixMilli(),
		Action:     action,
		EntityType: "restaurant",
		EntityID:   current.ID,
		EntityName: current.Name,
		Data:       catalog.CloneRestaurant(current),
	}
	if previous != nil {
		snapshot := catalog.CloneRestaurant(*previous)
		entry.PreviousData = &snapshot
		if action == ActionUpdate {
			entry.Changes = diff.Restaurants(*previous, current)
		}
	}
	entry.ChangesSummary = diff.Summarize(string(action), entry.Changes, current.Name)

	payload, err := json.Marshal(entry)
	if err != nil {
		log.Printf("backup: marshal entry for %s: %v", current.ID, err)
		return
	}
	if err := r.client.RPush(ctx, r.key, payload).Err(); err != nil {
		log.Printf("backup: append entry for %s: %v", current.ID, err)
	}
}

// ListAll returns every audit entry in append order.
func (r *Recorder) ListAll(ctx context.Context) ([]Entry, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read backup list: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			log.Printf("backup: skipping undecodable entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LatestFor returns the most recent entry for an entity, or nil.
func (r *Recorder) LatestFor(ctx context.Context, entityID string) (*Entry, error) {
	entries, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var latest *Entry
	for i := range entries {
		if entries[i].EntityID != entityID {
			continue
		}
		if latest == nil || entries[i].Timestamp >= latest.Timestamp {
			latest = &entries[i]
		}
	}
	return latest, nil
}

// PurgeOlderThan drops entries older than the given number of days and
// rewrites the list. Returns how many entries were removed.
func (r *Recorder) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	entries, err := r.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	kept := make([]any, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp >= cutoff {
			payload, err := json.Marshal(entry)
			if err != nil {
				return 0, fmt.Errorf("marshal kept entry: %w", err)
			}
			kept = append(kept, payload)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(kept) > 0 {
		pipe.RPush(ctx, r.key, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rewrite backup list: %w", err)
	}
	return removed, nil
}

// Ping checks the substrate connection.
func (r *Recorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
