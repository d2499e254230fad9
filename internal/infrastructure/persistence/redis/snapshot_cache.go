package redis

import (
	"context"
	"errors"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/application/orchestrator"
	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// snapshotKeyPrefix namespaces per-competition snapshot keys.
const snapshotKeyPrefix = "snapshot:competition:"

// snapshotTTL outlives a full competition day so the stop trigger can
// still read the last poll, but expired entries never leak across cups.
const snapshotTTL = 26 * time.Hour

// SnapshotCache stores the last polled result set per competition. A
// cache miss maps to shared.ErrNotFound so the orchestrator falls back
// to persisted results.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a SnapshotCache on top of a Cache client.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

var _ orchestrator.SnapshotCache = (*SnapshotCache)(nil)

// snapshotEntry is the wire form of one result row.
type snapshotEntry struct {
	PilotID   string `json:"pilot_id"`
	LapTimeMs int64  `json:"lap_time_ms"`
	Rank      int    `json:"rank"`
	Points    int    `json:"points"`
}

// Get returns the cached snapshot for a competition.
func (c *SnapshotCache) Get(ctx context.Context, competitionID string) ([]competition.ResultEntry, error) {
	var entries []snapshotEntry
	if err := c.cache.Get(ctx, snapshotKeyPrefix+competitionID, &entries); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	results := make([]competition.ResultEntry, 0, len(entries))
	for _, e := range entries {
		results = append(results, competition.ResultEntry{
			PilotID: shared.PilotID(e.PilotID),
			LapTime: shared.LapTime(e.LapTimeMs),
			Rank:    shared.Rank(e.Rank),
			Points:  shared.Points(e.Points),
		})
	}
	return results, nil
}

// Set stores the snapshot for a competition.
func (c *SnapshotCache) Set(ctx context.Context, competitionID string, results []competition.ResultEntry) error {
	entries := make([]snapshotEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, snapshotEntry{
			PilotID:   string(r.PilotID),
			LapTimeMs: int64(r.LapTime),
			Rank:      int(r.Rank),
			Points:    int(r.Points),
		})
	}
	return c.cache.Set(ctx, snapshotKeyPrefix+competitionID, entries, snapshotTTL)
}
