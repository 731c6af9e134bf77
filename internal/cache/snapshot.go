package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SnapshotVersion is bumped whenever the persisted layout changes.
const SnapshotVersion = 1

// DefaultSnapshotKey is the key under which the latest snapshot is persisted.
const DefaultSnapshotKey = "content-cache/latest.json"

// Snapshot is a deep, ordered copy of the cache content. Two caches holding
// the same content produce identical snapshots.
type Snapshot struct {
	Offerings  []OfferingEntry   `json:"offerings"`
	Procedures []ProcedureEntry  `json:"procedures"`
	Features   []FeatureEntry    `json:"features"`
	Phenomena  []PhenomenonEntry `json:"phenomena"`
	Global     GlobalEntry       `json:"global"`
}

// Snapshot copies the cache content facet by facet. Each facet is read under
// its own lock, so a concurrent rebuild may show in one facet and not another.
func (c *Cache) Snapshot() Snapshot {
	var s Snapshot

	c.offeringsLock.mu.RLock()
	s.Offerings = make([]OfferingEntry, 0, len(c.offerings))
	for _, e := range c.offerings {
		s.Offerings = append(s.Offerings, cloneOffering(e))
	}
	c.offeringsLock.mu.RUnlock()
	sort.Slice(s.Offerings, func(i, j int) bool { return s.Offerings[i].ID < s.Offerings[j].ID })

	c.proceduresLock.mu.RLock()
	s.Procedures = make([]ProcedureEntry, 0, len(c.procedures))
	for _, e := range c.procedures {
		e.Parents = cloneStrings(e.Parents)
		s.Procedures = append(s.Procedures, e)
	}
	c.proceduresLock.mu.RUnlock()
	sort.Slice(s.Procedures, func(i, j int) bool { return s.Procedures[i].ID < s.Procedures[j].ID })

	c.featuresLock.mu.RLock()
	s.Features = make([]FeatureEntry, 0, len(c.features))
	for _, e := range c.features {
		e.Parents = cloneStrings(e.Parents)
		s.Features = append(s.Features, e)
	}
	c.featuresLock.mu.RUnlock()
	sort.Slice(s.Features, func(i, j int) bool { return s.Features[i].ID < s.Features[j].ID })

	c.phenomenaLock.mu.RLock()
	s.Phenomena = make([]PhenomenonEntry, 0, len(c.phenomena))
	for _, e := range c.phenomena {
		e.Procedures = cloneStrings(e.Procedures)
		e.Offerings = cloneStrings(e.Offerings)
		s.Phenomena = append(s.Phenomena, e)
	}
	c.phenomenaLock.mu.RUnlock()
	sort.Slice(s.Phenomena, func(i, j int) bool { return s.Phenomena[i].ID < s.Phenomena[j].ID })

	s.Global = c.Global()
	return s
}

// Restore replaces every facet with the snapshot content.
func (c *Cache) Restore(s Snapshot) {
	c.ReplaceOfferings(s.Offerings)
	c.ReplaceProcedures(s.Procedures)
	c.ReplaceFeatures(s.Features)
	c.ReplacePhenomena(s.Phenomena)
	c.SetGlobal(s.Global)
}

type persistedSnapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Content Snapshot  `json:"content"`
}

// MarshalSnapshot encodes s in the persisted layout.
func MarshalSnapshot(s Snapshot, savedAt time.Time) ([]byte, error) {
	b, err := json.Marshal(persistedSnapshot{Version: SnapshotVersion, SavedAt: savedAt.UTC(), Content: s})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalSnapshot decodes a persisted snapshot and rejects unknown versions.
func UnmarshalSnapshot(b []byte) (Snapshot, time.Time, error) {
	var p persistedSnapshot
	if err := json.Unmarshal(b, &p); err != nil {
		return Snapshot{}, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if p.Version != SnapshotVersion {
		return Snapshot{}, time.Time{}, fmt.Errorf("decode snapshot: unsupported version %d", p.Version)
	}
	return p.Content, p.SavedAt, nil
}

// SnapshotStore persists encoded snapshots. Save overwrites an existing key;
// Load returns an error wrapping errs.ErrSnapshotNotFound for a missing key.
type SnapshotStore interface {
	Save(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Persist writes the current cache content under key.
func Persist(ctx context.Context, store SnapshotStore, key string, c *Cache, now time.Time) error {
	payload, err := MarshalSnapshot(c.Snapshot(), now)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, key, payload); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load restores the cache from the snapshot stored under key and returns the
// time it was saved.
func Load(ctx context.Context, store SnapshotStore, key string, c *Cache) (time.Time, error) {
	payload, err := store.Load(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	s, savedAt, err := UnmarshalSnapshot(payload)
	if err != nil {
		return time.Time{}, err
	}
	c.Restore(s)
	return savedAt, nil
}
