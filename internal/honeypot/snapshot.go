package honeypot

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ---------------------------------------------------------------------------
// Registry persistence — gob snapshots so convictions survive restarts
// ---------------------------------------------------------------------------

// registrySnapshot is the serializable state of the conviction registry.
// The fingerprint index is derived, so it is rebuilt on load.
type registrySnapshot struct {
	Entries     map[string]Detection `json:"entries"`
	TagHits     map[string]int       `json:"tag_hits"`
	Recent      []Detection          `json:"recent"`
	Convictions int64                `json:"convictions"`
	CloneHits   int64                `json:"clone_hits"`
	CreatedAt   time.Time            `json:"created_at"`
}

// SaveSnapshot persists the registry to a gob-encoded file. The write goes
// through a temp file and rename, so readers never see a partial snapshot.
func (r *Registry) SaveSnapshot(path string) error {
	r.mu.RLock()
	snap := registrySnapshot{
		Entries:     make(map[string]Detection, len(r.byToken)),
		TagHits:     make(map[string]int, len(r.tagHits)),
		Recent:      append([]Detection(nil), r.recent...),
		Convictions: r.convictions.Load(),
		CloneHits:   r.cloneHits.Load(),
		CreatedAt:   time.Now(),
	}
	for key, det := range r.byToken {
		snap.Entries[key] = *det
	}
	for tag, n := range r.tagHits {
		snap.TagHits[tag] = n
	}
	r.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("honeypot: create snapshot dir: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("honeypot: create snapshot file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(&snap); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("honeypot: encode snapshot: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("honeypot: close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("honeypot: rename snapshot: %w", err)
	}

	r.log.Info().Str("component", "honeypot").
		Int("entries", len(snap.Entries)).
		Str("path", path).
		Msg("honeypot: registry snapshot saved")

	return nil
}

// LoadSnapshot restores registry state from a gob-encoded file. A missing or
// empty snapshot is not an error; the registry simply starts fresh.
func (r *Registry) LoadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info().Str("component", "honeypot").
				Str("path", path).
				Msg("honeypot: no snapshot found, starting fresh")
			return nil
		}
		return fmt.Errorf("honeypot: open snapshot: %w", err)
	}
	defer f.Close()

	var snap registrySnapshot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&snap); err != nil {
		if err == io.EOF {
			r.log.Warn().Str("component", "honeypot").
				Str("path", path).
				Msg("honeypot: empty snapshot, starting fresh")
			return nil
		}
		return fmt.Errorf("honeypot: decode snapshot: %w", err)
	}

	r.mu.Lock()
	r.byToken = make(map[string]*Detection, len(snap.Entries))
	r.byPrint = make(map[string]string, len(snap.Entries))
	for key, det := range snap.Entries {
		cp := det
		r.byToken[key] = &cp
		if cp.Fingerprint != "" {
			r.byPrint[cp.Fingerprint] = key
		}
	}
	r.tagHits = snap.TagHits
	if r.tagHits == nil {
		r.tagHits = make(map[string]int)
	}
	r.recent = snap.Recent
	if n := len(r.recent); n > r.cfg.RecentSize {
		r.recent = r.recent[n-r.cfg.RecentSize:]
	}
	r.convictions.Store(snap.Convictions)
	r.cloneHits.Store(snap.CloneHits)
	r.mu.Unlock()

	r.log.Info().Str("component", "honeypot").
		Int("entries", len(snap.Entries)).
		Time("created_at", snap.CreatedAt).
		Str("path", path).
		Msg("honeypot: registry snapshot loaded")

	return nil
}

// SnapshotLoop runs periodic snapshots. Blocks until stop is closed, then
// takes a final snapshot.
func (r *Registry) SnapshotLoop(path string, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			if err := r.SaveSnapshot(path); err != nil {
				r.log.Error().Str("component", "honeypot").Err(err).
					Msg("honeypot: final snapshot failed")
			}
			return
		case <-ticker.C:
			if err := r.SaveSnapshot(path); err != nil {
				r.log.Error().Str("component", "honeypot").Err(err).
					Msg("honeypot: periodic snapshot failed")
			}
		}
	}
}

// SnapshotInfo describes a snapshot file without loading it.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	Exists    bool      `json:"exists"`
}

// GetSnapshotInfo stats a snapshot file.
func GetSnapshotInfo(path string) SnapshotInfo {
	info, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{Path: path, Exists: false}
	}
	return SnapshotInfo{
		Path:      path,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Exists:    true,
	}
}
