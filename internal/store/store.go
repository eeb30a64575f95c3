// Package store persists per-project commit and branch caches as JSON
// snapshots. Each write replaces the whole per-project record; a crash
// mid-write never corrupts the last valid snapshot.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewradar/pkg/models"
)

// ErrCacheCorrupt marks a persisted snapshot that could not be decoded.
// Readers treat it as an empty cache; the broken file is left on disk for
// inspection and overwritten by the next write.
var ErrCacheCorrupt = errors.New("cache snapshot corrupt")

// Store is a single-writer key-value store of per-project cache snapshots,
// keyed by a filesystem-safe transform of the project id.
type Store struct {
	dir string
}

// New creates the store rooted at dir, creating the layout if needed.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"commits", "branches"} {
		if err := os.MkdirAll(filepath.Join(dir, "cache", sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// safeID maps a project id to a filesystem-safe file stem.
func safeID(projectID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	return r.Replace(projectID)
}

func (s *Store) commitPath(projectID string) string {
	return filepath.Join(s.dir, "cache", "commits", safeID(projectID)+".json")
}

func (s *Store) branchPath(projectID string) string {
	return filepath.Join(s.dir, "cache", "branches", safeID(projectID)+".json")
}

// ReadCommitCache returns the project's commit cache. When no snapshot
// exists yet, it returns an empty cache whose commit watermark is
// "now - reviewWindow" so the first pull has a bounded backfill horizon.
// A corrupt snapshot degrades to the same empty cache with a warning.
func (s *Store) ReadCommitCache(projectID string, reviewWindow time.Duration) (*models.ProjectCommitCache, error) {
	empty := func() *models.ProjectCommitCache {
		return &models.ProjectCommitCache{
			ProjectID:          projectID,
			LastCommitPullTime: time.Now().Add(-reviewWindow),
		}
	}

	data, err := os.ReadFile(s.commitPath(projectID))
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read commit cache %s: %w", projectID, err)
	}

	var cache models.ProjectCommitCache
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Warn().Str("project_id", projectID).Err(fmt.Errorf("%w: %v", ErrCacheCorrupt, err)).
			Msg("Commit cache snapshot unreadable, starting from an empty cache")
		return empty(), nil
	}
	return &cache, nil
}

// HasCommitCache reports whether a commit snapshot exists for the project.
// Report consumers use this to distinguish "no data yet" from empty stats.
func (s *Store) HasCommitCache(projectID string) bool {
	_, err := os.Stat(s.commitPath(projectID))
	return err == nil
}

// WriteCommitCache persists the full cache, replacing prior content.
func (s *Store) WriteCommitCache(cache *models.ProjectCommitCache) error {
	return s.writeSnapshot(s.commitPath(cache.ProjectID), cache)
}

// ReadBranchCache returns the project's branch cache, empty if absent or
// corrupt (with a warning on corruption).
func (s *Store) ReadBranchCache(projectID string) (*models.ProjectBranchCache, error) {
	data, err := os.ReadFile(s.branchPath(projectID))
	if os.IsNotExist(err) {
		return &models.ProjectBranchCache{ProjectID: projectID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read branch cache %s: %w", projectID, err)
	}

	var cache models.ProjectBranchCache
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Warn().Str("project_id", projectID).Err(fmt.Errorf("%w: %v", ErrCacheCorrupt, err)).
			Msg("Branch cache snapshot unreadable, starting from an empty cache")
		return &models.ProjectBranchCache{ProjectID: projectID}, nil
	}
	return &cache, nil
}

// WriteBranchCache persists the full branch cache, replacing prior content.
func (s *Store) WriteBranchCache(cache *models.ProjectBranchCache) error {
	return s.writeSnapshot(s.branchPath(cache.ProjectID), cache)
}

// writeSnapshot writes to a temp file in the target directory and renames it
// over the destination, so readers only ever see a complete snapshot.
func (s *Store) writeSnapshot(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	return nil
}

// MergeCommits inserts incoming commits at the head of the cache, skipping
// ids already present. Existing entries are never reordered or removed, so
// merging the same list twice is a no-op. Returns how many were inserted.
func MergeCommits(cache *models.ProjectCommitCache, incoming []models.CachedCommit) int {
	if len(incoming) == 0 {
		return 0
	}

	known := make(map[string]bool, len(cache.Commits))
	for _, c := range cache.Commits {
		known[c.ID] = true
	}

	var fresh []models.CachedCommit
	for _, c := range incoming {
		if known[c.ID] {
			continue
		}
		known[c.ID] = true
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0
	}

	cache.Commits = append(fresh, cache.Commits...)
	return len(fresh)
}
