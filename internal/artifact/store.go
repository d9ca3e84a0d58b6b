package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
)

const (
	bundleExt   = ".raix"
	currentFile = "CURRENT"
)

// Store manages a directory of versioned bundle files plus a CURRENT
// pointer. Bundles are immutable once published; the pointer is swapped via
// tmp write and rename so readers never observe a partial publish.
type Store struct {
	dir          string
	keepVersions int
	loadOpts     LoadOptions
	logger       *slog.Logger

	mu sync.Mutex
}

// NewStore opens (creating if needed) the artifact directory. keepVersions
// bounds how many published bundles are retained; older ones are pruned on
// publish. Zero means keep everything.
func NewStore(dir string, keepVersions int, loadOpts LoadOptions, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Store{
		dir:          dir,
		keepVersions: keepVersions,
		loadOpts:     loadOpts,
		logger:       logger.With("component", "artifact_store"),
	}, nil
}

func (s *Store) bundlePath(versionID string) string {
	return filepath.Join(s.dir, "v_"+versionID+bundleExt)
}

// Publish writes the version's bundle and atomically repoints CURRENT at
// it. Publishing a version id that already exists on disk is a no-op for
// the bundle itself but still moves the pointer.
func (s *Store) Publish(v *Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.bundlePath(v.Manifest.VersionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteBundle(path, v); err != nil {
			return fmt.Errorf("writing bundle %s: %w", v.Manifest.VersionID, err)
		}
	}

	pointerTmp := filepath.Join(s.dir, currentFile+".tmp")
	pointer, err := json.Marshal(currentPointer{VersionID: v.Manifest.VersionID, BuiltAt: v.Manifest.BuiltAt})
	if err != nil {
		return fmt.Errorf("marshaling current pointer: %w", err)
	}
	if err := os.WriteFile(pointerTmp, pointer, 0o644); err != nil {
		return fmt.Errorf("writing current pointer: %w", err)
	}
	if err := os.Rename(pointerTmp, filepath.Join(s.dir, currentFile)); err != nil {
		return fmt.Errorf("publishing current pointer: %w", err)
	}

	s.logger.Info("published artifact version",
		"version_id", v.Manifest.VersionID,
		"item_count", v.Manifest.ItemCount,
		"dimensions", v.Manifest.Dimensions)

	if err := s.prune(v.Manifest.VersionID); err != nil {
		s.logger.Warn("pruning old versions failed", "error", err)
	}
	s.updateVersionGauge()
	return nil
}

type currentPointer struct {
	VersionID string    `json:"version_id"`
	BuiltAt   time.Time `json:"built_at"`
}

// CurrentID returns the version id CURRENT points at, or ErrNoVersion when
// nothing has been published yet.
func (s *Store) CurrentID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if os.IsNotExist(err) {
		return "", apperrors.ErrNoVersion
	}
	if err != nil {
		return "", fmt.Errorf("reading current pointer: %w", err)
	}
	var p currentPointer
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("parsing current pointer: %w", err)
	}
	if p.VersionID == "" {
		return "", apperrors.ErrNoVersion
	}
	return p.VersionID, nil
}

// Current loads the currently published version.
func (s *Store) Current() (*Version, error) {
	id, err := s.CurrentID()
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}

// Load reads a specific version's bundle. A version id whose bundle has
// been pruned yields ErrStaleVersion.
func (s *Store) Load(versionID string) (*Version, error) {
	path := s.bundlePath(versionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("version %s: %w", versionID, apperrors.ErrStaleVersion)
	}
	v, err := ReadBundle(path, s.loadOpts)
	if err != nil {
		return nil, fmt.Errorf("loading version %s: %w", versionID, err)
	}
	return v, nil
}

// Exists reports whether a bundle for versionID is on disk, used to skip
// redundant rebuilds of identical inputs.
func (s *Store) Exists(versionID string) bool {
	_, err := os.Stat(s.bundlePath(versionID))
	return err == nil
}

// List returns the manifests of all retained versions, newest first.
func (s *Store) List() ([]Manifest, error) {
	ids, err := s.bundleIDs()
	if err != nil {
		return nil, err
	}
	manifests := make([]Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := ReadManifest(s.bundlePath(id))
		if err != nil {
			s.logger.Warn("skipping unreadable bundle", "version_id", id, "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].BuiltAt.After(manifests[j].BuiltAt) })
	return manifests, nil
}

func (s *Store) bundleIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing artifact directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "v_") || !strings.HasSuffix(name, bundleExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "v_"), bundleExt))
	}
	return ids, nil
}

// prune removes the oldest bundles beyond the retention limit. The current
// version is never pruned regardless of age.
func (s *Store) prune(currentID string) error {
	if s.keepVersions <= 0 {
		return nil
	}
	manifests, err := s.List()
	if err != nil {
		return err
	}
	if len(manifests) <= s.keepVersions {
		return nil
	}
	for _, m := range manifests[s.keepVersions:] {
		if m.VersionID == currentID {
			continue
		}
		if err := os.Remove(s.bundlePath(m.VersionID)); err != nil {
			return fmt.Errorf("removing bundle %s: %w", m.VersionID, err)
		}
		s.logger.Info("pruned artifact version", "version_id", m.VersionID)
	}
	return nil
}

func (s *Store) updateVersionGauge() {
	ids, err := s.bundleIDs()
	if err != nil {
		return
	}
	metrics.ArtifactVersions.Set(float64(len(ids)))
}
