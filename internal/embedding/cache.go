package embedding

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Cache memoizes embeddings by a hash of the input text, so rebuilds skip
// provider calls for items whose text did not change. The cache survives
// across builds via a gob file in the builder's data directory; losing it is
// harmless, it only costs extra provider calls.
type Cache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	path    string
	logger  *slog.Logger
}

// NewCache creates a cache persisted at path. Pass an empty path for a
// purely in-memory cache.
func NewCache(path string) *Cache {
	return &Cache{
		vectors: make(map[string][]float32),
		path:    path,
		logger:  slog.Default().With("component", "embedding-cache"),
	}
}

// Key returns the cache key for a text: a truncated SHA-256 of the content.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[key]
	return vec, ok
}

func (c *Cache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[key] = vec
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// Load reads the persisted cache if present. A missing file is not an
// error; a corrupt file resets the cache.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening embedding cache: %w", err)
	}
	defer f.Close()

	var vectors map[string][]float32
	if err := gob.NewDecoder(f).Decode(&vectors); err != nil {
		c.logger.Warn("embedding cache unreadable, starting empty", "path", c.path, "error", err)
		return nil
	}
	c.mu.Lock()
	c.vectors = vectors
	c.mu.Unlock()
	c.logger.Info("embedding cache loaded", "path", c.path, "entries", len(vectors))
	return nil
}

// Save writes the cache atomically (tmp file + rename).
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating embedding cache directory: %w", err)
	}
	tmpPath := c.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating embedding cache file: %w", err)
	}

	c.mu.RLock()
	err = gob.NewEncoder(f).Encode(c.vectors)
	c.mu.RUnlock()
	if err != nil {
		f.Close()
		return fmt.Errorf("encoding embedding cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing embedding cache: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("renaming embedding cache: %w", err)
	}
	return nil
}
