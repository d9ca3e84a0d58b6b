package embedding

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache("")
	key := Key("red running shoes")
	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache reported a hit")
	}
	c.Put(key, []float32{1, 2, 3})
	vec, ok := c.Get(key)
	if !ok || len(vec) != 3 {
		t.Fatalf("Get = %v ok=%v", vec, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestKeyContentAddressed(t *testing.T) {
	if Key("same text") != Key("same text") {
		t.Fatal("identical text produced different keys")
	}
	if Key("text one") == Key("text two") {
		t.Fatal("different texts produced the same key")
	}
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.gob")
	c := NewCache(path)
	c.Put(Key("red shoes"), []float32{0.1, 0.9})
	c.Put(Key("blue hat"), []float32{0.7, 0.3})
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := NewCache(path)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("Len after load = %d, want 2", restored.Len())
	}
	vec, ok := restored.Get(Key("red shoes"))
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if vec[0] != 0.1 || vec[1] != 0.9 {
		t.Fatalf("restored vector = %v", vec)
	}
}

func TestCacheLoadMissingFile(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "absent.gob"))
	if err := c.Load(); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestCacheLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.gob")
	if err := os.WriteFile(path, []byte("not gob data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := NewCache(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load of corrupt file: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after corrupt load", c.Len())
	}
}

func TestCacheInMemoryOnlySaveIsNoop(t *testing.T) {
	c := NewCache("")
	c.Put(Key("x"), []float32{1})
	if err := c.Save(); err != nil {
		t.Fatalf("Save with empty path: %v", err)
	}
}
