// Package cache is a small JSON file cache with per-entry expiry, used for
// the geolocation and release lookups made at session start.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is how long entries stay fresh.
const DefaultTTL = 24 * time.Hour

// entry is stored as {"ts": <unix seconds>, "data": <value>}.
type entry struct {
	TS   float64         `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// File is a cache backed by a single JSON object on disk. Read and write
// failures are treated as misses; the cache never blocks the caller.
type File struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

// New returns a cache at path. A ttl of zero means DefaultTTL.
func New(path string, ttl time.Duration) *File {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &File{path: path, ttl: ttl, now: time.Now}
}

// Get decodes the fresh value stored under key into v and reports whether
// it was found.
func (c *File) Get(key string, v any) bool {
	entries, err := c.load()
	if err != nil {
		return false
	}
	e, ok := entries[key]
	if !ok || len(e.Data) == 0 {
		return false
	}
	stored := time.Unix(0, int64(e.TS*float64(time.Second)))
	if c.now().Sub(stored) >= c.ttl {
		return false
	}
	return json.Unmarshal(e.Data, v) == nil
}

// Put stores v under key with the current time. Other keys are preserved.
func (c *File) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encoding %s: %w", key, err)
	}
	entries, err := c.load()
	if err != nil {
		entries = map[string]entry{}
	}
	now := c.now()
	entries[key] = entry{TS: float64(now.UnixNano()) / float64(time.Second), Data: data}

	out, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: encoding file: %w", err)
	}
	return writeAtomic(c.path, out)
}

func (c *File) load() (map[string]entry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := map[string]entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: creating dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".larvling-cache-*")
	if err != nil {
		return fmt.Errorf("cache: temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: writing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: writing: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cache: replacing: %w", err)
	}
	return nil
}
