package module

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/fxamacker/cbor/v2"
)

// CacheEntry is the on-disk unit persisted by Cache. Deliberately narrowed
// to raw fetched bytes (not a full value.ModuleScope graph): cbor cannot
// generically round-trip value.ModuleScope's embedded ast.Node interface
// values without a hand-registered concrete-type scheme. A cache hit saves
// only the fetch; the loader parses and evaluates the module again on
// every import. Hash is the SHA-256 of Content. See DESIGN.md for this
// scoping decision.
type CacheEntry struct {
	Hash      string
	Content   []byte
	FetchedAt int64
}

// Cache is a store of raw fetched module bytes keyed by specifier: the
// in-memory map and the on-disk file name both derive from the specifier,
// and no lookup goes by content hash (each entry only records its
// content's hash). Entries are persisted to disk as cbor (§6.6) and
// invalidated for file-backed
// specifiers via fsnotify watches, grounded in the teacher's
// runtime/planner's fuzzysearch-backed file lookups living alongside a
// similarly simple on-disk artifact cache.
type Cache struct {
	dir     string
	mu      sync.RWMutex
	mem     map[string]CacheEntry // specifier -> entry
	watcher *fsnotify.Watcher
}

// NewCache opens (creating if needed) a cbor-backed cache rooted at dir.
// dir may be "" for an in-memory-only cache (tests, or environments where
// no .mlld/cache directory is writable).
func NewCache(dir string) (*Cache, error) {
	c := &Cache{dir: dir, mem: make(map[string]CacheEntry)}
	if dir == "" {
		return c, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("module cache: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("module cache: fsnotify: %w", err)
	}
	c.watcher = w
	go c.watchLoop()
	return c, nil
}

// Close releases the fsnotify watcher, if any.
func (c *Cache) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// Get returns the cached entry for specifier, checking the in-memory map
// first and falling back to the on-disk cbor file.
func (c *Cache) Get(specifier string) (CacheEntry, bool) {
	c.mu.RLock()
	if e, ok := c.mem[specifier]; ok {
		c.mu.RUnlock()
		return e, true
	}
	c.mu.RUnlock()

	if c.dir == "" {
		return CacheEntry{}, false
	}
	raw, err := os.ReadFile(c.entryPath(specifier))
	if err != nil {
		return CacheEntry{}, false
	}
	var e CacheEntry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return CacheEntry{}, false
	}
	c.mu.Lock()
	c.mem[specifier] = e
	c.mu.Unlock()
	return e, true
}

// Put stores content under specifier, recording its content hash in the
// entry, writing through to
// disk when a cache directory is configured, and watches the specifier's
// path (when it names a local file) so a later edit invalidates the entry.
func (c *Cache) Put(specifier string, content []byte) error {
	sum := sha256.Sum256(content)
	entry := CacheEntry{Hash: hex.EncodeToString(sum[:]), Content: content}

	c.mu.Lock()
	c.mem[specifier] = entry
	c.mu.Unlock()

	if c.dir != "" {
		raw, err := cbor.Marshal(entry)
		if err != nil {
			return fmt.Errorf("module cache: encode %q: %w", specifier, err)
		}
		if err := os.WriteFile(c.entryPath(specifier), raw, 0o644); err != nil {
			return fmt.Errorf("module cache: write %q: %w", specifier, err)
		}
	}

	if kind, spec := ClassifySpecifier(specifier); kind == SpecFile && c.watcher != nil {
		if abs, err := filepath.Abs(spec); err == nil {
			_ = c.watcher.Add(abs)
		}
	}
	return nil
}

// Invalidate drops specifier's cached entry, both in memory and on disk.
func (c *Cache) Invalidate(specifier string) {
	c.mu.Lock()
	delete(c.mem, specifier)
	c.mu.Unlock()
	if c.dir != "" {
		_ = os.Remove(c.entryPath(specifier))
	}
}

func (c *Cache) entryPath(specifier string) string {
	sum := sha256.Sum256([]byte(specifier))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".cbor")
}

// watchLoop invalidates a cached file-backed module whenever its source
// file is written or removed, so the next /import picks up fresh content
// instead of a stale cbor snapshot.
func (c *Cache) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.invalidatePath(ev.Name)
			}
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (c *Cache) invalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for spec := range c.mem {
		if kind, s := ClassifySpecifier(spec); kind == SpecFile {
			if abs, err := filepath.Abs(s); err == nil && abs == path {
				delete(c.mem, spec)
				if c.dir != "" {
					_ = os.Remove(c.entryPath(spec))
				}
			}
		}
	}
}
