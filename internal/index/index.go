// Package index implements the canonical in-memory record of which
// keys exist, when they were created, and when they expire. It is
// protected by a readers-writer discipline and serializes to a
// versioned, self-describing on-disk format.
package index

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	akaerrors "akavache/errors"
	"akavache/internal/clock"
)

// formatVersion is bumped whenever the on-disk record shape changes. A
// load that sees an unrecognized version treats the index as empty
// rather than failing outright.
const formatVersion = 1

// Entry is a CacheEntry's metadata: everything the index needs without
// touching the BlobStore.
type Entry struct {
	CreatedAt time.Time
	ExpiresAt *time.Time
	TypeTag   string
	Size      int64
}

// Expired reports whether the entry is expired as of now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

type onDiskEntry struct {
	Key       string     `json:"key"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	TypeTag   string     `json:"type_tag,omitempty"`
	Size      int64      `json:"size"`
}

type onDiskIndex struct {
	Version int           `json:"version"`
	Entries []onDiskEntry `json:"entries"`
}

// Index is the in-memory key → Entry map. All methods are safe for
// concurrent use. Index itself never touches a filesystem; the engine
// owns persistence timing (debounce, final flush) and hands Index's
// Snapshot bytes to the filesystem collaborator.
type Index struct {
	mu      sync.RWMutex
	clock   clock.Clock
	logger  *zap.Logger
	entries map[string]Entry
}

// New creates an empty Index.
func New(c clock.Clock, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{clock: c, logger: logger, entries: make(map[string]Entry)}
}

// Put inserts or overwrites the entry for key. Last writer wins under
// the executor's FIFO order — Index just records the value
// the caller applies, in whatever order it is called).
func (ix *Index) Put(key string, e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[key] = e
}

// Get returns the entry for key if present and unexpired. An expired
// entry is lazily removed and reported absent.
func (ix *Index) Get(key string) (Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.Expired(ix.clock.Now()) {
		delete(ix.entries, key)
		return Entry{}, false
	}
	return e, true
}

// Peek returns the entry for key without evicting it even if expired.
// Used by get-created-at, which reports metadata for a key regardless of
// expiry state before the caller decides what "not found" means.
func (ix *Index) Peek(key string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[key]
	return e, ok
}

// Delete removes key unconditionally. Absence is not an error.
func (ix *Index) Delete(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, key)
}

// Keys returns every live, unexpired key, optionally filtered to those
// carrying typeTag (empty means no filter). Expired entries encountered
// along the way are evicted.
func (ix *Index) Keys(typeTag string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	now := ix.clock.Now()
	keys := make([]string, 0, len(ix.entries))
	for k, e := range ix.entries {
		if e.Expired(now) {
			delete(ix.entries, k)
			continue
		}
		if typeTag != "" && e.TypeTag != typeTag {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// DeleteAll removes every entry, optionally restricted to typeTag (empty
// means every entry), and returns the removed keys.
func (ix *Index) DeleteAll(typeTag string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := make([]string, 0)
	for k, e := range ix.entries {
		if typeTag != "" && e.TypeTag != typeTag {
			continue
		}
		removed = append(removed, k)
		delete(ix.entries, k)
	}
	return removed
}

// ExpiredKeys returns every key whose expiry is at-or-before now, without
// removing them — vacuum() removes each one only after its BlobStore
// delete succeeds; a key whose delete fails is logged and stays in the
// index.
func (ix *Index) ExpiredKeys() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	now := ix.clock.Now()
	keys := make([]string, 0)
	for k, e := range ix.entries {
		if e.Expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len reports the number of entries currently tracked, expired or not.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Snapshot serializes the index to its versioned on-disk form.
func (ix *Index) Snapshot() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := onDiskIndex{Version: formatVersion, Entries: make([]onDiskEntry, 0, len(ix.entries))}
	for k, e := range ix.entries {
		out.Entries = append(out.Entries, onDiskEntry{
			Key:       k,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
			TypeTag:   e.TypeTag,
			Size:      e.Size,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, akaerrors.Wrap(akaerrors.IoFailure, "", "failed to marshal index", err)
	}
	return data, nil
}

// Load replaces the in-memory index with the contents of data. An
// unrecognized format version is treated as an empty index rather than
// an error: the caller proceeds to rediscover keys where
// possible, or starts fresh. A malformed payload is treated the same way
// — the index is not a durability-critical structure on its own.
func (ix *Index) Load(data []byte) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(data) == 0 {
		ix.entries = make(map[string]Entry)
		return
	}

	var in onDiskIndex
	if err := json.Unmarshal(data, &in); err != nil {
		ix.logger.Warn("index file unreadable, starting empty", zap.Error(err))
		ix.entries = make(map[string]Entry)
		return
	}
	if in.Version != formatVersion {
		ix.logger.Warn("index file has unknown format version, starting empty",
			zap.Int("found_version", in.Version),
			zap.Int("expected_version", formatVersion),
		)
		ix.entries = make(map[string]Entry)
		return
	}

	entries := make(map[string]Entry, len(in.Entries))
	for _, e := range in.Entries {
		entries[e.Key] = Entry{
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
			TypeTag:   e.TypeTag,
			Size:      e.Size,
		}
	}
	ix.entries = entries
}

// DropMissing removes any entry whose payload file does not exist
// according to exists: for each entry, verify the payload file
// exists, and if missing, drop it.
func (ix *Index) DropMissing(exists func(key string) bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for k := range ix.entries {
		if !exists(k) {
			delete(ix.entries, k)
		}
	}
}
