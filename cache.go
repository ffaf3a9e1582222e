// Package akavache is an asynchronous, persistent, per-application
// key/value blob cache with per-entry expiration, optional at-rest
// encryption, and HTTP-download memoization.
package akavache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"akavache/blobstore"
	"akavache/internal/clock"
	"akavache/internal/coalescer"
	"akavache/internal/encryption"
	"akavache/internal/executor"
	"akavache/internal/index"
	"akavache/observability"

	akaerrors "akavache/errors"
)

// StoreKind selects a cache's default location and whether the
// EncryptionFilter is installed.
type StoreKind int

const (
	// UserAccount is a persistent, unencrypted, roaming per-user store.
	UserAccount StoreKind = iota
	// LocalMachine is a persistent, unencrypted, local-only store.
	LocalMachine
	// Secure is a persistent store encrypted at rest via the
	// data-protection collaborator.
	Secure
	// InMemory is a non-persistent, process-lifetime-only store.
	InMemory
)

// filter is the pre-write/post-read byte transform chain. The plain
// (non-secure) stores use an identity filter; Secure installs the
// EncryptionFilter.
type filter interface {
	PreWrite(ctx context.Context, plaintext []byte) ([]byte, error)
	PostRead(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type identityFilter struct{}

func (identityFilter) PreWrite(_ context.Context, b []byte) ([]byte, error) { return b, nil }
func (identityFilter) PostRead(_ context.Context, b []byte) ([]byte, error) { return b, nil }

var _ filter = identityFilter{}
var _ filter = (*encryption.Filter)(nil)

const (
	stateReady = iota
	stateDisposing
	stateDisposed
)

// Cache is the BlobCacheEngine: the public surface
// composing the index, blob store, ordered executor, coalescer, and
// (for Secure) the encryption filter.
type Cache struct {
	kind   StoreKind
	clock  clock.Clock
	logger *zap.Logger

	store     *blobstore.Store
	idx       *index.Index
	exec      *executor.Executor
	coalesce  *coalescer.Coalescer
	filt      filter
	metrics   *observability.Collector
	breaker   *gobreaker.CircuitBreaker
	inMemory  bool
	flushWait time.Duration

	state int32

	flushMu      sync.Mutex
	flushTimer   *time.Timer
	flushPending bool

	watcher *indexWatcher
}

// newCache assembles a Cache; used by Builder once its collaborators are
// resolved. When inMemory is set the index is never persisted.
func newCache(kind StoreKind, store *blobstore.Store, c clock.Clock, f filter, logger *zap.Logger, metrics *observability.Collector, flushDebounce time.Duration, inMemory bool) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewCollector("akavache")
	}
	cache := &Cache{
		kind:      kind,
		clock:     c,
		logger:    logger,
		store:     store,
		idx:       index.New(c, logger),
		exec:      executor.New(64),
		coalesce:  coalescer.New(),
		filt:      f,
		metrics:   metrics,
		inMemory:  inMemory,
		flushWait: flushDebounce,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "akavache-flush",
			Timeout: 30 * time.Second,
		}),
	}
	return cache
}

func (c *Cache) checkDisposed() error {
	if atomic.LoadInt32(&c.state) != stateReady {
		return akaerrors.New(akaerrors.Disposed, "", "cache is disposed")
	}
	return nil
}

// load performs the Uninitialized→Ready recovery-on-start sequence:
// create the directory, load the index, and drop entries whose payload
// is missing.
func (c *Cache) load(ctx context.Context) error {
	if c.inMemory {
		return nil
	}
	if err := c.store.EnsureDir(ctx); err != nil {
		return err
	}
	data, ok, err := c.store.ReadIndex(ctx)
	if err != nil {
		return err
	}
	if ok {
		c.idx.Load(data)
	}
	c.idx.DropMissing(func(key string) bool {
		return c.store.Exists(ctx, key)
	})
	return nil
}

// Insert stores data under key, overwriting any existing entry.
// absoluteExpiration, if non-nil, must be a time.Time; nil, or a time
// at-or-before the store's clock.Now() at acceptance, means "never".
func (c *Cache) Insert(ctx context.Context, key string, data []byte, absoluteExpiration interface{}) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	var expiresAt *time.Time
	if absoluteExpiration != nil {
		t := absoluteExpiration.(time.Time)
		now := c.clock.Now()
		if t.After(now) {
			expiresAt = &t
		}
	}

	payload, err := c.filt.PreWrite(ctx, data)
	if err != nil {
		return err
	}

	var writeErr error
	if submitErr := c.exec.Submit(ctx, func() {
		if werr := c.store.Write(ctx, key, payload); werr != nil {
			writeErr = werr
			return
		}
		// Keys written by the typed layer carry a "<type-tag>___" prefix;
		// recording the tag lets GetAllKeys/InvalidateAll filter by it.
		var typeTag string
		if i := strings.Index(key, "___"); i > 0 {
			typeTag = key[:i]
		}
		c.idx.Put(key, index.Entry{
			CreatedAt: c.clock.Now(),
			ExpiresAt: expiresAt,
			TypeTag:   typeTag,
			Size:      int64(len(payload)),
		})
		c.scheduleFlush(ctx)
	}); submitErr != nil {
		return submitErr
	}
	return writeErr
}

// InsertMany stores every (key, data) pair in pairs under the same
// absoluteExpiration. Ordering among pairs is unspecified; all pairs are
// accepted before InsertMany returns. Each pair's filter pass
// (encryption, when the store is Secure) runs on its own goroutine via
// errgroup, fanning out the CPU-bound part of Insert; the single-writer
// executor still serializes the actual index/disk mutation each Insert
// submits. The first pair to fail cancels the group and its error is
// returned.
func (c *Cache) InsertMany(ctx context.Context, pairs map[string][]byte, absoluteExpiration interface{}) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for k, v := range pairs {
		k, v := k, v
		g.Go(func() error {
			return c.Insert(gctx, k, v, absoluteExpiration)
		})
	}
	return g.Wait()
}

// Get returns the bytes stored under key. Returns a KeyNotFound error if
// key is absent or expired. Concurrent Get calls for the same key share
// one underlying fetch via the RequestCoalescer.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	data, err, shared := c.coalesce.Do("", key, func() ([]byte, error) {
		entry, ok := c.idx.Get(key)
		if !ok {
			c.metrics.CacheMisses.Inc()
			return nil, akaerrors.New(akaerrors.KeyNotFound, key, "key not found")
		}
		raw, rerr := c.store.Read(ctx, key)
		if rerr != nil {
			if !c.store.Exists(ctx, key) {
				c.metrics.CacheMisses.Inc()
				return nil, akaerrors.New(akaerrors.KeyNotFound, key, "payload missing")
			}
			return nil, rerr
		}
		plaintext, ferr := c.filt.PostRead(ctx, raw)
		if ferr != nil {
			return nil, ferr
		}
		_ = entry
		c.metrics.CacheHits.Inc()
		return plaintext, nil
	})
	if shared {
		c.metrics.Coalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// GetMany returns a key→bytes map for every key in keys that is present
// and unexpired. Missing keys are silently omitted. Each key's Get runs
// on its own goroutine via errgroup, so the disk reads (and decryption,
// on a Secure store) for distinct keys overlap instead of running
// key-by-key; a non-KeyNotFound error from any key cancels the rest.
func (c *Cache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	var mu sync.Mutex
	out := make(map[string][]byte, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			data, err := c.Get(gctx, k)
			if err != nil {
				if akaerrors.IsKeyNotFound(err) {
					return nil
				}
				return err
			}
			mu.Lock()
			out[k] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCreatedAt returns the created-at timestamp for key, and false if key
// is absent. Unlike Get, an expired-but-present entry's metadata is
// still reported.
func (c *Cache) GetCreatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	if err := c.checkDisposed(); err != nil {
		return time.Time{}, false, err
	}
	e, ok := c.idx.Peek(key)
	if !ok {
		return time.Time{}, false, nil
	}
	return e.CreatedAt, true, nil
}

// GetAllKeys returns every live, unexpired key, optionally filtered to
// typeTag (empty means no filter).
func (c *Cache) GetAllKeys(ctx context.Context, typeTag string) ([]string, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	return c.idx.Keys(typeTag), nil
}

// Invalidate removes key if present; absence is not an error.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	return c.exec.Submit(ctx, func() {
		c.idx.Delete(key)
		c.store.Delete(ctx, key)
		c.scheduleFlush(ctx)
	})
}

// InvalidateMany removes every key in keys; absence is not an error.
func (c *Cache) InvalidateMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := c.Invalidate(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAll removes every entry, optionally restricted to typeTag
// (empty means every entry).
func (c *Cache) InvalidateAll(ctx context.Context, typeTag string) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	return c.exec.Submit(ctx, func() {
		removed := c.idx.DeleteAll(typeTag)
		for _, k := range removed {
			c.store.Delete(ctx, k)
		}
		c.scheduleFlush(ctx)
	})
}

// UpdateExpiration updates only the metadata for key to expiresAt,
// without reading or rewriting the payload. No-op if key is absent.
func (c *Cache) UpdateExpiration(ctx context.Context, key string, expiresAt time.Time) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	return c.exec.Submit(ctx, func() {
		e, ok := c.idx.Peek(key)
		if !ok {
			return
		}
		now := c.clock.Now()
		if expiresAt.After(now) {
			e.ExpiresAt = &expiresAt
		} else {
			e.ExpiresAt = nil
		}
		c.idx.Put(key, e)
		c.scheduleFlush(ctx)
	})
}

// scheduleFlush arms or re-arms the debounced flush timer. Must be
// called from within an executor job so flush() correctly orders after
// every insert enqueued before it.
func (c *Cache) scheduleFlush(ctx context.Context) {
	if c.inMemory {
		return
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.flushPending = true
	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}
	c.flushTimer = time.AfterFunc(c.flushWait, func() {
		_ = c.Flush(ctx)
	})
}

// Flush waits for all queued writes to complete and persists the index.
// The on-disk write goes through a circuit breaker so a run of flush
// failures (e.g. the cache directory's volume went away) fails fast
// instead of retrying into a wedged filesystem on every debounce tick.
func (c *Cache) Flush(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	return c.flushLocked(ctx)
}

// flushLocked is Flush's body without the disposed guard: Dispose calls
// it directly for the terminal flush, since by that point state has
// already moved past stateReady and checkDisposed would reject it.
func (c *Cache) flushLocked(ctx context.Context) error {
	if err := c.exec.Drain(ctx); err != nil {
		return err
	}
	if c.inMemory {
		return nil
	}

	start := c.clock.Now()
	return c.exec.Submit(ctx, func() {
		c.flushMu.Lock()
		c.flushPending = false
		c.flushMu.Unlock()

		data, err := c.idx.Snapshot()
		if err != nil {
			c.logger.Warn("index snapshot failed", zap.Error(err))
			return
		}
		if _, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.store.WriteIndex(ctx, data)
		}); err != nil {
			c.logger.Warn("index flush failed, will retry on next debounce tick", zap.Error(err))
			return
		}
		c.metrics.ObserveFlush(c.clock.Now().Sub(start))
		c.metrics.Entries.Set(float64(c.idx.Len()))
	})
}

// Vacuum removes every entry whose expiry is at-or-before now, deletes
// their payload files (best-effort: a single delete failure is logged
// and skipped rather than aborting the run), and flushes the resulting
// index.
func (c *Cache) Vacuum(ctx context.Context) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	var freed int
	err := c.exec.Submit(ctx, func() {
		expired := c.idx.ExpiredKeys()
		var errs error
		for _, k := range expired {
			if derr := c.store.Delete(ctx, k); derr != nil {
				errs = multierr.Append(errs, derr)
				c.logger.Warn("vacuum: payload delete failed, skipping", zap.String("key", k), zap.Error(derr))
				continue
			}
			c.idx.Delete(k)
			freed++
		}
		if errs != nil {
			c.logger.Warn("vacuum completed with errors", zap.Error(errs))
		}
		c.scheduleFlush(ctx)
	})
	if err != nil {
		return err
	}
	c.metrics.ObserveVacuum(freed)
	return c.Flush(ctx)
}

// Dispose flushes the cache and rejects all further operations with
// Disposed. Idempotent: calling it twice yields the same terminal state.
func (c *Cache) Dispose(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, stateReady, stateDisposing) {
		return nil
	}
	err := c.flushLocked(ctx)
	c.exec.Stop()
	if c.watcher != nil {
		c.watcher.Stop()
	}
	atomic.StoreInt32(&c.state, stateDisposed)
	return err
}
