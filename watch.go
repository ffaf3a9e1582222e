package akavache

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// indexWatcher observes a disk-backed cache's directory for index-file
// writes made by another process and reloads the in-memory index so
// this process's readers eventually observe them. It never touches the
// BlobStore directly — only the already-serialized index bytes.
type indexWatcher struct {
	fsw       *fsnotify.Watcher
	indexPath string
	logger    *zap.Logger
	reload    func()
	stopCh    chan struct{}
	stopOnce  sync.Once
}

const indexWatchDebounce = 200 * time.Millisecond

// newIndexWatcher watches indexPath's parent directory and calls reload
// whenever indexPath itself is written or (re)created. Returns an error
// if fsnotify cannot establish a watch (missing inotify support, an
// already-deleted directory, and so on) — callers treat this as
// best-effort and fall back to running without external-change
// detection rather than failing Build.
func newIndexWatcher(indexPath string, logger *zap.Logger, reload func()) (*indexWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(indexPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	iw := &indexWatcher{
		fsw:       fsw,
		indexPath: filepath.Clean(indexPath),
		logger:    logger,
		reload:    reload,
		stopCh:    make(chan struct{}),
	}
	go iw.loop()
	return iw, nil
}

func (iw *indexWatcher) loop() {
	defer iw.fsw.Close()

	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-iw.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != iw.indexPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(indexWatchDebounce, iw.reload)

		case err, ok := <-iw.fsw.Errors:
			if !ok {
				return
			}
			iw.logger.Warn("index watcher error", zap.Error(err))

		case <-iw.stopCh:
			return
		}
	}
}

// Stop tears down the watcher. Safe to call more than once.
func (iw *indexWatcher) Stop() {
	iw.stopOnce.Do(func() { close(iw.stopCh) })
}

// reloadIndexFromDisk re-reads the index file and replaces the
// in-memory index wholesale. Invoked off the indexWatcher's debounce
// timer, so it runs on its own goroutine rather than inside an executor
// job — a concurrent flush still wins any data race on the next write
// since Index itself is safe for concurrent use.
func (c *Cache) reloadIndexFromDisk() {
	ctx := context.Background()
	data, ok, err := c.store.ReadIndex(ctx)
	if err != nil {
		c.logger.Warn("external index reload failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	c.idx.Load(data)
	c.idx.DropMissing(func(key string) bool {
		return c.store.Exists(ctx, key)
	})
	c.logger.Debug("reloaded index after external change")
}
