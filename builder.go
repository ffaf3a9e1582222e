package akavache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"akavache/blobstore"
	akaconfig "akavache/config"
	"akavache/crypt"
	"akavache/internal/clock"
	"akavache/internal/encryption"
	"akavache/fs"
	"akavache/observability"
)

// Builder constructs a Cache for a given StoreKind. It replaces the
// legacy pattern of a process-wide "current cache" accessor: every
// Builder is independent, so tests and multi-tenant hosts can construct
// as many caches as they need without sharing global state.
type Builder struct {
	cfg           akaconfig.Config
	filesystem    fs.FileSystem
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *observability.Collector
	protector     crypt.Protector
	watchExternal bool
}

// NewBuilder creates a Builder from cfg, defaulting its collaborators to
// their production implementations: OSFileSystem, RealClock, a no-op
// logger, and a fresh metrics Collector. Use the With* methods to
// override any of them (tests substitute MemFileSystem and Mock clock).
func NewBuilder(cfg akaconfig.Config) *Builder {
	return &Builder{
		cfg:           cfg,
		filesystem:    fs.NewOSFileSystem(),
		clock:         clock.RealClock{},
		logger:        zap.NewNop(),
		metrics:       observability.NewCollector("akavache"),
		watchExternal: true,
	}
}

// WithFileSystem overrides the filesystem collaborator.
func (b *Builder) WithFileSystem(filesystem fs.FileSystem) *Builder {
	b.filesystem = filesystem
	return b
}

// WithClock overrides the clock collaborator.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger overrides the zap logger every component logs through.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics overrides the Prometheus metrics collector.
func (b *Builder) WithMetrics(m *observability.Collector) *Builder {
	b.metrics = m
	return b
}

// WithProtector overrides the data-protection collaborator used by the
// Secure store. If unset, Build resolves the default keyring-backed
// Protector lazily when a Secure cache is built.
func (b *Builder) WithProtector(p crypt.Protector) *Builder {
	b.protector = p
	return b
}

// WithExternalChangeWatch toggles the fsnotify-backed watch for index
// changes written by another process sharing the same directory. On by
// default for disk-backed stores; tests that don't want a background
// watcher goroutine (or environments without inotify) can disable it.
func (b *Builder) WithExternalChangeWatch(enabled bool) *Builder {
	b.watchExternal = enabled
	return b
}

// Build resolves kind's directory, wires its filter chain, and performs
// the Uninitialized→Ready recovery sequence: directory creation, index
// load, and drop-missing.
func (b *Builder) Build(ctx context.Context, kind StoreKind) (*Cache, error) {
	inMemory := kind == InMemory

	var filesystem fs.FileSystem = b.filesystem
	if inMemory {
		filesystem = fs.NewMemFileSystem()
	}

	dir := b.cfg.CacheDirectory
	if dir == "" && !inMemory {
		resolved, err := filesystem.DefaultDirectory(directoryKindFor(kind), b.cfg.ApplicationName)
		if err != nil {
			return nil, err
		}
		dir = resolved
	} else if dir == "" {
		dir = "mem/" + b.cfg.ApplicationName
	}

	store := blobstore.New(filesystem, dir)

	var f filter = identityFilter{}
	if kind == Secure {
		protector := b.protector
		if protector == nil {
			p, err := crypt.NewKeyringProtector(b.cfg.ApplicationName)
			if err != nil {
				return nil, err
			}
			protector = p
		}
		f = encryption.New(protector)
	}

	debounce := b.cfg.IndexFlushDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	cache := newCache(kind, store, b.clock, f, b.logger, b.metrics, debounce, inMemory)
	if err := cache.load(ctx); err != nil {
		return nil, err
	}

	if !inMemory && b.watchExternal {
		if _, ok := filesystem.(*fs.OSFileSystem); ok {
			w, err := newIndexWatcher(store.IndexPath(), b.logger, cache.reloadIndexFromDisk)
			if err != nil {
				b.logger.Warn("external index watch unavailable, continuing without it", zap.Error(err))
			} else {
				cache.watcher = w
			}
		}
	}

	return cache, nil
}

func directoryKindFor(kind StoreKind) fs.DirectoryKind {
	switch kind {
	case UserAccount:
		return fs.RoamingDir
	case Secure:
		return fs.SecretDir
	default:
		return fs.LocalMachineDir
	}
}
