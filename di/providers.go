// Package di declares the github.com/google/wire provider set for
// assembling a Builder and its collaborators. Regular builds only see
// this file: the providers are ordinary constructor functions, safe to
// call directly without running the wire generator. wire.go's
// `wireinject`-tagged injector is what the wire command reads to
// generate a container for applications that want compile-time-checked
// DI instead of calling these constructors by hand.
package di

import (
	"akavache/config"
	"akavache/crypt"
	"akavache/fs"
	"akavache/internal/clock"
	"akavache/observability"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// ProviderSet assembles every collaborator a Builder needs from a
// Config, for wire injectors elsewhere in a consuming application.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideFileSystem,
	ProvideClock,
	ProvideMetrics,
	ProvideProtector,
)

// ProvideLogger creates the production zap logger.
func ProvideLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// ProvideFileSystem creates the default disk-backed FileSystem.
func ProvideFileSystem() fs.FileSystem {
	return fs.NewOSFileSystem()
}

// ProvideClock creates the production wall-clock Clock.
func ProvideClock() clock.Clock {
	return clock.RealClock{}
}

// ProvideMetrics creates the cache's metrics Collector.
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("akavache")
}

// ProvideProtector creates the keyring-backed Protector for cfg's
// application name.
func ProvideProtector(cfg config.Config) (crypt.Protector, error) {
	return crypt.NewKeyringProtector(cfg.ApplicationName)
}
