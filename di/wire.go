//go:build wireinject
// +build wireinject

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

// Container holds every collaborator Builder needs, for applications
// that wire akavache into a larger dependency graph rather than calling
// NewBuilder's With* methods by hand.
type Container struct {
	Logger     *zap.Logger
	FileSystem fs.FileSystem
	Clock      clock.Clock
	Metrics    *observability.Collector
	Protector  crypt.Protector
}

// BuildContainer is the wire injector: running `wire` in this directory
// regenerates a wire_gen.go implementing this function from ProviderSet.
func BuildContainer(cfg config.Config) (*Container, error) {
	wire.Build(
		ProviderSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil
}
