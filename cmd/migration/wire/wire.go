//go:build wireinject
// +build wireinject

package wire

import (
	"foundryhost/internal/repository"
	"foundryhost/internal/server"
	"foundryhost/pkg/app"
	"foundryhost/pkg/log"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRepository,
	repository.NewInstanceRepository,
	repository.NewLicensePoolRepository,
)
var serverSet = wire.NewSet(
	server.NewMigrateServer,
)

// build App
func newApp(
	migrateServer *server.MigrateServer,
	logger *log.Logger,
) *app.App {
	return app.NewApp(
		app.WithServer(migrateServer),
		app.WithName("foundryhost-migrate"),
		app.WithLogger(logger),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		serverSet,
		newApp,
	))
}
