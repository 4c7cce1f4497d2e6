//go:build wireinject
// +build wireinject

package wire

import (
	"foundryhost/internal/handler"
	"foundryhost/internal/repository"
	"foundryhost/internal/router"
	"foundryhost/internal/server"
	"foundryhost/internal/service"
	"foundryhost/pkg/app"
	"foundryhost/pkg/cloud/driver"
	"foundryhost/pkg/jwt"
	"foundryhost/pkg/lease"
	"foundryhost/pkg/log"
	"foundryhost/pkg/server/http"
	"foundryhost/pkg/sid"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRedis,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewInstanceRepository,
	repository.NewLicensePoolRepository,
	repository.NewSessionRepository,
	repository.NewReservationRepository,
	repository.NewNotificationRepository,
	repository.NewProvisionJournalRepository,
)

var serviceSet = wire.NewSet(
	service.NewOptions,
	service.NewService,
	service.NewLicenseService,
	service.NewInstanceService,
	service.NewNotificationService,
	service.NewPreemptor,
	service.NewSchedulerService,
	service.NewAutoShutdownService,
	service.NewAdminService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewActionHandler,
)

var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewTaskServer,
)

// build App
func newApp(
	httpServer *http.Server,
	taskServer *server.TaskServer,
	logger *log.Logger,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, taskServer),
		app.WithName("foundryhost-server"),
		app.WithLogger(logger),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		serviceSet,
		handlerSet,
		serverSet,
		wire.Struct(new(router.RouterDeps), "*"),
		lease.NewLocker,
		driver.NewProvider,
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
