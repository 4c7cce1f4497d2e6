package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"foundryhost/pkg/log"
	"foundryhost/pkg/server"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

type App struct {
	name    string
	logger  *log.Logger
	servers []server.Server
}

type Option func(a *App)

func NewApp(opts ...Option) *App {
	a := &App{logger: log.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func WithServer(servers ...server.Server) Option {
	return func(a *App) {
		a.servers = servers
	}
}

func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// Run 启动全部 server，直到收到退出信号、ctx 结束或任一 server 启动失败
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	startErr := make(chan error, len(a.servers))
	for _, srv := range a.servers {
		go func(srv server.Server) {
			if err := srv.Start(ctx); err != nil {
				startErr <- err
			}
		}(srv)
	}

	var runErr error
	select {
	case sig := <-signals:
		a.logger.Info("received termination signal", zap.String("app", a.name), zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("context canceled", zap.String("app", a.name))
	case err := <-startErr:
		a.logger.Error("server start failed", zap.String("app", a.name), zap.Error(err))
		runErr = err
	}

	var stopErr *multierror.Error
	for _, srv := range a.servers {
		if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
			stopErr = multierror.Append(stopErr, err)
		}
	}
	if err := stopErr.ErrorOrNil(); err != nil {
		a.logger.Warn("server stop failed", zap.String("app", a.name), zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
