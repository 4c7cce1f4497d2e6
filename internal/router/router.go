package router

import (
	"foundryhost/internal/handler"
	"foundryhost/pkg/jwt"
	"foundryhost/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger        *log.Logger
	Config        *viper.Viper
	JWT           *jwt.JWT
	ActionHandler *handler.ActionHandler
}
