package router

import (
	"foundryhost/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitActionRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// 调用方通常不带 token；带 admin 声明的 token 用于管理动作
	noStrictAuthRouter := r.Group("/").Use(middleware.NoStrictAuth(deps.JWT, deps.Logger))
	{
		noStrictAuthRouter.POST("/actions", deps.ActionHandler.Dispatch)
	}
}
