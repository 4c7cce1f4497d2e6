package handler

import (
	"foundryhost/pkg/jwt"
	"foundryhost/pkg/log"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	logger *log.Logger
}

func NewHandler(logger *log.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func GetClaimsFromCtx(ctx *gin.Context) *jwt.MyCustomClaims {
	v, exists := ctx.Get("claims")
	if !exists {
		return nil
	}
	claims, _ := v.(*jwt.MyCustomClaims)
	return claims
}

func GetUserIdFromCtx(ctx *gin.Context) string {
	if claims := GetClaimsFromCtx(ctx); claims != nil {
		return claims.UserId
	}
	return ""
}
