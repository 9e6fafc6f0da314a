package opsapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/logger"
	_ "alertrelay/internal/opsapi/docs"
	"alertrelay/pkg/middleware"
	"alertrelay/pkg/ratelimit"
	"alertrelay/pkg/tracing"
)

//go:generate swag init -g router.go -o docs --parseDependency --parseInternal

// NewRouter builds the ops router. ctx bounds the rate limiter's janitor.
//
// @title        Alert Relay Ops API
// @version      1.0
// @description  Health, metrics, cycle status and dedup bucket inspection for alert-relay.
// @BasePath     /
func NewRouter(ctx context.Context, cfg *config.Config, h *Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())

	if cfg.Server.RateLimit.Enabled {
		rl := ratelimit.FromSettings(cfg.Server.RateLimit)
		router.Use(ratelimit.Middleware(ctx, rl))
		log.InfowCtx(ctx, "Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	h.RegisterRoutes(router)

	return router
}

func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
