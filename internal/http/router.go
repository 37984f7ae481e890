package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/pmr_assist/backend/internal/config"
	"github.com/pmr_assist/backend/internal/http/handlers"
	"github.com/pmr_assist/backend/internal/http/middleware"
	"github.com/pmr_assist/backend/internal/notify"
	"github.com/pmr_assist/backend/internal/service"

	_ "github.com/pmr_assist/backend/docs"
)

func Router(cfg config.Config, store handlers.Store, engine *service.Engine, notifier *notify.Service, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Engine:    engine,
		Store:     store,
		Notifier:  notifier,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/agents", h.AgentsList)
		api.GET("/missions/:id", h.MissionDetails)
		api.GET("/missions/:id/candidates", h.MissionCandidates)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/missions/:id/assign", h.AssignMission)
		admin.POST("/missions/:id/reevaluate", h.ReevaluateMission)
		admin.POST("/missions/:id/reassign", h.ReassignMission)
		admin.POST("/monitor", h.Monitor)
		admin.PATCH("/agents/:id/availability", h.PatchAvailability)
		admin.POST("/agents/reset-daily", h.ResetDaily)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
