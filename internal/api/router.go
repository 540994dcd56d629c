package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/model"
	"maintenance-monitor-backend/internal/mw"
)

// Router dependencies that are not handlers.
type RouterOptions struct {
	Server  config.ServerConfig
	Auth    *mw.Authenticator
	Metrics http.Handler
	WS      http.HandlerFunc
	Logger  *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(opts.Logger))

	rateLimiter := mw.RateLimiter(rate.Limit(opts.Server.RateLimitPerSec), opts.Server.RateLimitBurst, opts.Server.RequestIPHeader)

	ttl := time.Duration(opts.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.WS != nil {
		r.GET("/ws", gin.WrapF(opts.WS))
	}

	managers := mw.RequireRoles(model.RoleAdmin, model.RoleSupervisor)
	admins := mw.RequireRoles(model.RoleAdmin)
	responders := mw.RequireRoles(model.RoleAdmin, model.RoleSupervisor, model.RoleTechnician)

	api := r.Group("/api")
	api.Use(rateLimiter, opts.Auth.Authenticate(), mw.Invalidate(cacheStore))
	{
		api.GET("/dashboard", caching, h.Dashboard)

		api.GET("/equipment", caching, h.ListEquipment)
		api.POST("/equipment", managers, h.CreateEquipment)
		api.GET("/equipment/:id", h.GetEquipment)
		api.PATCH("/equipment/:id/status", managers, h.UpdateEquipmentStatus)
		api.DELETE("/equipment/:id", admins, h.DeleteEquipment)
		api.PUT("/equipment/:id/technicians", managers, h.AssignTechnicians)
		api.GET("/equipment/:id/sensors", h.ListSensors)
		api.POST("/equipment/:id/sensors", managers, h.CreateSensor)
		api.GET("/equipment/:id/comments", h.ListComments(model.OwnerEquipment))
		api.POST("/equipment/:id/comments", h.CreateComment(model.OwnerEquipment))

		api.GET("/sensors/:id", h.GetSensor)
		api.GET("/sensors/:id/readings", h.ListReadings)
		api.POST("/sensors/:id/readings", h.CreateReading)
		api.GET("/sensors/:id/comments", h.ListComments(model.OwnerSensor))
		api.POST("/sensors/:id/comments", h.CreateComment(model.OwnerSensor))

		api.GET("/alerts", h.ListAlerts)
		api.PATCH("/alerts/:id/resolve", responders, h.ResolveAlert)
		api.GET("/alerts/:id/comments", h.ListComments(model.OwnerAlert))
		api.POST("/alerts/:id/comments", h.CreateComment(model.OwnerAlert))

		api.POST("/analysis", admins, h.StartAnalysis)
		api.GET("/analysis/:id", admins, h.GetAnalysis)

		api.POST("/reports", admins, h.SendReport)
		api.GET("/reports/preview", managers, h.PreviewReport)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
