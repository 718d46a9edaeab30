package api

import (
	"net/http"

	"pricealerts/config"
	"pricealerts/internal/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowOrigins []string
	Secrets      config.SecretsConfig
	// StreamLimiter is optional; nil disables stream open throttling.
	StreamLimiter ratelimit.Limiter
}

func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(logger))
	r.Use(Error())

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
	}))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	streamChain := []gin.HandlerFunc{}
	if cfg.StreamLimiter != nil {
		streamChain = append(streamChain, RateLimit(cfg.StreamLimiter, logger))
	}
	r.GET("/stream", append(streamChain, h.Stream)...)

	alerts := r.Group("/alerts")
	{
		alerts.POST("/check", SharedSecret(cfg.Secrets.AlertCheckToken), h.CheckAlerts)
		alerts.POST("/trigger-single", SharedSecret(cfg.Secrets.AlertWorkerToken), h.TriggerSingle)
		alerts.GET("/worker", SharedSecret(cfg.Secrets.AlertWorkerToken), h.WorkerFeed)
	}

	v1 := r.Group("/api")
	{
		v1.GET("/push/vapid-key", h.VAPIDKey)

		user := v1.Group("/").Use(JWTAuth(cfg.Secrets.JWTSecret))
		{
			user.GET("/alerts", h.ListAlerts)
			user.POST("/alerts", h.CreateAlert)
			user.PUT("/alerts/:id", h.UpdateAlert)
			user.DELETE("/alerts/:id", h.DeleteAlert)
			user.POST("/push/subscriptions", h.Subscribe)
			user.DELETE("/push/subscriptions", h.Unsubscribe)
		}
	}

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
