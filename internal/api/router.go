package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-status-backend/config"
	"parking-status-backend/internal/mw"
	"parking-status-backend/internal/notification"
	"parking-status-backend/internal/store"
	"parking-status-backend/internal/stream"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, hub stream.Registry, pool *notification.WorkerPool, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, hub, pool, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	// Registry responses move only through the external admin path, so a
	// short cache is safe. Snapshot and stream stay uncached.
	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/zones", caching, handler.GetZones)
		api.GET("/zones/snapshot", handler.GetSnapshot)
		api.GET("/stream/zones", handler.StreamZones)

		sensors := api.Group("/sensors", mw.SensorKey(cfg.Sensors.APIKey))
		{
			sensors.POST("/zone-status", handler.PostZoneStatus)
			sensors.POST("/heartbeat", handler.PostHeartbeat)
		}

		admin := api.Group("/admin", mw.OperatorAuth(s.DB()))
		{
			admin.GET("/overview", handler.AdminOverview)
			admin.GET("/sensors", handler.AdminSensors)
			admin.PATCH("/zones/:zone_id/override", handler.SetOverride)
			admin.GET("/zones/:zone_id/override-events", handler.GetOverrideEvents)
		}

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
