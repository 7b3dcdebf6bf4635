package http

import (
	"net/http"

	"github.com/astro-web3/oauthgate/internal/config"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Mount is an extra handler served under a path prefix.
type Mount struct {
	Path    string
	Handler http.Handler
}

func NewRouter(handler *Handler, cfg *config.Config, metrics http.Handler, mounts ...Mount) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(requestIDMiddleware(), loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.Any("/oauth/check/*path", handler.Check)

	if cfg.Server.AdminEnabled {
		router.GET("/admin/apikey-cache", handler.CacheSize)
		router.DELETE("/admin/apikey-cache", handler.ClearCache)

		for _, m := range mounts {
			router.Any(m.Path+"*method", gin.WrapH(m.Handler))
		}
	}

	if cfg.Observability.MetricsEnabled && metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	return router
}
