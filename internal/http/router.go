package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wagerdash/connect-service/internal/config"
	"github.com/wagerdash/connect-service/internal/http/handler"
	"github.com/wagerdash/connect-service/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, connectHandler *handler.ConnectHandler, auth *middleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/providers", connectHandler.Providers)

		provider := api.Group("/:provider")
		{
			// Browser-facing redirect routes never answer with error bodies.
			provider.GET("/authorize", auth.RequireRedirect, connectHandler.Authorize)
			provider.GET("/callback", auth.RequireRedirect, connectHandler.Callback)

			provider.GET("/status", auth.RequireJSON, connectHandler.Status)
			provider.POST("/unlink", auth.RequireJSON, connectHandler.Unlink)
		}
	}

	return r
}
