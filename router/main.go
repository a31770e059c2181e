package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/neatchat/neatchat/controller"
	"github.com/neatchat/neatchat/middleware"
	"github.com/neatchat/neatchat/ratelimit"
)

// SetRouter binds every route to its endpoint class. The class assignment is
// part of the route table: nothing about a request can move it to a cheaper
// quota pool.
func SetRouter(server *gin.Engine, gw *ratelimit.Gateway) {
	server.Use(cors.Default())
	server.Use(middleware.Auth())

	server.POST("/v1/chat/stream", middleware.InferenceRateLimit(gw), controller.ChatStream)

	api := server.Group("/api")
	{
		api.GET("/status", middleware.CrudRateLimit(gw), controller.GetStatus)
		api.GET("/messages", middleware.CrudRateLimit(gw), controller.GetMessages)
		api.POST("/messages", middleware.StorageRateLimit(gw), controller.SaveMessage)

		admin := api.Group("/admin", middleware.AdminOnly(), middleware.AdminRateLimit(gw))
		admin.GET("/ratelimit", controller.GetRateLimitPolicy)
	}
}
