package router

import (
	"stimrun/internal/handler"
	"stimrun/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	sessionHandler := handler.NewSessionHandler(svc.Progress, svc.Abort)

	api := r.Group("/api")
	{
		// 当前会话
		current := api.Group("/session")
		{
			current.GET("/status", sessionHandler.GetStatus)
			current.POST("/abort", sessionHandler.Abort)
		}

		// 历史会话（需要数据库）
		sessions := api.Group("/sessions")
		{
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/:id/trials", sessionHandler.GetTrials)
			sessions.GET("/:id/summary", sessionHandler.GetSummary)
		}
	}

	return r
}
