package api

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, svc Mailer, apiKey string) {
	h := &Handler{svc: svc}

	r.GET("/health", h.Health)

	authed := r.Group("/", AuthMiddleware(apiKey))
	{
		authed.POST("/emails", h.Enqueue)
		authed.POST("/emails/direct", h.Direct)
		authed.GET("/emails/history", h.History)
		authed.GET("/emails/queue", h.Queue)
	}
}
