package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/config"
	"github.com/suPer8Hu/healthyai/internal/httpapi/handlers"
	"github.com/suPer8Hu/healthyai/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// accounts
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)
	r.POST("/password/change", h.ChangePassword)
	r.POST("/password/reset", h.ResetPassword)
	r.POST("/health/bmi", h.ComputeBMI)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/settings", h.GetSettings)
	authGroup.PUT("/settings", h.UpdateSettings)

	// chat
	authGroup.GET("/chat/ready", h.ChatReady)
	authGroup.GET("/chat/current", h.CurrentChat)
	authGroup.GET("/chat/sessions", h.ListChatSessions)
	authGroup.POST("/chat/sessions", h.CreateChatSession)
	authGroup.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)
	authGroup.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	authGroup.POST("/chat/messages", h.SendChatMessage)

	// health profile
	authGroup.GET("/health/profile", h.GetHealthProfile)
	authGroup.PUT("/health/profile", h.SaveHealthProfile)
	authGroup.GET("/health/context", h.HealthChatContext)

	// medicine reminders
	authGroup.GET("/reminders", h.ListReminders)
	authGroup.POST("/reminders", h.CreateReminder)
	authGroup.GET("/reminders/:id", h.GetReminder)
	authGroup.DELETE("/reminders/:id", h.DeleteReminder)
	return r
}
