package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/account"
	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/chat"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/health"
	"github.com/suPer8Hu/healthyai/internal/httpapi/middleware"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/reminder"
)

type Handler struct {
	Accounts   *account.Service
	Chat       *chat.Service
	Workspaces *chat.Workspaces
	Health     *health.Service
	Reminders  *reminder.Service
}

func NewHandler(accounts *account.Service, chatSvc *chat.Service, healthSvc *health.Service, reminders *reminder.Service) *Handler {
	return &Handler{
		Accounts:   accounts,
		Chat:       chatSvc,
		Workspaces: chat.NewWorkspaces(chatSvc),
		Health:     healthSvc,
		Reminders:  reminders,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

func mustUser(c *gin.Context) (uint64, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

func (h *Handler) workspace(c *gin.Context) (*chat.Workspace, bool) {
	uid, ok := mustUser(c)
	if !ok {
		return nil, false
	}
	return h.Workspaces.Open(chat.Identity{UserID: uid, Email: c.GetString(middleware.UserEmailKey)}), true
}

// failErr maps service errors onto the response envelope.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, common.ErrUnauthenticated):
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case errors.Is(err, common.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, chat.ErrSuperseded):
		common.Fail(c, http.StatusConflict, 40901, "request superseded by a newer message")
	case errors.Is(err, account.ErrResetTooSoon):
		common.Fail(c, http.StatusTooManyRequests, 42901, "please wait before requesting another reset")
	case errors.Is(err, ai.ErrNotReady):
		common.Fail(c, http.StatusServiceUnavailable, 50301, "assistant is not ready")
	case errors.Is(err, common.ErrTimeout):
		common.Fail(c, http.StatusGatewayTimeout, 50401, "assistant timed out")
	case errors.Is(err, common.ErrTransientIO):
		logger.L.Error("request failed", "request_id", c.GetString(middleware.RequestIDKey), "path", c.FullPath(), "err", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "storage error")
	default:
		logger.L.Error("request failed", "request_id", c.GetString(middleware.RequestIDKey), "path", c.FullPath(), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
