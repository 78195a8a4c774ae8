package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/common"
)

func (h *Handler) ChatReady(c *gin.Context) {
	common.OK(c, h.Chat.CheckReady(c.Request.Context()))
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	sessions, err := ws.ListSessions(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	v, err := ws.StartNewChat(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, v)
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.DeleteSession(c.Request.Context(), c.Param("session_id")); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

// ListChatMessages switches the workspace to one of the caller's sessions
// and returns its messages.
func (h *Handler) ListChatMessages(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	sid := c.Param("session_id")
	msgs, err := ws.OpenSession(c.Request.Context(), sid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"session_id": sid, "messages": msgs})
}

// CurrentChat returns the active view, if any.
func (h *Handler) CurrentChat(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	common.OK(c, ws.View())
}

type sendMessageReq struct {
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "message required")
		return
	}

	// read idempotency key
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if len(key) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	ctx := c.Request.Context()
	sid := req.SessionID
	if sid == "" {
		v, err := ws.StartNewChat(ctx)
		if err != nil {
			failErr(c, err)
			return
		}
		sid = v.SessionID
	}

	res, err := ws.Send(ctx, sid, req.Message, key)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, res)
}
