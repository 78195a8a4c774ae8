package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/httpapi/middleware"
	"github.com/suPer8Hu/healthyai/internal/reminder"
)

func reminderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid reminder id")
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateReminder(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var in reminder.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	r, err := h.Reminders.Create(c.Request.Context(), uid, c.GetString(middleware.UserEmailKey), in)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, r)
}

func (h *Handler) ListReminders(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.Reminders.List(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"reminders": list})
}

func (h *Handler) GetReminder(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := reminderID(c)
	if !ok {
		return
	}
	r, err := h.Reminders.Get(c.Request.Context(), uid, id)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, r)
}

func (h *Handler) DeleteReminder(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := reminderID(c)
	if !ok {
		return
	}
	if err := h.Reminders.Deactivate(c.Request.Context(), uid, id); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"deactivated": true})
}
