package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/health"
)

func (h *Handler) GetHealthProfile(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	ov, err := h.Health.Overview(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, ov)
}

func (h *Handler) SaveHealthProfile(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var in health.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Health.SaveProfile(ctx, uid, in); err != nil {
		failErr(c, err)
		return
	}
	ov, err := h.Health.Overview(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, ov)
}

type bmiReq struct {
	HeightCm float64 `json:"height_cm"`
	WeightKg float64 `json:"weight_kg"`
}

func (h *Handler) ComputeBMI(c *gin.Context) {
	var req bmiReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	res, err := health.ComputeBMI(req.HeightCm, req.WeightKg)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, res)
}

// HealthChatContext returns the profile block a client prepends to chat prompts.
func (h *Handler) HealthChatContext(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	ov, err := h.Health.Overview(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"context": health.ChatbotContext(ov.Profile, ov.BMI, ov.Suggestion)})
}
