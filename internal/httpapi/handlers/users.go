package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/healthyai/internal/account"
	"github.com/suPer8Hu/healthyai/internal/common"
)

func (h *Handler) CreateUser(c *gin.Context) {
	var req account.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	u, err := h.Accounts.Register(c.Request.Context(), req)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"id":       u.ID,
		"uid":      u.UID,
		"email":    u.Email,
		"username": u.Username,
	})
}

type loginReq struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	login := req.Login
	if login == "" {
		login = req.Username
	}
	if login == "" {
		login = req.Email
	}
	res, err := h.Accounts.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"token":    res.Token,
		"id":       res.User.ID,
		"email":    res.User.Email,
		"username": res.User.Username,
	})
}

// Logout drops the user's transient chat workspace. The token itself
// stays valid until it expires.
func (h *Handler) Logout(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	h.Workspaces.Close(uid)
	common.OK(c, gin.H{"logged_out": true})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	u, err := h.Accounts.Me(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, u)
}

type changePasswordReq struct {
	Username    string `json:"username"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Accounts.ChangePassword(c.Request.Context(), req.Username, req.OldPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"changed": true})
}

type resetPasswordReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), req.Email, req.Username); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"sent": true})
}

func (h *Handler) GetSettings(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	st, err := h.Accounts.GetSettings(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, st)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var patch account.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	st, err := h.Accounts.UpdateSettings(c.Request.Context(), uid, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, st)
}
