package auth

import (
	response "incidentdesk/api/handlers/common"
	"incidentdesk/internal/auth"
	"incidentdesk/internal/common"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	service *auth.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GoogleLoginRequest Google id_token 登录请求
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// GoogleCallbackRequest 授权码回调请求
type GoogleCallbackRequest struct {
	State string `json:"state" form:"state" binding:"required"`
	Code  string `json:"code" form:"code" binding:"required"`
}

// Login 用户名密码登录
// @Summary 用户登录
// @Description Google 登录创建的账号不能使用密码登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求参数"
// @Success 200 {object} response.APIResponse{data=auth.LoginResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, result.Message, result)
}

// Register 本地注册
// @Summary 注册账号
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body auth.RegisterInput true "注册请求参数"
// @Success 201 {object} response.APIResponse{data=auth.LoginResult}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseCreated(c, result)
}

// LoginGoogle 使用 Google id_token 登录
// @Summary Google 登录
// @Description 校验 id_token 的受众与邮箱域，首次登录自动建号
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body GoogleLoginRequest true "Google id_token"
// @Success 200 {object} response.APIResponse{data=auth.LoginResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /api/auth/login/google [post]
func (h *AuthHandler) LoginGoogle(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.service.LoginWithGoogle(c.Request.Context(), req.IDToken)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, result.Message, result)
}

// GoogleURL 获取 Google 授权地址
// @Summary Google 授权地址
// @Tags Auth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/auth/google/url [get]
func (h *AuthHandler) GoogleURL(c *gin.Context) {
	url, err := h.service.GoogleAuthURL(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"url": url})
}

// GoogleCallback 授权码回调
// @Summary Google 授权回调
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body GoogleCallbackRequest true "state 与授权码"
// @Success 200 {object} response.APIResponse{data=auth.LoginResult}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /api/auth/google/callback [post]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	var req GoogleCallbackRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.service.GoogleCallback(c.Request.Context(), req.State, req.Code)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, result.Message, result)
}

// Me 当前登录员工
// @Summary 当前登录员工
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse{data=org.Profile}
// @Failure 401 {object} response.ErrorResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := auth.GetIdentity(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}
	profile, err := h.service.Me(c.Request.Context(), identity.Username)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, profile)
}

// Logout 注销当前令牌
// @Summary 退出登录
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.APIResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := auth.GetToken(c)
	if token == "" {
		common.ResponseUnauthorized(c, "")
		return
	}
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		common.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "Logout success", nil)
}
