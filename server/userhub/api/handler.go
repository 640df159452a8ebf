package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	commonauth "interview_server/server/common/auth"
	commonlog "interview_server/server/common/log"
	"interview_server/server/common/middleware"
	"interview_server/server/common/transport/httpresp"
	"interview_server/server/userhub/domain"
	"interview_server/server/userhub/service"
)

const maxAvatarBytes = 5 << 20

type Handler struct {
	users *service.UserService
	auth  *commonauth.Service
}

func NewHandler(users *service.UserService, auth *commonauth.Service) *Handler {
	return &Handler{users: users, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpresp.NewOKResponse())
	})

	authGroup := r.Group("/api/v1/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/google", h.loginGoogle)
	}

	profile := r.Group("/api/v1/profile", middleware.AuthRequired(h.auth))
	{
		profile.GET("", h.getProfile)
		profile.PUT("", h.updateProfile)
		profile.POST("/avatar", h.uploadAvatar)
	}

	// Consumed by the files service only; keep it off the public ingress.
	internal := r.Group("/api/internal/v1/users")
	{
		internal.POST("/resolve", h.resolveUser)
		internal.POST("/resume-docs", h.addResumeDocument)
		internal.POST("/resume-docs/remove", h.removeResumeDocument)
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("email, name and password are required"))
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Name, req.Password, domain.UserRole(req.Role))
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			c.JSON(http.StatusConflict, httpresp.NewErrorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	h.issueToken(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("email and password are required"))
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidCredentials))
			return
		}
		commonlog.Errorf("login %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse("login failed"))
		return
	}

	h.issueToken(c, http.StatusOK, user)
}

type googleLoginRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) loginGoogle(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("authorization code is required"))
		return
	}

	user, err := h.users.LoginWithGoogle(c.Request.Context(), req.Code)
	if err != nil {
		commonlog.Warnf("google login: %v", err)
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse("google sign-in failed"))
		return
	}

	h.issueToken(c, http.StatusOK, user)
}

func (h *Handler) issueToken(c *gin.Context, status int, user domain.User) {
	token, err := h.auth.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		commonlog.Errorf("generate token for user %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse("token generation failed"))
		return
	}
	c.JSON(status, gin.H{
		"token": httpresp.NewTokenResponse(token, user.ID, string(user.Role)),
		"user":  user,
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	user, err := h.users.GetProfile(c.Request.Context(), c.GetString("auth_user_id"))
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var patch domain.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid profile payload"))
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), c.GetString("auth_user_id"), patch)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) uploadAvatar(c *gin.Context) {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("avatar file is required"))
		return
	}
	if fileHeader.Size > maxAvatarBytes {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("avatar exceeds the 5MB limit"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("avatar file is unreadable"))
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("avatar file is unreadable"))
		return
	}

	user, err := h.users.UploadAvatar(c.Request.Context(), c.GetString("auth_user_id"), data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, domain.ErrNotAnImage) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type resolveRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) resolveUser(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("user_id is required"))
		return
	}

	user, err := h.users.ResolveUser(c.Request.Context(), req.UserID)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    user.ID,
		"role":  user.Role,
		"name":  user.Name,
		"email": user.Email,
	})
}

type addResumeDocRequest struct {
	UserID   string                `json:"user_id" binding:"required"`
	Document domain.ResumeDocument `json:"document" binding:"required"`
}

func (h *Handler) addResumeDocument(c *gin.Context) {
	var req addResumeDocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("user_id and document are required"))
		return
	}

	if err := h.users.AddResumeDocument(c.Request.Context(), req.UserID, req.Document); err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

type removeResumeDocRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	BinaryObjectID string `json:"binary_object_id" binding:"required"`
}

func (h *Handler) removeResumeDocument(c *gin.Context) {
	var req removeResumeDocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("user_id and binary_object_id are required"))
		return
	}

	if err := h.users.RemoveResumeDocument(c.Request.Context(), req.UserID, req.BinaryObjectID); err != nil {
		h.writeUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) writeUserError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(err.Error()))
		return
	}
	commonlog.Errorf("userhub request %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse("internal error"))
}
