package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/domain/auth"
	"gymbill/internal/infrastructure/http/v1/dto"
	"gymbill/internal/infrastructure/http/v1/middleware"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)
	public.POST("/auth/refresh", h.Refresh)

	protected.POST("/auth/logout", h.Logout)
	protected.GET("/auth/me", h.Me)
	protected.POST("/auth/roles/assign", middleware.RequireRole(auth.RoleAdmin), h.AssignRole)
	protected.POST("/auth/roles/revoke", middleware.RequireRole(auth.RoleAdmin), h.RevokeRole)
}

// Register handles staff user registration.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.ToAuthRequest())
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromUser(user)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// Login handles user login.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tokens, user, err := h.service.Login(c.Request.Context(), req.ToCredentials())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LoginResponse{
		Tokens: dto.FromTokenPair(tokens),
		User:   dto.FromUser(user),
	})
}

// Refresh exchanges a refresh token for a new token pair.
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tokens, err := h.service.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromTokenPair(tokens))
}

// Logout revokes all refresh tokens for the current user.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, err := id.Parse(h.GetUserID(c))
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	if err := h.service.Logout(c.Request.Context(), userID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "logged out")
}

// Me returns the current user's profile.
// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := id.Parse(h.GetUserID(c))
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	user, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromUser(user))
}

// AssignRole grants a role code to a user.
// POST /auth/roles/assign
func (h *AuthHandler) AssignRole(c *gin.Context) {
	var req dto.AssignRoleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	userID, err := id.Parse(req.UserID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid user id"))
		return
	}

	if err := h.service.AssignRole(c.Request.Context(), userID, req.Role); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "role assigned")
}

// RevokeRole removes a role code from a user.
// POST /auth/roles/revoke
func (h *AuthHandler) RevokeRole(c *gin.Context) {
	var req dto.AssignRoleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	userID, err := id.Parse(req.UserID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid user id"))
		return
	}

	if err := h.service.RevokeRole(c.Request.Context(), userID, req.Role); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "role revoked")
}
