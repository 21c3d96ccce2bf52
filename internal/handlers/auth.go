package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auditlens/auditlens-backend/internal/platform/apierr"
	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/services"
)

type AuthHandler struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthHandler(baseLog *logger.Logger, auth services.AuthService) *AuthHandler {
	return &AuthHandler{log: baseLog.With("handler", "AuthHandler"), auth: auth}
}

type registerRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	ClientID string `json:"client_id"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid tenant_id"))
		return
	}
	input := services.RegisterInput{
		TenantID: tenantID,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	}
	if req.ClientID != "" {
		clientID, parseErr := uuid.Parse(req.ClientID)
		if parseErr != nil {
			respondError(c, h.log, apierr.Validation("invalid client_id"))
			return
		}
		input.ClientID = &clientID
	}
	user, err := h.auth.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
