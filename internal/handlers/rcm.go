package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auditlens/auditlens-backend/internal/middleware"
	"github.com/auditlens/auditlens-backend/internal/platform/apierr"
	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/services"
)

type RcmHandler struct {
	log  *logger.Logger
	rcms services.RcmService
}

func NewRcmHandler(baseLog *logger.Logger, rcms services.RcmService) *RcmHandler {
	return &RcmHandler{log: baseLog.With("handler", "RcmHandler"), rcms: rcms}
}

type createRcmRequest struct {
	ClientID        string `json:"client_id" binding:"required"`
	ControlID       string `json:"control_id" binding:"required"`
	ControlName     string `json:"control_name" binding:"required"`
	ControlText     string `json:"control_text"`
	RiskDescription string `json:"risk_description"`
	Frequency       string `json:"frequency"`
}

// POST /api/rcms
func (h *RcmHandler) Create(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req createRcmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}
	rcm, err := h.rcms.CreateRcm(c.Request.Context(), claims.TenantID, services.CreateRcmInput{
		ClientID:        clientID,
		ControlID:       req.ControlID,
		ControlName:     req.ControlName,
		ControlText:     req.ControlText,
		RiskDescription: req.RiskDescription,
		Frequency:       req.Frequency,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rcm": rcm})
}

// GET /api/rcms?client_id=...
func (h *RcmHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}
	rcms, err := h.rcms.ListRcms(c.Request.Context(), claims.TenantID, clientID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rcms": rcms})
}

// GET /api/rcms/:id
func (h *RcmHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid rcm id"))
		return
	}
	rcm, attrs, err := h.rcms.GetRcm(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rcm": rcm, "test_attributes": attrs})
}

// POST /api/rcms/:id/attributes
func (h *RcmHandler) CreateAttribute(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	rcmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid rcm id"))
		return
	}
	var input services.AttributeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	attr, err := h.rcms.CreateAttribute(c.Request.Context(), claims.TenantID, rcmID, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"test_attribute": attr})
}

// PUT /api/test-attributes/:id
func (h *RcmHandler) UpdateAttribute(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid attribute id"))
		return
	}
	var input services.AttributeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	attr, err := h.rcms.UpdateAttribute(c.Request.Context(), claims.TenantID, id, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"test_attribute": attr})
}

// DELETE /api/test-attributes/:id
func (h *RcmHandler) DeleteAttribute(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid attribute id"))
		return
	}
	if err := h.rcms.DeleteAttribute(c.Request.Context(), claims.TenantID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test attribute deleted successfully."})
}
