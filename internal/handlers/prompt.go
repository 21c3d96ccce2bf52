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

type PromptHandler struct {
	log     *logger.Logger
	prompts services.PromptService
}

func NewPromptHandler(baseLog *logger.Logger, prompts services.PromptService) *PromptHandler {
	return &PromptHandler{log: baseLog.With("handler", "PromptHandler"), prompts: prompts}
}

type upsertPromptRequest struct {
	ClientID   string `json:"client_id" binding:"required"`
	RcmID      string `json:"rcm_id"`
	PromptText string `json:"prompt_text" binding:"required"`
	IsDefault  bool   `json:"is_default"`
}

// PUT /api/ai-prompts
func (h *PromptHandler) Upsert(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req upsertPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}

	if req.IsDefault {
		prompt, defErr := h.prompts.SetClientDefault(c.Request.Context(), claims.TenantID, clientID, req.PromptText)
		if defErr != nil {
			respondError(c, h.log, defErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"prompt": prompt})
		return
	}

	rcmID, err := uuid.Parse(req.RcmID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("rcm_id is required for a control-specific prompt"))
		return
	}
	prompt, err := h.prompts.UpsertRcmPrompt(c.Request.Context(), claims.TenantID, clientID, rcmID, req.PromptText)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

// GET /api/ai-prompts/resolve?client_id=...&rcm_id=...
func (h *PromptHandler) Resolve(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}
	rcmID, err := uuid.Parse(c.Query("rcm_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid rcm_id"))
		return
	}
	text, source, err := h.prompts.ResolveComparisonInstructions(c.Request.Context(), claims.TenantID, clientID, rcmID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt_text": text, "source": source})
}
