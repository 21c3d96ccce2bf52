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

type ExtractionJobHandler struct {
	log  *logger.Logger
	jobs services.ExtractionJobService
}

func NewExtractionJobHandler(baseLog *logger.Logger, jobs services.ExtractionJobService) *ExtractionJobHandler {
	return &ExtractionJobHandler{log: baseLog.With("handler", "ExtractionJobHandler"), jobs: jobs}
}

// GET /api/extraction-jobs/:id
func (h *ExtractionJobHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid job id"))
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}
