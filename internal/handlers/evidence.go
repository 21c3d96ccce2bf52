package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auditlens/auditlens-backend/internal/middleware"
	"github.com/auditlens/auditlens-backend/internal/platform/apierr"
	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/services"
)

type EvidenceHandler struct {
	log       *logger.Logger
	evidence  services.EvidenceService
	extractor services.ExtractionService
}

func NewEvidenceHandler(baseLog *logger.Logger, evidence services.EvidenceService, extractor services.ExtractionService) *EvidenceHandler {
	return &EvidenceHandler{
		log:       baseLog.With("handler", "EvidenceHandler"),
		evidence:  evidence,
		extractor: extractor,
	}
}

// POST /api/evidences (multipart)
func (h *EvidenceHandler) Create(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.log, apierr.Validation("multipart form is required"))
		return
	}

	clientID, err := uuid.Parse(c.PostForm("client_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}

	input := services.CreateEvidenceInput{
		ClientID:    clientID,
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
	}
	if raw := c.PostForm("rcm_id"); raw != "" {
		rcmID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			respondError(c, h.log, apierr.Validation("invalid rcm_id"))
			return
		}
		input.RcmID = &rcmID
	}

	sampleNames := form.Value["sample_name"]
	policyFlags := form.Value["is_policy_document"]
	for i, fh := range form.File["files"] {
		f, openErr := fh.Open()
		if openErr != nil {
			respondError(c, h.log, apierr.Validation("could not read uploaded file"))
			return
		}
		content, readErr := io.ReadAll(f)
		_ = f.Close()
		if readErr != nil {
			respondError(c, h.log, apierr.Validation("could not read uploaded file"))
			return
		}
		file := services.EvidenceFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  content,
		}
		if i < len(sampleNames) {
			file.SampleName = sampleNames[i]
		}
		if i < len(policyFlags) {
			file.IsPolicyDocument = policyFlags[i] == "true" || policyFlags[i] == "1"
		}
		input.Files = append(input.Files, file)
	}

	ev, jobs, err := h.evidence.Create(c.Request.Context(), claims.TenantID, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evidence": ev, "extraction_jobs": jobs})
}

// GET /api/evidences?client_id=...
func (h *EvidenceHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}
	evs, err := h.evidence.ListByClient(c.Request.Context(), claims.TenantID, clientID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidences": evs})
}

// GET /api/evidences/:id
func (h *EvidenceHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid evidence id"))
		return
	}
	ev, err := h.evidence.GetByID(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": ev})
}

// DELETE /api/evidences/:id
func (h *EvidenceHandler) Delete(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid evidence id"))
		return
	}
	if err := h.evidence.Delete(c.Request.Context(), claims.TenantID, id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Evidence deleted successfully."})
}

// POST /api/evidence-documents/:id/extract
func (h *EvidenceHandler) Extract(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid document id"))
		return
	}
	details, warnings, err := h.extractor.ExtractEvidenceDetails(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence_ai_details": details, "warnings": warnings})
}
