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

type ExecutionHandler struct {
	log        *logger.Logger
	executions services.ExecutionService
	comparison services.ComparisonService
	aggregate  services.AggregationService
}

func NewExecutionHandler(baseLog *logger.Logger, executions services.ExecutionService, comparison services.ComparisonService, aggregate services.AggregationService) *ExecutionHandler {
	return &ExecutionHandler{
		log:        baseLog.With("handler", "ExecutionHandler"),
		executions: executions,
		comparison: comparison,
		aggregate:  aggregate,
	}
}

type createExecutionRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	RcmID    string `json:"rcm_id" binding:"required"`
	PbcID    string `json:"pbc_id"`
	Year     int    `json:"year" binding:"required"`
	Quarter  string `json:"quarter"`
}

// POST /api/test-executions
func (h *ExecutionHandler) Create(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req createExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid client_id"))
		return
	}
	rcmID, err := uuid.Parse(req.RcmID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid rcm_id"))
		return
	}
	input := services.CreateExecutionInput{
		ClientID: clientID,
		RcmID:    rcmID,
		UserID:   claims.UserID,
		Year:     req.Year,
		Quarter:  req.Quarter,
	}
	if req.PbcID != "" {
		pbcID, parseErr := uuid.Parse(req.PbcID)
		if parseErr != nil {
			respondError(c, h.log, apierr.Validation("invalid pbc_id"))
			return
		}
		input.PbcID = &pbcID
	}
	exec, err := h.executions.Create(c.Request.Context(), claims.TenantID, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"test_execution": exec})
}

// GET /api/test-executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	exec, err := h.executions.GetByID(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"test_execution": exec})
}

// GET /api/test-executions?rcm_id=...
func (h *ExecutionHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	rcmID, err := uuid.Parse(c.Query("rcm_id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid rcm_id"))
		return
	}
	execs, err := h.executions.ListByRcm(c.Request.Context(), claims.TenantID, rcmID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"test_executions": execs})
}

type updateRemarksRequest struct {
	Remarks string `json:"remarks" binding:"required"`
}

// PUT /api/test-executions/:id/remarks
func (h *ExecutionHandler) UpdateRemarks(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	var req updateRemarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("remarks are required"))
		return
	}
	if err := h.executions.UpdateRemarks(c.Request.Context(), claims.TenantID, id, req.Remarks); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Remarks updated successfully."})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Result string `json:"result" binding:"required"`
}

// PUT /api/test-executions/:id/status
func (h *ExecutionHandler) UpdateStatusAndResult(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("Status and result are required."))
		return
	}
	if err := h.executions.UpdateStatusAndResult(c.Request.Context(), claims.TenantID, id, req.Status, req.Result); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test execution updated successfully."})
}

type compareRequest struct {
	EvidenceDocumentID  string   `json:"evidence_document_id"`
	EvidenceDocumentIDs []string `json:"evidence_document_ids"`
}

// POST /api/test-executions/:id/compare
func (h *ExecutionHandler) Compare(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	execID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("invalid request body"))
		return
	}

	// single-document compare keeps the original endpoint shape
	if req.EvidenceDocumentID != "" {
		docID, parseErr := uuid.Parse(req.EvidenceDocumentID)
		if parseErr != nil {
			respondError(c, h.log, apierr.Validation("invalid evidence_document_id"))
			return
		}
		outcome, cmpErr := h.comparison.CompareAttributes(c.Request.Context(), claims.TenantID, execID, docID)
		if cmpErr != nil {
			respondError(c, h.log, cmpErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":                             "Evidence Results Fetched Successfully.",
			"evidence_document_id":                docID,
			"results":                             outcome.Verdict,
			"test_execution_evidence_document_id": outcome.Record.ID,
		})
		return
	}

	docIDs := make([]uuid.UUID, 0, len(req.EvidenceDocumentIDs))
	for _, raw := range req.EvidenceDocumentIDs {
		docID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			respondError(c, h.log, apierr.Validation("invalid evidence_document_ids entry"))
			return
		}
		docIDs = append(docIDs, docID)
	}
	results, err := h.comparison.CompareEvidenceDocuments(c.Request.Context(), claims.TenantID, execID, docIDs)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	failures := 0
	for _, r := range results {
		if r.Error != "" {
			failures++
		}
	}
	status := http.StatusOK
	if failures > 0 && failures < len(results) {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": results, "failed": failures})
}

type manualResultRequest struct {
	EvidenceDocumentID string                      `json:"evidence_document_id" binding:"required"`
	UpdatedResult      services.ManualResultUpdate `json:"updated_result" binding:"required"`
}

// PUT /api/test-executions/:id/result
func (h *ExecutionHandler) UpdateManualResult(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	execID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	var req manualResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apierr.Validation("Updated result is required."))
		return
	}
	docID, err := uuid.Parse(req.EvidenceDocumentID)
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid evidence_document_id"))
		return
	}
	rec, err := h.executions.UpdateManualResult(c.Request.Context(), claims.TenantID, execID, docID, req.UpdatedResult)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test execution evidence result updated successfully.", "record": rec})
}

// POST /api/test-executions/:id/evaluate-sample
func (h *ExecutionHandler) EvaluateSample(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	execID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	var req struct {
		SampleName string `json:"sample_name"`
	}
	_ = c.ShouldBindJSON(&req)
	outcome, err := h.aggregate.EvaluateSample(c.Request.Context(), claims.TenantID, execID, req.SampleName)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sample": outcome})
}

// POST /api/test-executions/:id/evaluate
func (h *ExecutionHandler) Evaluate(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	execID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, apierr.Validation("invalid execution id"))
		return
	}
	result, err := h.aggregate.EvaluateExecution(c.Request.Context(), claims.TenantID, execID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	status := http.StatusOK
	for _, sample := range result.Samples {
		if sample.TotalEvidencesProcessed < sample.TotalEvidences {
			status = http.StatusMultiStatus
			break
		}
	}
	c.JSON(status, gin.H{"result": result})
}
