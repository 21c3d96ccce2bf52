package services

import (
  "context"
  "encoding/json"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

const comparisonTaskBlock = `TASK:
- Understand the context and meaning of both evidence and requirements
- Match based on semantic meaning, not exact text
- Consider synonyms, equivalent terms, and policy variations

Return JSON with each requirement evaluated:
{
  "attributes_results": [
    {
      "attribute_name": "string",
      "attribute_description": "string",
      "test_steps": "string",
      "result": boolean,
      "reason": "string explaining match/mismatch based on context",
      "attribute_final_result": boolean
    }
  ],
  "summary": "string",
  "total_attributes": number,
  "total_attributes_passed": number,
  "total_attributes_failed": number,
  "final_result": boolean,
  "manual_final_result": boolean
}

Rules:
- result=true if evidence contextually satisfies the requirement
- attribute_final_result same as result
- result=false if evidence contradicts or is missing
- Compare meaning, not exact wording
- For numeric values, check if condition is met (>=, <=, ==)
- Be strict but contextually aware
- final_result is true if all attributes are passed, false otherwise
- manual_final_result is same as final_result`

const (
  RecordStatusPass = "pass"
  RecordStatusFail = "fail"
)

// ComparisonOutcome pairs the persisted record with the parsed verdict.
type ComparisonOutcome struct {
  Record  *types.EvaluationRecord `json:"record"`
  Verdict *types.Verdict          `json:"verdict"`
}

// DocumentComparison is one slot of a batched comparison. Error is filled
// instead of failing the whole batch.
type DocumentComparison struct {
  EvidenceDocumentID uuid.UUID          `json:"evidence_document_id"`
  Outcome            *ComparisonOutcome `json:"outcome,omitempty"`
  Error              string             `json:"error,omitempty"`
}

type ComparisonService interface {
  // CompareAttributes evaluates one evidence document against the attributes
  // of the execution's control and persists the verdict.
  CompareAttributes(ctx context.Context, tenantID, executionID, documentID uuid.UUID) (*ComparisonOutcome, error)
  // CompareEvidenceDocuments fans the comparison out over documents in
  // chunks, preserving input order.
  CompareEvidenceDocuments(ctx context.Context, tenantID, executionID uuid.UUID, documentIDs []uuid.UUID) ([]DocumentComparison, error)
}

type comparisonService struct {
  log      *logger.Logger
  execs    repos.TestExecutionRepo
  docs     repos.EvidenceDocumentRepo
  attrs    repos.TestAttributeRepo
  evals    repos.EvaluationRepo
  rcms     repos.RCMRepo
  callLog  repos.AICallLogRepo
  prompts  PromptService
  gemini   GeminiClient
  annotate Annotator
}

func NewComparisonService(
  baseLog *logger.Logger,
  execs repos.TestExecutionRepo,
  docs repos.EvidenceDocumentRepo,
  attrs repos.TestAttributeRepo,
  evals repos.EvaluationRepo,
  rcms repos.RCMRepo,
  callLog repos.AICallLogRepo,
  prompts PromptService,
  gemini GeminiClient,
  annotate Annotator,
) ComparisonService {
  return &comparisonService{
    log:      baseLog.With("service", "ComparisonService"),
    execs:    execs,
    docs:     docs,
    attrs:    attrs,
    evals:    evals,
    rcms:     rcms,
    callLog:  callLog,
    prompts:  prompts,
    gemini:   gemini,
    annotate: annotate,
  }
}

// BuildComparisonPrompt assembles the EVIDENCE / REQUIREMENTS / TASK prompt.
// instructions is the resolved override text that heads the prompt.
func BuildComparisonPrompt(instructions, evidence string, attrs []*types.TestAttribute) string {
  reqs := make([]map[string]string, 0, len(attrs))
  for _, a := range attrs {
    reqs = append(reqs, map[string]string{
      "attribute_name":        a.AttributeName,
      "attribute_description": a.AttributeDescription,
      "test_steps":            a.TestSteps,
    })
  }
  reqJSON, _ := json.Marshal(reqs)

  var sb strings.Builder
  sb.WriteString(strings.TrimSpace(instructions))
  sb.WriteString("\n\nEVIDENCE:\n")
  sb.WriteString(evidence)
  sb.WriteString("\n\nREQUIREMENTS:\n")
  sb.Write(reqJSON)
  sb.WriteString("\n\n")
  sb.WriteString(comparisonTaskBlock)
  return sb.String()
}

// NormalizeVerdict re-derives the derived fields server-side so a sloppy
// model reply cannot smuggle an inconsistent final result.
func NormalizeVerdict(v *types.Verdict) {
  passed := 0
  for i := range v.AttributesResults {
    v.AttributesResults[i].AttributeFinalResult = v.AttributesResults[i].Result
    if v.AttributesResults[i].Result {
      passed++
    }
  }
  v.TotalAttributes = len(v.AttributesResults)
  v.TotalAttributesPassed = passed
  v.TotalAttributesFailed = v.TotalAttributes - passed
  v.FinalResult = v.TotalAttributes > 0 && passed == v.TotalAttributes
  v.ManualFinalResult = v.FinalResult
}

func emptyAIDetails(details datatypes.JSON) bool {
  trimmed := strings.TrimSpace(string(details))
  return trimmed == "" || trimmed == "null" || trimmed == "{}" || trimmed == `""`
}

func (s *comparisonService) CompareAttributes(ctx context.Context, tenantID, executionID, documentID uuid.UUID) (*ComparisonOutcome, error) {
  exec, err := s.execs.GetByID(ctx, nil, tenantID, executionID)
  if err != nil {
    return nil, err
  }
  if exec == nil {
    return nil, apierr.NotFound("test execution")
  }
  // A stored verdict for this (execution, document) pair wins outright and
  // the model is never re-invoked. Re-evaluation happens only through an
  // explicit delete of the record.
  stored, err := s.evals.GetByExecutionAndDocument(ctx, nil, tenantID, executionID, documentID)
  if err != nil {
    return nil, err
  }
  if stored != nil {
    var verdict types.Verdict
    if err := json.Unmarshal(stored.Result, &verdict); err == nil && len(verdict.AttributesResults) > 0 {
      s.log.Info("returning stored comparison",
        "execution_id", executionID.String(),
        "document_id", documentID.String(),
        "status", stored.Status,
      )
      return &ComparisonOutcome{Record: stored, Verdict: &verdict}, nil
    }
  }

  if exec.Status == types.ExecutionStatusCompleted {
    return nil, apierr.StateConflict("Cannot update results when test execution is completed.")
  }

  doc, err := s.docs.GetByID(ctx, nil, tenantID, documentID)
  if err != nil {
    return nil, err
  }
  if doc == nil {
    return nil, apierr.NotFound("evidence document")
  }
  if emptyAIDetails(doc.EvidenceAIDetails) {
    return nil, apierr.Validation("Evidence AI details are required. Please fetch evidence AI details first.")
  }

  attrs, err := s.attrs.ListByRcmID(ctx, nil, tenantID, exec.RcmID)
  if err != nil {
    return nil, err
  }
  if len(attrs) == 0 {
    return nil, apierr.NotFound("test attributes")
  }

  instructions, source, err := s.prompts.ResolveComparisonInstructions(ctx, tenantID, exec.ClientID, exec.RcmID)
  if err != nil {
    return nil, err
  }

  prompt := BuildComparisonPrompt(instructions, string(doc.EvidenceAIDetails), attrs)

  started := time.Now()
  reply, genErr := s.gemini.GenerateContent(ctx, []GeminiPart{{Text: prompt}})
  s.recordCall(ctx, tenantID, executionID, prompt, reply, time.Since(started), genErr)
  if genErr != nil {
    return nil, genErr
  }

  var verdict types.Verdict
  if err := DecodeModelJSON(reply, &verdict); err != nil {
    return nil, err
  }
  NormalizeVerdict(&verdict)

  status := RecordStatusFail
  if verdict.FinalResult {
    status = RecordStatusPass
  }

  resultJSON, err := json.Marshal(&verdict)
  if err != nil {
    return nil, err
  }

  rec := &types.EvaluationRecord{
    TenantID:           tenantID,
    TestExecutionID:    executionID,
    EvidenceDocumentID: documentID,
    Result:             datatypes.JSON(resultJSON),
    Status:             status,
    TotalAttributes:    verdict.TotalAttributes,
    TotalPassed:        verdict.TotalAttributesPassed,
    TotalFailed:        verdict.TotalAttributesFailed,
  }

  if s.annotate != nil {
    if format, fmtErr := DetectFormat(doc.DocumentName, doc.MimeType); fmtErr == nil && format == FormatImage {
      if artifact, annErr := s.renderArtifact(ctx, tenantID, exec, doc, &verdict); annErr != nil {
        s.log.Warn("verdict annotation failed", "document_id", documentID.String(), "error", annErr)
      } else {
        rec.ResultArtifactURL = artifact
      }
    }
  }

  saved, err := s.evals.Upsert(ctx, nil, rec)
  if err != nil {
    return nil, err
  }

  s.log.Info("compared evidence document",
    "execution_id", executionID.String(),
    "document_id", documentID.String(),
    "status", status,
    "prompt_source", source,
    "attributes", verdict.TotalAttributes,
  )
  return &ComparisonOutcome{Record: saved, Verdict: &verdict}, nil
}

func (s *comparisonService) renderArtifact(ctx context.Context, tenantID uuid.UUID, exec *types.TestExecution, doc *types.EvidenceDocument, verdict *types.Verdict) (string, error) {
  controlID := exec.RcmID.String()
  if rcm, err := s.rcms.GetByID(ctx, nil, tenantID, exec.RcmID); err == nil && rcm != nil && rcm.ControlID != "" {
    controlID = rcm.ControlID
  }
  return s.annotate.RenderVerdictBadge(doc.ArtifactURL, controlID, verdict)
}

func (s *comparisonService) CompareEvidenceDocuments(ctx context.Context, tenantID, executionID uuid.UUID, documentIDs []uuid.UUID) ([]DocumentComparison, error) {
  if len(documentIDs) == 0 {
    return nil, apierr.Validation("at least one evidence document id is required")
  }

  outcomes := RunBatched(ctx, documentIDs, defaultBatchSize, func(ctx context.Context, id uuid.UUID) (*ComparisonOutcome, error) {
    return s.CompareAttributes(ctx, tenantID, executionID, id)
  })

  results := make([]DocumentComparison, len(outcomes))
  for i, out := range outcomes {
    results[i] = DocumentComparison{EvidenceDocumentID: documentIDs[i], Outcome: out.Value}
    if out.Err != nil {
      results[i].Error = out.Err.Error()
    }
  }
  return results, nil
}

func (s *comparisonService) recordCall(ctx context.Context, tenantID, executionID uuid.UUID, prompt, reply string, took time.Duration, callErr error) {
  if s.callLog == nil {
    return
  }
  entry := &types.AICallLog{
    TenantID:   &tenantID,
    ContextID:  &executionID,
    CallType:   "attribute_comparison",
    Model:      s.gemini.Model(),
    Prompt:     prompt,
    Response:   reply,
    Success:    callErr == nil,
    DurationMS: took.Milliseconds(),
  }
  if callErr != nil {
    entry.Error = callErr.Error()
  }
  if err := s.callLog.Create(ctx, nil, entry); err != nil {
    s.log.Warn("failed to record ai call", "error", err)
  }
}
