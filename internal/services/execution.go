package services

import (
  "context"
  "encoding/json"
  "strings"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type CreateExecutionInput struct {
  ClientID uuid.UUID
  RcmID    uuid.UUID
  PbcID    *uuid.UUID
  UserID   uuid.UUID
  Year     int
  Quarter  string
}

// ManualResultUpdate flips reviewer-facing results on a persisted verdict.
// AttributeFinalResults is keyed by attribute name. Any flip against the
// stored values requires Comment; AttributeComments carries the optional
// per-attribute reason and falls back to Comment for flipped attributes.
type ManualResultUpdate struct {
  AttributeFinalResults map[string]bool   `json:"attribute_final_results,omitempty"`
  AttributeComments     map[string]string `json:"attribute_result_change_comments,omitempty"`
  ManualFinalResult     *bool             `json:"manual_final_result,omitempty"`
  Comment               string            `json:"comment,omitempty"`
}

type ExecutionService interface {
  Create(ctx context.Context, tenantID uuid.UUID, input CreateExecutionInput) (*types.TestExecution, error)
  GetByID(ctx context.Context, tenantID, id uuid.UUID) (*types.TestExecution, error)
  ListByRcm(ctx context.Context, tenantID, rcmID uuid.UUID) ([]*types.TestExecution, error)
  UpdateRemarks(ctx context.Context, tenantID, id uuid.UUID, remarks string) error
  // UpdateStatusAndResult enforces the one-way completed transition.
  UpdateStatusAndResult(ctx context.Context, tenantID, id uuid.UUID, status, result string) error
  // UpdateManualResult applies a reviewer override to one document's
  // verdict. FinalResult is never touched; only the manual fields move.
  UpdateManualResult(ctx context.Context, tenantID, executionID, documentID uuid.UUID, update ManualResultUpdate) (*types.EvaluationRecord, error)
}

type executionService struct {
  log   *logger.Logger
  execs repos.TestExecutionRepo
  evals repos.EvaluationRepo
  rcms  repos.RCMRepo
}

func NewExecutionService(baseLog *logger.Logger, execs repos.TestExecutionRepo, evals repos.EvaluationRepo, rcms repos.RCMRepo) ExecutionService {
  return &executionService{
    log:   baseLog.With("service", "ExecutionService"),
    execs: execs,
    evals: evals,
    rcms:  rcms,
  }
}

func validExecutionStatus(s string) bool {
  switch s {
  case types.ExecutionStatusPending, types.ExecutionStatusInProgress, types.ExecutionStatusCompleted, types.ExecutionStatusFailed:
    return true
  }
  return false
}

func validExecutionResult(s string) bool {
  switch s {
  case types.ExecutionResultPass, types.ExecutionResultFail, types.ExecutionResultPartial, types.ExecutionResultNA:
    return true
  }
  return false
}

func (s *executionService) Create(ctx context.Context, tenantID uuid.UUID, input CreateExecutionInput) (*types.TestExecution, error) {
  if input.RcmID == uuid.Nil {
    return nil, apierr.Validation("rcm id is required")
  }
  if input.ClientID == uuid.Nil {
    return nil, apierr.Validation("client id is required")
  }
  if input.Year == 0 {
    return nil, apierr.Validation("year is required")
  }
  rcm, err := s.rcms.GetByID(ctx, nil, tenantID, input.RcmID)
  if err != nil {
    return nil, err
  }
  if rcm == nil {
    return nil, apierr.NotFound("rcm")
  }

  return s.execs.Create(ctx, nil, &types.TestExecution{
    TenantID: tenantID,
    ClientID: input.ClientID,
    RcmID:    input.RcmID,
    PbcID:    input.PbcID,
    UserID:   input.UserID,
    Year:     input.Year,
    Quarter:  input.Quarter,
  })
}

func (s *executionService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*types.TestExecution, error) {
  exec, err := s.execs.GetByID(ctx, nil, tenantID, id)
  if err != nil {
    return nil, err
  }
  if exec == nil {
    return nil, apierr.NotFound("test execution")
  }
  return exec, nil
}

func (s *executionService) ListByRcm(ctx context.Context, tenantID, rcmID uuid.UUID) ([]*types.TestExecution, error) {
  return s.execs.ListByRcm(ctx, nil, tenantID, rcmID)
}

func (s *executionService) UpdateRemarks(ctx context.Context, tenantID, id uuid.UUID, remarks string) error {
  exec, err := s.GetByID(ctx, tenantID, id)
  if err != nil {
    return err
  }
  if exec.Status == types.ExecutionStatusCompleted {
    return apierr.StateConflict("Cannot update results when test execution is completed.")
  }
  return s.execs.UpdateRemarks(ctx, nil, tenantID, id, remarks)
}

func (s *executionService) UpdateStatusAndResult(ctx context.Context, tenantID, id uuid.UUID, status, result string) error {
  if !validExecutionStatus(status) {
    return apierr.Validation("Invalid status value.")
  }
  if !validExecutionResult(result) {
    return apierr.Validation("Invalid result value.")
  }
  exec, err := s.GetByID(ctx, tenantID, id)
  if err != nil {
    return err
  }
  if exec.Status == types.ExecutionStatusCompleted && status != types.ExecutionStatusCompleted {
    return apierr.StateConflict("Cannot change status from completed. This action cannot be reverted.")
  }
  if err := s.execs.UpdateStatus(ctx, nil, tenantID, id, status); err != nil {
    return err
  }
  return s.execs.UpdateResult(ctx, nil, tenantID, id, result)
}

func (s *executionService) UpdateManualResult(ctx context.Context, tenantID, executionID, documentID uuid.UUID, update ManualResultUpdate) (*types.EvaluationRecord, error) {
  exec, err := s.GetByID(ctx, tenantID, executionID)
  if err != nil {
    return nil, err
  }
  if exec.Status == types.ExecutionStatusCompleted {
    return nil, apierr.StateConflict("Cannot update results when test execution is completed.")
  }

  rec, err := s.evals.GetByExecutionAndDocument(ctx, nil, tenantID, executionID, documentID)
  if err != nil {
    return nil, err
  }
  if rec == nil {
    return nil, apierr.NotFound("test execution evidence document")
  }

  var verdict types.Verdict
  if err := json.Unmarshal(rec.Result, &verdict); err != nil {
    return nil, apierr.Validation("stored result is not a readable verdict")
  }

  flipped := false
  for name, val := range update.AttributeFinalResults {
    found := false
    for i := range verdict.AttributesResults {
      if verdict.AttributesResults[i].AttributeName != name {
        continue
      }
      found = true
      if verdict.AttributesResults[i].AttributeFinalResult != val {
        comment := strings.TrimSpace(update.AttributeComments[name])
        if comment == "" {
          comment = strings.TrimSpace(update.Comment)
        }
        if comment == "" {
          return nil, apierr.Validation("A comment is required when changing a result.")
        }
        flipped = true
        verdict.AttributesResults[i].AttributeFinalResult = val
        verdict.AttributesResults[i].AttributeResultChangeComment = comment
      }
    }
    if !found {
      return nil, apierr.Validation("unknown attribute: " + name)
    }
  }
  if update.ManualFinalResult != nil && *update.ManualFinalResult != verdict.ManualFinalResult {
    if strings.TrimSpace(update.Comment) == "" {
      return nil, apierr.Validation("A comment is required when changing a result.")
    }
    flipped = true
    verdict.ManualFinalResult = *update.ManualFinalResult
  }

  resultJSON, err := json.Marshal(&verdict)
  if err != nil {
    return nil, err
  }
  rec.Result = datatypes.JSON(resultJSON)
  if strings.TrimSpace(update.Comment) != "" {
    rec.Comment = update.Comment
  }
  // the persisted status tracks the reviewer-facing result
  rec.Status = RecordStatusFail
  if verdict.ManualFinalResult {
    rec.Status = RecordStatusPass
  }
  if err := s.evals.Save(ctx, nil, rec); err != nil {
    return nil, err
  }

  s.log.Info("manual result updated",
    "execution_id", executionID.String(),
    "document_id", documentID.String(),
    "flipped", flipped,
  )
  return rec, nil
}
