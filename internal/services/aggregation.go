package services

import (
  "context"
  "encoding/json"
  "sort"

  "github.com/google/uuid"
  "gorm.io/datatypes"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type AggregationService interface {
  // EvaluateSample runs the pipeline over one sample's documents,
  // extracting and comparing on demand, and folds the verdicts per
  // attribute. The outcome is memoized on the execution; a present memo
  // entry short-circuits verbatim.
  EvaluateSample(ctx context.Context, tenantID, executionID uuid.UUID, sampleName string) (*types.AggregateResult, error)
  // EvaluateExecution evaluates every sample of the execution and derives
  // the execution-level result. Broken documents are reported per evidence
  // line, never fatal.
  EvaluateExecution(ctx context.Context, tenantID, executionID uuid.UUID) (*types.ExecutionEvaluation, error)
}

type aggregationService struct {
  log        *logger.Logger
  execs      repos.TestExecutionRepo
  docs       repos.EvidenceDocumentRepo
  attrs      repos.TestAttributeRepo
  extraction ExtractionService
  comparison ComparisonService
}

func NewAggregationService(
  baseLog *logger.Logger,
  execs repos.TestExecutionRepo,
  docs repos.EvidenceDocumentRepo,
  attrs repos.TestAttributeRepo,
  extraction ExtractionService,
  comparison ComparisonService,
) AggregationService {
  return &aggregationService{
    log:        baseLog.With("service", "AggregationService"),
    execs:      execs,
    docs:       docs,
    attrs:      attrs,
    extraction: extraction,
    comparison: comparison,
  }
}

// decodeMemo reads the memo map off the execution. A blob written before
// samples existed carries attribute_results/evidence_results at the top
// level; it is kept as the entry for the default sample rather than
// recomputed.
func decodeMemo(raw datatypes.JSON) map[string]types.AggregateResult {
  memo := make(map[string]types.AggregateResult)
  if len(raw) == 0 {
    return memo
  }
  var entries map[string]json.RawMessage
  if err := json.Unmarshal(raw, &entries); err != nil {
    return memo
  }
  _, hasAttrs := entries["attribute_results"]
  _, hasEvidences := entries["evidence_results"]
  if hasAttrs || hasEvidences {
    var legacy types.AggregateResult
    if err := json.Unmarshal(raw, &legacy); err == nil {
      memo[types.DefaultSampleName] = legacy
    }
    return memo
  }
  for name, entry := range entries {
    var outcome types.AggregateResult
    if err := json.Unmarshal(entry, &outcome); err != nil {
      continue
    }
    memo[name] = outcome
  }
  return memo
}

// sampleDocuments partitions the execution's documents by sample name.
func sampleDocuments(docs []*types.EvidenceDocument) map[string][]*types.EvidenceDocument {
  groups := make(map[string][]*types.EvidenceDocument)
  for _, d := range docs {
    name := d.SampleName
    if name == "" {
      name = types.DefaultSampleName
    }
    groups[name] = append(groups[name], d)
  }
  return groups
}

// computeSample extracts and compares each document of the sample, then
// folds per attribute: one matching document carries the attribute.
func (s *aggregationService) computeSample(ctx context.Context, tenantID uuid.UUID, exec *types.TestExecution, docs []*types.EvidenceDocument) (*types.AggregateResult, error) {
  attrs, err := s.attrs.ListByRcmID(ctx, nil, tenantID, exec.RcmID)
  if err != nil {
    return nil, err
  }
  if len(attrs) == 0 {
    return nil, apierr.NotFound("test attributes")
  }

  result := &types.AggregateResult{
    AttributeResults: make([]types.AttributeAggregate, 0, len(attrs)),
    EvidenceResults:  make([]types.EvidenceEvaluation, 0, len(docs)),
    TotalEvidences:   len(docs),
  }

  verdicts := make(map[uuid.UUID]*types.Verdict, len(docs))
  for _, doc := range docs {
    if emptyAIDetails(doc.EvidenceAIDetails) {
      if _, _, err := s.extraction.ExtractEvidenceDetails(ctx, tenantID, doc.ID); err != nil {
        result.EvidenceResults = append(result.EvidenceResults, types.EvidenceEvaluation{
          DocumentID:   doc.ID,
          DocumentName: doc.DocumentName,
          Error:        err.Error(),
        })
        continue
      }
    }
    out, err := s.comparison.CompareAttributes(ctx, tenantID, exec.ID, doc.ID)
    if err != nil {
      result.EvidenceResults = append(result.EvidenceResults, types.EvidenceEvaluation{
        DocumentID:   doc.ID,
        DocumentName: doc.DocumentName,
        Error:        err.Error(),
      })
      continue
    }
    final := out.Verdict.FinalResult
    result.EvidenceResults = append(result.EvidenceResults, types.EvidenceEvaluation{
      DocumentID:   doc.ID,
      DocumentName: doc.DocumentName,
      FinalResult:  &final,
    })
    result.TotalEvidencesProcessed++
    verdicts[doc.ID] = out.Verdict
  }

  for _, attr := range attrs {
    agg := types.AttributeAggregate{
      AttributeName:        attr.AttributeName,
      AttributeDescription: attr.AttributeDescription,
      TestSteps:            attr.TestSteps,
    }
    for _, doc := range docs {
      verdict, ok := verdicts[doc.ID]
      if !ok {
        continue
      }
      for _, ar := range verdict.AttributesResults {
        if ar.AttributeName != attr.AttributeName {
          continue
        }
        ev := types.AttributeEvidence{
          DocumentID:   doc.ID,
          DocumentName: doc.DocumentName,
          Reason:       ar.Reason,
        }
        if ar.Result {
          agg.Result = true
          agg.MatchedEvidences = append(agg.MatchedEvidences, ev)
        } else {
          agg.UnmatchedEvidences = append(agg.UnmatchedEvidences, ev)
        }
      }
    }
    result.AttributeResults = append(result.AttributeResults, agg)
    result.TotalAttributes++
    if agg.Result {
      result.TotalAttributesPassed++
    } else {
      result.TotalAttributesFailed++
    }
  }
  result.FinalResult = result.TotalAttributesFailed == 0
  return result, nil
}

func (s *aggregationService) writeMemo(ctx context.Context, tenantID, executionID uuid.UUID, memo map[string]types.AggregateResult) error {
  memoJSON, err := json.Marshal(memo)
  if err != nil {
    return err
  }
  return s.execs.UpdateOverallResult(ctx, nil, tenantID, executionID, datatypes.JSON(memoJSON))
}

func (s *aggregationService) EvaluateSample(ctx context.Context, tenantID, executionID uuid.UUID, sampleName string) (*types.AggregateResult, error) {
  if sampleName == "" {
    sampleName = types.DefaultSampleName
  }

  exec, err := s.execs.GetByID(ctx, nil, tenantID, executionID)
  if err != nil {
    return nil, err
  }
  if exec == nil {
    return nil, apierr.NotFound("test execution")
  }

  memo := decodeMemo(exec.OverallExecutionResult)
  if outcome, ok := memo[sampleName]; ok {
    return &outcome, nil
  }

  docs, err := s.docs.ListForExecution(ctx, nil, tenantID, exec)
  if err != nil {
    return nil, err
  }
  groups := sampleDocuments(docs)
  sampleDocs, ok := groups[sampleName]
  if !ok {
    return nil, apierr.NotFound("sample")
  }

  outcome, err := s.computeSample(ctx, tenantID, exec, sampleDocs)
  if err != nil {
    return nil, err
  }

  // merge under the sample key; other samples' entries stay untouched
  memo[sampleName] = *outcome
  if err := s.writeMemo(ctx, tenantID, executionID, memo); err != nil {
    return nil, err
  }

  s.log.Info("aggregated sample",
    "execution_id", executionID.String(),
    "sample", sampleName,
    "attributes_passed", outcome.TotalAttributesPassed,
    "attributes_failed", outcome.TotalAttributesFailed,
    "final_result", outcome.FinalResult,
  )
  return outcome, nil
}

func (s *aggregationService) EvaluateExecution(ctx context.Context, tenantID, executionID uuid.UUID) (*types.ExecutionEvaluation, error) {
  exec, err := s.execs.GetByID(ctx, nil, tenantID, executionID)
  if err != nil {
    return nil, err
  }
  if exec == nil {
    return nil, apierr.NotFound("test execution")
  }

  docs, err := s.docs.ListForExecution(ctx, nil, tenantID, exec)
  if err != nil {
    return nil, err
  }
  groups := sampleDocuments(docs)

  names := make([]string, 0, len(groups))
  for name := range groups {
    names = append(names, name)
  }
  sort.Strings(names)

  memo := decodeMemo(exec.OverallExecutionResult)
  samples := make(map[string]types.AggregateResult, len(groups))
  allPass := true
  allProcessed := true
  for _, name := range names {
    outcome, ok := memo[name]
    if !ok {
      computed, err := s.computeSample(ctx, tenantID, exec, groups[name])
      if err != nil {
        return nil, err
      }
      outcome = *computed
      memo[name] = outcome
    }
    samples[name] = outcome
    if !outcome.FinalResult {
      allPass = false
    }
    if outcome.TotalEvidencesProcessed < outcome.TotalEvidences {
      allProcessed = false
    }
  }

  result := types.ExecutionResultNA
  switch {
  case len(samples) == 0:
    result = types.ExecutionResultNA
  case !allPass:
    result = types.ExecutionResultFail
  case !allProcessed:
    result = types.ExecutionResultPartial
  default:
    result = types.ExecutionResultPass
  }

  if err := s.writeMemo(ctx, tenantID, executionID, memo); err != nil {
    return nil, err
  }
  if err := s.execs.UpdateResult(ctx, nil, tenantID, executionID, result); err != nil {
    return nil, err
  }

  s.log.Info("aggregated execution",
    "execution_id", executionID.String(),
    "samples", len(samples),
    "result", result,
  )
  return &types.ExecutionEvaluation{
    ExecutionID: executionID,
    Result:      result,
    Samples:     samples,
  }, nil
}
