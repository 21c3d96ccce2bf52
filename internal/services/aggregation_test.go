package services

import (
  "context"
  "encoding/json"
  "os"
  "path/filepath"
  "strings"
  "testing"

  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

func seedEvaluation(t *testing.T, db *gorm.DB, log *logger.Logger, fx *testFixture, doc *types.EvidenceDocument, passed bool) *types.EvaluationRecord {
  t.Helper()
  v := types.Verdict{
    AttributesResults: []types.AttributeResult{{AttributeName: "MinLength", Result: passed, AttributeFinalResult: passed}},
  }
  NormalizeVerdict(&v)
  v.ManualFinalResult = passed
  b, _ := json.Marshal(&v)

  status := RecordStatusFail
  if passed {
    status = RecordStatusPass
  }
  rec, err := repos.NewEvaluationRepo(db, log).Upsert(context.Background(), nil, &types.EvaluationRecord{
    TenantID:           fx.tenantID,
    TestExecutionID:    fx.exec.ID,
    EvidenceDocumentID: doc.ID,
    Result:             datatypes.JSON(b),
    Status:             status,
    TotalAttributes:    1,
  })
  if err != nil {
    t.Fatalf("seed evaluation: %v", err)
  }
  return rec
}

func newAggregation(t *testing.T, db *gorm.DB, log *logger.Logger, gem GeminiClient) AggregationService {
  docs := repos.NewEvidenceDocumentRepo(db, log)
  extraction := NewExtractionService(log, docs, repos.NewAICallLogRepo(db, log), gem)
  comparison := newComparisonFixture(t, db, log, gem)
  return NewAggregationService(
    log,
    repos.NewTestExecutionRepo(db, log),
    docs,
    repos.NewTestAttributeRepo(db, log),
    extraction,
    comparison,
  )
}

func reloadMemo(t *testing.T, db *gorm.DB, log *logger.Logger, fx *testFixture) map[string]types.AggregateResult {
  t.Helper()
  exec, err := repos.NewTestExecutionRepo(db, log).GetByID(context.Background(), nil, fx.tenantID, fx.exec.ID)
  if err != nil {
    t.Fatalf("reload execution: %v", err)
  }
  return decodeMemo(exec.OverallExecutionResult)
}

func TestEvaluateSampleDrivesComparison(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "", `{"text":"min length 14, lockout 5"}`)

  gem := &fakeGemini{reply: modelVerdict(true, true)}
  svc := newAggregation(t, db, log, gem)

  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if outcome.TotalAttributes != 2 || outcome.TotalAttributesPassed != 2 || outcome.TotalAttributesFailed != 0 {
    t.Fatalf("attribute totals got=%d/%d/%d", outcome.TotalAttributes, outcome.TotalAttributesPassed, outcome.TotalAttributesFailed)
  }
  if outcome.TotalEvidences != 1 || outcome.TotalEvidencesProcessed != 1 {
    t.Fatalf("evidence totals got=%d/%d", outcome.TotalEvidences, outcome.TotalEvidencesProcessed)
  }
  if !outcome.FinalResult {
    t.Fatal("final result should be true")
  }
  if len(outcome.EvidenceResults) != 1 || outcome.EvidenceResults[0].FinalResult == nil || !*outcome.EvidenceResults[0].FinalResult {
    t.Fatalf("evidence results got=%+v", outcome.EvidenceResults)
  }
  if len(gem.calls) != 1 {
    t.Fatalf("model calls got=%d want=1", len(gem.calls))
  }

  // the memo is stored under the default name
  memo := reloadMemo(t, db, log, fx)
  if _, ok := memo[types.DefaultSampleName]; !ok {
    t.Fatalf("memo keys: %v", memo)
  }
}

func TestEvaluateSampleExtractsOnDemand(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  uploads := t.TempDir()
  t.Setenv("UPLOADS_DIR", uploads)
  if err := os.MkdirAll(filepath.Join(uploads, "evidences"), 0o755); err != nil {
    t.Fatalf("mkdir: %v", err)
  }
  if err := os.WriteFile(filepath.Join(uploads, "evidences", "policy.docx"), buildDocx(t, docxFixture), 0o644); err != nil {
    t.Fatalf("write fixture: %v", err)
  }
  doc := seedDocument(t, db, log, fx, "policy.docx", "April", "")

  gem := &fakeGemini{reply: modelVerdict(true, true)}
  svc := newAggregation(t, db, log, gem)

  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if outcome.TotalEvidencesProcessed != 1 || !outcome.FinalResult {
    t.Fatalf("outcome got=%+v", outcome)
  }

  // extraction was persisted on the way through
  reloaded, err := repos.NewEvidenceDocumentRepo(db, log).GetByID(context.Background(), nil, fx.tenantID, doc.ID)
  if err != nil {
    t.Fatalf("reload document: %v", err)
  }
  if emptyAIDetails(reloaded.EvidenceAIDetails) {
    t.Fatal("details should have been extracted on demand")
  }
}

func TestEvaluateSampleOneMatchingDocumentCarriesAttribute(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "April", `{"text":"x"}`)
  seedDocument(t, db, log, fx, "b.docx", "April", `{"text":"y"}`)

  // each document covers a different attribute
  gem := &fakeGemini{replies: []string{modelVerdict(true, false), modelVerdict(false, true)}}
  svc := newAggregation(t, db, log, gem)

  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if outcome.TotalAttributes != 2 || outcome.TotalAttributesPassed != 2 || outcome.TotalAttributesFailed != 0 {
    t.Fatalf("attribute totals got=%d/%d/%d", outcome.TotalAttributes, outcome.TotalAttributesPassed, outcome.TotalAttributesFailed)
  }
  if !outcome.FinalResult {
    t.Fatal("a single matching document must carry each attribute")
  }
  for _, attr := range outcome.AttributeResults {
    if !attr.Result {
      t.Fatalf("attribute %q should pass: %+v", attr.AttributeName, attr)
    }
    if len(attr.MatchedEvidences) != 1 || len(attr.UnmatchedEvidences) != 1 {
      t.Fatalf("attribute %q evidences got matched=%d unmatched=%d", attr.AttributeName, len(attr.MatchedEvidences), len(attr.UnmatchedEvidences))
    }
  }
}

func TestEvaluateSampleUncoveredAttributeFails(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "April", `{"text":"x"}`)

  gem := &fakeGemini{reply: modelVerdict(true, false)}
  svc := newAggregation(t, db, log, gem)

  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if outcome.TotalAttributesPassed != 1 || outcome.TotalAttributesFailed != 1 {
    t.Fatalf("attribute totals got=%d/%d", outcome.TotalAttributesPassed, outcome.TotalAttributesFailed)
  }
  if outcome.FinalResult {
    t.Fatal("an uncovered attribute must fail the sample")
  }
}

func TestEvaluateSampleMemoizes(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "April", `{"text":"x"}`)

  gem := &fakeGemini{reply: modelVerdict(true, true)}
  svc := newAggregation(t, db, log, gem)

  first, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("first evaluate: %v", err)
  }
  if !first.FinalResult {
    t.Fatalf("first outcome got=%+v", first)
  }

  // a changed model answer must be shielded by the memo
  gem.reply = modelVerdict(false, false)
  second, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("second evaluate: %v", err)
  }
  if !second.FinalResult {
    t.Fatal("memoized outcome should not change")
  }
  if len(gem.calls) != 1 {
    t.Fatalf("model calls got=%d want=1", len(gem.calls))
  }
}

func TestEvaluateSampleIndependentSamples(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "Batch A", `{"text":"x"}`)
  seedDocument(t, db, log, fx, "b.docx", "Batch B", `{"text":"y"}`)

  gem := &fakeGemini{replies: []string{modelVerdict(true, true), modelVerdict(true, false)}}
  svc := newAggregation(t, db, log, gem)
  ctx := context.Background()

  a, err := svc.EvaluateSample(ctx, fx.tenantID, fx.exec.ID, "Batch A")
  if err != nil {
    t.Fatalf("batch a: %v", err)
  }
  b, err := svc.EvaluateSample(ctx, fx.tenantID, fx.exec.ID, "Batch B")
  if err != nil {
    t.Fatalf("batch b: %v", err)
  }
  if !a.FinalResult || b.FinalResult {
    t.Fatalf("outcomes got a=%v b=%v", a.FinalResult, b.FinalResult)
  }

  // both entries live side by side in the memo
  memo := reloadMemo(t, db, log, fx)
  if len(memo) != 2 {
    t.Fatalf("memo keys got=%d want=2", len(memo))
  }
  if !memo["Batch A"].FinalResult || memo["Batch B"].FinalResult {
    t.Fatalf("memo got=%+v", memo)
  }
}

func TestEvaluateSampleLegacyMemoIsServed(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "a.docx", "", `{"text":"x"}`)

  // a blob written before samples existed stores one result at the top level
  legacy := `{"attribute_results":[{"attribute_name":"MinLength","result":true}],"evidence_results":[],"total_attributes":1,"total_attributes_passed":1,"total_attributes_failed":0,"total_evidences":1,"total_evidences_processed":1,"final_result":true}`
  execs := repos.NewTestExecutionRepo(db, log)
  if err := execs.UpdateOverallResult(context.Background(), nil, fx.tenantID, fx.exec.ID, datatypes.JSON(legacy)); err != nil {
    t.Fatalf("write legacy memo: %v", err)
  }

  gem := &fakeGemini{}
  svc := newAggregation(t, db, log, gem)
  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if !outcome.FinalResult || outcome.TotalAttributes != 1 {
    t.Fatalf("legacy outcome got=%+v", outcome)
  }
  if len(gem.calls) != 0 {
    t.Fatalf("legacy hit must not invoke the model, calls=%d", len(gem.calls))
  }
}

func TestEvaluateSampleKeepsLegacyEntryOnWriteBack(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "april.docx", "April", `{"text":"x"}`)

  legacy := `{"attribute_results":[{"attribute_name":"MinLength","result":true}],"evidence_results":[],"total_attributes":1,"total_attributes_passed":1,"total_attributes_failed":0,"total_evidences":1,"total_evidences_processed":1,"final_result":true}`
  execs := repos.NewTestExecutionRepo(db, log)
  if err := execs.UpdateOverallResult(context.Background(), nil, fx.tenantID, fx.exec.ID, datatypes.JSON(legacy)); err != nil {
    t.Fatalf("write legacy memo: %v", err)
  }

  svc := newAggregation(t, db, log, &fakeGemini{reply: modelVerdict(true, true)})
  if _, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April"); err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }

  memo := reloadMemo(t, db, log, fx)
  kept, ok := memo[types.DefaultSampleName]
  if !ok {
    t.Fatalf("legacy entry lost on write-back, keys: %v", memo)
  }
  if !kept.FinalResult || kept.TotalAttributes != 1 {
    t.Fatalf("legacy entry got=%+v", kept)
  }
  if _, ok := memo["April"]; !ok {
    t.Fatalf("new sample missing, keys: %v", memo)
  }
}

func TestEvaluateSampleUnknownSample(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  svc := newAggregation(t, db, log, &fakeGemini{})
  _, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "Nope")
  ae, ok := apierr.As(err)
  if !ok || ae.Status != 404 {
    t.Fatalf("expected 404 apierr, got %v", err)
  }
}

func TestEvaluateSampleCapturesDocumentFailures(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  t.Setenv("UPLOADS_DIR", t.TempDir())
  broken := seedDocument(t, db, log, fx, "gone.docx", "April", "")

  svc := newAggregation(t, db, log, &fakeGemini{})
  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "April")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }
  if outcome.TotalEvidences != 1 || outcome.TotalEvidencesProcessed != 0 {
    t.Fatalf("evidence totals got=%d/%d", outcome.TotalEvidences, outcome.TotalEvidencesProcessed)
  }
  if len(outcome.EvidenceResults) != 1 || outcome.EvidenceResults[0].Error == "" {
    t.Fatalf("evidence results got=%+v", outcome.EvidenceResults)
  }
  if outcome.EvidenceResults[0].DocumentID != broken.ID {
    t.Fatalf("document id got=%s want=%s", outcome.EvidenceResults[0].DocumentID, broken.ID)
  }
  if outcome.FinalResult {
    t.Fatal("nothing processed, sample must fail")
  }
}

func TestEvaluateExecutionAllSamplesPass(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  for _, s := range []string{"April", "May"} {
    seedDocument(t, db, log, fx, s+".docx", s, `{"text":"x"}`)
  }

  svc := newAggregation(t, db, log, &fakeGemini{reply: modelVerdict(true, true)})
  agg, err := svc.EvaluateExecution(context.Background(), fx.tenantID, fx.exec.ID)
  if err != nil {
    t.Fatalf("EvaluateExecution: %v", err)
  }
  if agg.Result != types.ExecutionResultPass {
    t.Fatalf("result got=%q want=%q", agg.Result, types.ExecutionResultPass)
  }
  if len(agg.Samples) != 2 {
    t.Fatalf("samples got=%d want=2", len(agg.Samples))
  }

  exec, _ := repos.NewTestExecutionRepo(db, log).GetByID(context.Background(), nil, fx.tenantID, fx.exec.ID)
  if exec.Result != types.ExecutionResultPass {
    t.Fatalf("persisted result got=%q", exec.Result)
  }
}

func TestEvaluateExecutionFailingSampleWins(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  seedDocument(t, db, log, fx, "april.docx", "April", `{"text":"x"}`)
  seedDocument(t, db, log, fx, "may.docx", "May", `{"text":"x"}`)

  // samples evaluate in name order
  gem := &fakeGemini{replies: []string{modelVerdict(true, true), modelVerdict(true, false)}}
  svc := newAggregation(t, db, log, gem)
  agg, err := svc.EvaluateExecution(context.Background(), fx.tenantID, fx.exec.ID)
  if err != nil {
    t.Fatalf("EvaluateExecution: %v", err)
  }
  if agg.Result != types.ExecutionResultFail {
    t.Fatalf("result got=%q want=%q", agg.Result, types.ExecutionResultFail)
  }
  if !agg.Samples["April"].FinalResult || agg.Samples["May"].FinalResult {
    t.Fatalf("samples got=%+v", agg.Samples)
  }
}

func TestEvaluateExecutionPartialOnBrokenDocument(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  t.Setenv("UPLOADS_DIR", t.TempDir())
  seedDocument(t, db, log, fx, "good.docx", "April", `{"text":"x"}`)
  seedDocument(t, db, log, fx, "gone.docx", "April", "")

  svc := newAggregation(t, db, log, &fakeGemini{reply: modelVerdict(true, true)})
  agg, err := svc.EvaluateExecution(context.Background(), fx.tenantID, fx.exec.ID)
  if err != nil {
    t.Fatalf("EvaluateExecution: %v", err)
  }
  if agg.Result != types.ExecutionResultPartial {
    t.Fatalf("result got=%q want=%q", agg.Result, types.ExecutionResultPartial)
  }
  april := agg.Samples["April"]
  if april.TotalEvidencesProcessed != 1 || april.TotalEvidences != 2 {
    t.Fatalf("evidence totals got=%d/%d", april.TotalEvidencesProcessed, april.TotalEvidences)
  }
  if !april.FinalResult {
    t.Fatal("the processed document covers every attribute")
  }
}

func TestEvaluateExecutionNoDocuments(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  svc := newAggregation(t, db, log, &fakeGemini{})
  agg, err := svc.EvaluateExecution(context.Background(), fx.tenantID, fx.exec.ID)
  if err != nil {
    t.Fatalf("EvaluateExecution: %v", err)
  }
  if agg.Result != types.ExecutionResultNA {
    t.Fatalf("result got=%q want=%q", agg.Result, types.ExecutionResultNA)
  }
}

func TestDecodeMemoLegacyShape(t *testing.T) {
  raw := `{"attribute_results":[{"attribute_name":"MinLength","result":true}],"evidence_results":[],"total_attributes":1,"total_attributes_passed":1,"final_result":true}`
  memo := decodeMemo(datatypes.JSON(raw))
  if len(memo) != 1 {
    t.Fatalf("entries got=%d want=1", len(memo))
  }
  got, ok := memo[types.DefaultSampleName]
  if !ok {
    t.Fatalf("keys: %v", memo)
  }
  if !got.FinalResult || got.TotalAttributes != 1 {
    t.Fatalf("entry got=%+v", got)
  }
}

func TestDecodeMemoDropsUnreadableEntries(t *testing.T) {
  good := types.AggregateResult{FinalResult: true, TotalAttributes: 2, TotalAttributesPassed: 2}
  raw, _ := json.Marshal(map[string]any{
    "April": good,
    "May":   true,
    "June":  "pass",
  })

  memo := decodeMemo(datatypes.JSON(raw))
  if len(memo) != 1 {
    t.Fatalf("entries got=%d want=1", len(memo))
  }
  if got := memo["April"]; got.TotalAttributes != 2 || !got.FinalResult {
    t.Fatalf("April got=%+v", got)
  }
}

// Uploading a screenshot, extracting it through the model and evaluating
// the default sample is the smallest complete pass through the pipeline.
func TestEvaluateSampleScreenshotEndToEnd(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  if err := db.Where("tenant_id = ? AND attribute_name = ?", fx.tenantID, "Lockout").
    Delete(&types.TestAttribute{}).Error; err != nil {
    t.Fatalf("trim attributes: %v", err)
  }

  uploads := t.TempDir()
  t.Setenv("UPLOADS_DIR", uploads)
  if err := os.MkdirAll(filepath.Join(uploads, "evidences"), 0o755); err != nil {
    t.Fatalf("mkdir: %v", err)
  }
  if err := os.WriteFile(filepath.Join(uploads, "evidences", "ad.png"), []byte("not-a-real-png"), 0o644); err != nil {
    t.Fatalf("write fixture: %v", err)
  }
  seedDocument(t, db, log, fx, "ad.png", "", "")

  // first call extracts the screenshot, second compares it
  gem := &fakeGemini{replies: []string{
    "```json\n{\"MinimumPasswordLength\":\"14\"}\n```",
    modelVerdict(true),
  }}
  svc := newAggregation(t, db, log, gem)

  outcome, err := svc.EvaluateSample(context.Background(), fx.tenantID, fx.exec.ID, "")
  if err != nil {
    t.Fatalf("EvaluateSample: %v", err)
  }

  if outcome.TotalAttributes != 1 || outcome.TotalAttributesPassed != 1 || outcome.TotalAttributesFailed != 0 {
    t.Fatalf("attribute totals got=%d/%d/%d", outcome.TotalAttributes, outcome.TotalAttributesPassed, outcome.TotalAttributesFailed)
  }
  if outcome.TotalEvidences != 1 || outcome.TotalEvidencesProcessed != 1 {
    t.Fatalf("evidence totals got=%d/%d", outcome.TotalEvidencesProcessed, outcome.TotalEvidences)
  }
  if !outcome.FinalResult {
    t.Fatal("final result should pass")
  }
  if len(outcome.AttributeResults) != 1 {
    t.Fatalf("attribute results got=%+v", outcome.AttributeResults)
  }
  attr := outcome.AttributeResults[0]
  if attr.AttributeName != "MinLength" || !attr.Result {
    t.Fatalf("attribute got=%+v", attr)
  }
  if len(attr.MatchedEvidences) != 1 || attr.MatchedEvidences[0].DocumentName != "ad.png" {
    t.Fatalf("matched evidences got=%+v", attr.MatchedEvidences)
  }

  if len(gem.calls) != 2 {
    t.Fatalf("model calls got=%d want=2", len(gem.calls))
  }
  if !strings.Contains(gem.calls[0][0].Text, "MS active directory") {
    t.Fatalf("extraction prompt got=%q", gem.calls[0][0].Text)
  }
  if gem.calls[0][1].InlineData == nil || gem.calls[0][1].InlineData.MimeType != "image/png" {
    t.Fatalf("inline part got=%+v", gem.calls[0][1])
  }

  memo := reloadMemo(t, db, log, fx)
  if _, ok := memo[types.DefaultSampleName]; !ok {
    t.Fatalf("memo keys: %v", memo)
  }
}
