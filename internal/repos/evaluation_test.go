package repos

import (
  "context"
  "fmt"
  "strings"
  "testing"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("dev")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  return log
}

func testDB(t *testing.T) *gorm.DB {
  t.Helper()
  dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
  db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
  if err != nil {
    t.Fatalf("open sqlite: %v", err)
  }
  if err := db.AutoMigrate(
    &types.TestExecution{},
    &types.EvaluationRecord{},
    &types.ExtractionJob{},
  ); err != nil {
    t.Fatalf("automigrate: %v", err)
  }
  return db
}

func TestEvaluationUpsertIsIdempotentPerDocument(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  repo := NewEvaluationRepo(db, log)
  ctx := context.Background()

  tenantID := uuid.New()
  execID := uuid.New()
  docID := uuid.New()

  first, err := repo.Upsert(ctx, nil, &types.EvaluationRecord{
    TenantID:           tenantID,
    TestExecutionID:    execID,
    EvidenceDocumentID: docID,
    Result:             datatypes.JSON(`{"final_result":true}`),
    Status:             "pass",
    TotalAttributes:    2,
    TotalPassed:        2,
  })
  if err != nil {
    t.Fatalf("first upsert: %v", err)
  }

  second, err := repo.Upsert(ctx, nil, &types.EvaluationRecord{
    TenantID:           tenantID,
    TestExecutionID:    execID,
    EvidenceDocumentID: docID,
    Result:             datatypes.JSON(`{"final_result":false}`),
    Status:             "fail",
    TotalAttributes:    2,
    TotalPassed:        1,
    TotalFailed:        1,
  })
  if err != nil {
    t.Fatalf("second upsert: %v", err)
  }

  if first.ID != second.ID {
    t.Fatalf("upsert created a second row: %s vs %s", first.ID, second.ID)
  }
  if second.Status != "fail" || second.TotalFailed != 1 {
    t.Fatalf("replay did not replace the verdict: %+v", second)
  }

  var count int64
  if err := db.Model(&types.EvaluationRecord{}).Count(&count).Error; err != nil {
    t.Fatalf("count: %v", err)
  }
  if count != 1 {
    t.Fatalf("rows got=%d want=1", count)
  }
}

func TestEvaluationUpsertSeparatesDocumentsAndTenants(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  repo := NewEvaluationRepo(db, log)
  ctx := context.Background()

  tenantA := uuid.New()
  tenantB := uuid.New()
  execID := uuid.New()

  for _, tenant := range []uuid.UUID{tenantA, tenantB} {
    for i := 0; i < 2; i++ {
      if _, err := repo.Upsert(ctx, nil, &types.EvaluationRecord{
        TenantID:           tenant,
        TestExecutionID:    execID,
        EvidenceDocumentID: uuid.New(),
        Result:             datatypes.JSON(`{}`),
        Status:             "pass",
      }); err != nil {
        t.Fatalf("upsert: %v", err)
      }
    }
  }

  recs, err := repo.ListByExecution(ctx, nil, tenantA, execID)
  if err != nil {
    t.Fatalf("list: %v", err)
  }
  if len(recs) != 2 {
    t.Fatalf("tenant A rows got=%d want=2", len(recs))
  }
}

func TestEvaluationGetByExecutionAndDocumentMiss(t *testing.T) {
  db := testDB(t)
  repo := NewEvaluationRepo(db, testLogger(t))

  rec, err := repo.GetByExecutionAndDocument(context.Background(), nil, uuid.New(), uuid.New(), uuid.New())
  if err != nil {
    t.Fatalf("get: %v", err)
  }
  if rec != nil {
    t.Fatalf("expected nil, got %+v", rec)
  }
}

func TestTestExecutionUpdateScopedToTenant(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  repo := NewTestExecutionRepo(db, log)
  ctx := context.Background()

  tenantID := uuid.New()
  exec, err := repo.Create(ctx, nil, &types.TestExecution{
    TenantID: tenantID,
    ClientID: uuid.New(),
    RcmID:    uuid.New(),
    UserID:   uuid.New(),
    Year:     2026,
    Quarter:  "Q1",
  })
  if err != nil {
    t.Fatalf("create: %v", err)
  }

  if err := repo.UpdateStatus(ctx, nil, uuid.New(), exec.ID, types.ExecutionStatusInProgress); err != gorm.ErrRecordNotFound {
    t.Fatalf("cross-tenant update got=%v want=ErrRecordNotFound", err)
  }

  if err := repo.UpdateStatus(ctx, nil, tenantID, exec.ID, types.ExecutionStatusInProgress); err != nil {
    t.Fatalf("update: %v", err)
  }
  reloaded, err := repo.GetByID(ctx, nil, tenantID, exec.ID)
  if err != nil {
    t.Fatalf("get: %v", err)
  }
  if reloaded.Status != types.ExecutionStatusInProgress {
    t.Fatalf("status got=%q", reloaded.Status)
  }
}

func TestExtractionJobClaimNext(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  repo := NewExtractionJobRepo(db, log)
  ctx := context.Background()

  tenantID := uuid.New()
  first, err := repo.Create(ctx, nil, &types.ExtractionJob{
    TenantID:           tenantID,
    EvidenceDocumentID: uuid.New(),
  })
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if first.Status != types.JobStatusQueued {
    t.Fatalf("status got=%q want=%q", first.Status, types.JobStatusQueued)
  }

  claimed, err := repo.ClaimNext(ctx, nil)
  if err != nil {
    t.Fatalf("claim: %v", err)
  }
  if claimed == nil || claimed.ID != first.ID {
    t.Fatalf("claimed got=%+v", claimed)
  }
  if claimed.Status != types.JobStatusRunning || claimed.Attempts != 1 {
    t.Fatalf("claimed state got status=%q attempts=%d", claimed.Status, claimed.Attempts)
  }

  // queue is now empty
  again, err := repo.ClaimNext(ctx, nil)
  if err != nil {
    t.Fatalf("second claim: %v", err)
  }
  if again != nil {
    t.Fatalf("expected empty queue, got %+v", again)
  }

  if err := repo.MarkFailed(ctx, nil, claimed.ID, "artifact missing"); err != nil {
    t.Fatalf("mark failed: %v", err)
  }
  reloaded, err := repo.GetByID(ctx, nil, tenantID, claimed.ID)
  if err != nil {
    t.Fatalf("get: %v", err)
  }
  if reloaded.Status != types.JobStatusFailed || reloaded.Error != "artifact missing" {
    t.Fatalf("final state got=%+v", reloaded)
  }
  if reloaded.FinishedAt == nil {
    t.Fatal("finished_at should be set")
  }
}
