package services

import (
  "context"
  "fmt"
  "strings"
  "testing"

  "github.com/google/uuid"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
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
    &types.Tenant{},
    &types.Client{},
    &types.User{},
    &types.RCM{},
    &types.TestAttribute{},
    &types.Evidence{},
    &types.EvidenceDocument{},
    &types.TestExecution{},
    &types.EvaluationRecord{},
    &types.AIPrompt{},
    &types.ExtractionJob{},
    &types.AICallLog{},
  ); err != nil {
    t.Fatalf("automigrate: %v", err)
  }
  return db
}

// fakeGemini returns canned replies without touching the network. When
// replies is set they are consumed in call order, then reply is the
// fallback.
type fakeGemini struct {
  reply   string
  replies []string
  err     error
  calls   [][]GeminiPart
}

func (f *fakeGemini) GenerateContent(_ context.Context, parts []GeminiPart) (string, error) {
  f.calls = append(f.calls, parts)
  if f.err != nil {
    return "", f.err
  }
  if len(f.replies) > 0 {
    next := f.replies[0]
    f.replies = f.replies[1:]
    return next, nil
  }
  return f.reply, nil
}

func (f *fakeGemini) Model() string { return "fake-model" }

type testFixture struct {
  tenantID uuid.UUID
  clientID uuid.UUID
  userID   uuid.UUID
  rcm      *types.RCM
  exec     *types.TestExecution
}

// seedExecution creates the tenant graph one comparison needs: an rcm with
// two attributes and a pending execution against it.
func seedExecution(t *testing.T, db *gorm.DB, log *logger.Logger) *testFixture {
  t.Helper()
  ctx := context.Background()

  fx := &testFixture{
    tenantID: uuid.New(),
    clientID: uuid.New(),
    userID:   uuid.New(),
  }

  rcms := repos.NewRCMRepo(db, log)
  rcm, err := rcms.Create(ctx, nil, &types.RCM{
    TenantID:  fx.tenantID,
    ClientID:  fx.clientID,
    ControlID: "ITGC-01",
    ControlName: "Password policy",
    ControlText: "Passwords must satisfy the configured complexity policy.",
  })
  if err != nil {
    t.Fatalf("create rcm: %v", err)
  }
  fx.rcm = rcm

  attrs := repos.NewTestAttributeRepo(db, log)
  for _, a := range []struct{ name, desc, steps string }{
    {"MinLength", "Minimum password length is 12", "Inspect the policy screenshot"},
    {"Lockout", "Account locks after 5 failed attempts", "Inspect the lockout threshold"},
  } {
    if _, err := attrs.Create(ctx, nil, &types.TestAttribute{
      TenantID:             fx.tenantID,
      RcmID:                rcm.ID,
      AttributeName:        a.name,
      AttributeDescription: a.desc,
      TestSteps:            a.steps,
    }); err != nil {
      t.Fatalf("create attribute: %v", err)
    }
  }

  execs := repos.NewTestExecutionRepo(db, log)
  exec, err := execs.Create(ctx, nil, &types.TestExecution{
    TenantID: fx.tenantID,
    ClientID: fx.clientID,
    RcmID:    rcm.ID,
    UserID:   fx.userID,
    Year:     2026,
    Quarter:  "Q2",
  })
  if err != nil {
    t.Fatalf("create execution: %v", err)
  }
  fx.exec = exec
  return fx
}

// seedDocument stores one evidence document, optionally with extracted
// details already present.
func seedDocument(t *testing.T, db *gorm.DB, log *logger.Logger, fx *testFixture, name, sample string, details string) *types.EvidenceDocument {
  t.Helper()
  ctx := context.Background()

  evs := repos.NewEvidenceRepo(db, log)
  ev, err := evs.Create(ctx, nil, &types.Evidence{
    TenantID: fx.tenantID,
    ClientID: fx.clientID,
    RcmID:    &fx.rcm.ID,
    Name:     "PBC " + name,
  })
  if err != nil {
    t.Fatalf("create evidence: %v", err)
  }

  docs := repos.NewEvidenceDocumentRepo(db, log)
  created, err := docs.CreateBatch(ctx, nil, []*types.EvidenceDocument{{
    TenantID:          fx.tenantID,
    EvidenceID:        ev.ID,
    DocumentName:      name,
    ArtifactURL:       "evidences/" + name,
    SampleName:        sample,
    EvidenceAIDetails: jsonOrNil(details),
  }})
  if err != nil {
    t.Fatalf("create document: %v", err)
  }
  return created[0]
}

func jsonOrNil(s string) []byte {
  if s == "" {
    return nil
  }
  return []byte(s)
}
