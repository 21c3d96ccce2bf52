package services

import (
  "context"
  "os"
  "path/filepath"
  "testing"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
)

func TestCreateEvidenceWritesFilesAndQueuesPolicyDocs(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)

  uploads := t.TempDir()
  t.Setenv("UPLOADS_DIR", uploads)

  jobsRepo := repos.NewExtractionJobRepo(db, log)
  jobs := NewExtractionJobService(log, jobsRepo, nil)
  svc := NewEvidenceService(log, db, repos.NewEvidenceRepo(db, log), repos.NewEvidenceDocumentRepo(db, log), jobs)

  ev, queued, err := svc.Create(context.Background(), fx.tenantID, CreateEvidenceInput{
    ClientID: fx.clientID,
    RcmID:    &fx.rcm.ID,
    Name:     "AD password policy",
    Files: []EvidenceFile{
      {Name: "policy.png", MimeType: "image/png", SampleName: "April", IsPolicyDocument: true, Content: []byte("png-bytes")},
      {Name: "notes.docx", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Content: []byte("doc-bytes")},
    },
  })
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if len(ev.Documents) != 2 {
    t.Fatalf("documents got=%d want=2", len(ev.Documents))
  }
  if len(queued) != 1 {
    t.Fatalf("jobs got=%d want=1", len(queued))
  }
  if queued[0].Status != types.JobStatusQueued {
    t.Fatalf("job status got=%q", queued[0].Status)
  }

  for _, d := range ev.Documents {
    path := filepath.Join(uploads, filepath.FromSlash(d.ArtifactURL))
    if _, statErr := os.Stat(path); statErr != nil {
      t.Fatalf("artifact %q not on disk: %v", d.ArtifactURL, statErr)
    }
  }
}

func TestCreateEvidenceRejectsDuplicateDocumentNames(t *testing.T) {
  db := testDB(t)
  log := testLogger(t)
  fx := seedExecution(t, db, log)
  t.Setenv("UPLOADS_DIR", t.TempDir())

  jobs := NewExtractionJobService(log, repos.NewExtractionJobRepo(db, log), nil)
  svc := NewEvidenceService(log, db, repos.NewEvidenceRepo(db, log), repos.NewEvidenceDocumentRepo(db, log), jobs)

  _, _, err := svc.Create(context.Background(), fx.tenantID, CreateEvidenceInput{
    ClientID: fx.clientID,
    Name:     "dup",
    Files: []EvidenceFile{
      {Name: "same.pdf", Content: []byte("a")},
      {Name: "Same.PDF", Content: []byte("b")},
    },
  })
  ae, ok := apierr.As(err)
  if !ok || ae.Status != 400 {
    t.Fatalf("expected 400, got %v", err)
  }
}

func TestSanitizeFilename(t *testing.T) {
  cases := []struct{ in, want string }{
    {"policy.docx", "policy.docx"},
    {"../../etc/passwd", "passwd"},
    {"my report (final).pdf", "my_report__final_.pdf"},
    {"", "document"},
  }
  for _, tc := range cases {
    if got := sanitizeFilename(tc.in); got != tc.want {
      t.Fatalf("sanitizeFilename(%q) got=%q want=%q", tc.in, got, tc.want)
    }
  }
}
