package services

import (
  "context"
  "fmt"
  "os"
  "path/filepath"
  "strings"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
  "github.com/auditlens/auditlens-backend/internal/utils"
)

type EvidenceFile struct {
  Name             string
  MimeType         string
  SampleName       string
  IsPolicyDocument bool
  Content          []byte
}

type CreateEvidenceInput struct {
  ClientID    uuid.UUID
  RcmID       *uuid.UUID
  Name        string
  Description string
  Files       []EvidenceFile
}

type EvidenceService interface {
  Create(ctx context.Context, tenantID uuid.UUID, input CreateEvidenceInput) (*types.Evidence, []*types.ExtractionJob, error)
  GetByID(ctx context.Context, tenantID, id uuid.UUID) (*types.Evidence, error)
  ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*types.Evidence, error)
  Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type evidenceService struct {
  log         *logger.Logger
  db          *gorm.DB
  evidences   repos.EvidenceRepo
  docs        repos.EvidenceDocumentRepo
  jobs        ExtractionJobService
  uploadsRoot string
}

func NewEvidenceService(baseLog *logger.Logger, db *gorm.DB, evidences repos.EvidenceRepo, docs repos.EvidenceDocumentRepo, jobs ExtractionJobService) EvidenceService {
  log := baseLog.With("service", "EvidenceService")
  return &evidenceService{
    log:         log,
    db:          db,
    evidences:   evidences,
    docs:        docs,
    jobs:        jobs,
    uploadsRoot: utils.GetEnv("UPLOADS_DIR", "uploads", log),
  }
}

func sanitizeFilename(name string) string {
  base := filepath.Base(strings.TrimSpace(name))
  base = strings.Map(func(r rune) rune {
    switch {
    case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
      return r
    case r == '.', r == '-', r == '_':
      return r
    default:
      return '_'
    }
  }, base)
  if base == "" || base == "." {
    base = "document"
  }
  return base
}

func (s *evidenceService) Create(ctx context.Context, tenantID uuid.UUID, input CreateEvidenceInput) (*types.Evidence, []*types.ExtractionJob, error) {
  if strings.TrimSpace(input.Name) == "" {
    return nil, nil, apierr.Validation("evidence name is required")
  }
  if input.ClientID == uuid.Nil {
    return nil, nil, apierr.Validation("client id is required")
  }
  if len(input.Files) == 0 {
    return nil, nil, apierr.Validation("at least one file is required")
  }

  // weed out per-request duplicates before touching disk
  seen := map[string]bool{}
  for _, f := range input.Files {
    key := strings.ToLower(strings.TrimSpace(f.Name))
    if seen[key] {
      return nil, nil, apierr.Validation(fmt.Sprintf("duplicate document name: %s", f.Name))
    }
    seen[key] = true
  }

  ev := &types.Evidence{
    TenantID:    tenantID,
    ClientID:    input.ClientID,
    RcmID:       input.RcmID,
    Name:        input.Name,
    Description: input.Description,
  }

  var docs []*types.EvidenceDocument
  var written []string
  cleanup := func() {
    for _, p := range written {
      _ = os.Remove(p)
    }
  }

  for _, f := range input.Files {
    rel := filepath.Join("evidences", fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitizeFilename(f.Name)))
    abs := filepath.Join(s.uploadsRoot, rel)
    if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
      cleanup()
      return nil, nil, err
    }
    if err := os.WriteFile(abs, f.Content, 0o644); err != nil {
      cleanup()
      return nil, nil, err
    }
    written = append(written, abs)

    docs = append(docs, &types.EvidenceDocument{
      TenantID:         tenantID,
      DocumentName:     f.Name,
      ArtifactURL:      filepath.ToSlash(rel),
      MimeType:         f.MimeType,
      SampleName:       f.SampleName,
      IsPolicyDocument: f.IsPolicyDocument,
    })
  }

  err := s.db.Transaction(func(tx *gorm.DB) error {
    if _, err := s.evidences.Create(ctx, tx, ev); err != nil {
      return err
    }
    for _, d := range docs {
      d.EvidenceID = ev.ID
    }
    _, err := s.docs.CreateBatch(ctx, tx, docs)
    return err
  })
  if err != nil {
    cleanup()
    return nil, nil, err
  }

  // policy documents get their extraction queued; upload never waits on it
  var jobs []*types.ExtractionJob
  for _, d := range docs {
    if !d.IsPolicyDocument {
      continue
    }
    job, jobErr := s.jobs.Enqueue(ctx, tenantID, d.ID)
    if jobErr != nil {
      s.log.Warn("failed to enqueue extraction job", "document_id", d.ID.String(), "error", jobErr)
      continue
    }
    jobs = append(jobs, job)
  }

  ev.Documents = make([]types.EvidenceDocument, 0, len(docs))
  for _, d := range docs {
    ev.Documents = append(ev.Documents, *d)
  }
  s.log.Info("created evidence", "evidence_id", ev.ID.String(), "documents", len(docs), "jobs", len(jobs))
  return ev, jobs, nil
}

func (s *evidenceService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*types.Evidence, error) {
  ev, err := s.evidences.GetByID(ctx, nil, tenantID, id)
  if err != nil {
    return nil, err
  }
  if ev == nil {
    return nil, apierr.NotFound("evidence")
  }
  return ev, nil
}

func (s *evidenceService) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*types.Evidence, error) {
  return s.evidences.ListByClient(ctx, nil, tenantID, clientID)
}

func (s *evidenceService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
  ev, err := s.evidences.GetByID(ctx, nil, tenantID, id)
  if err != nil {
    return err
  }
  if ev == nil {
    return apierr.NotFound("evidence")
  }
  return s.evidences.SoftDeleteByID(ctx, nil, tenantID, id)
}
