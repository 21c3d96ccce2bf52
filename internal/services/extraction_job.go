package services

import (
  "context"
  "sync"
  "time"

  "github.com/google/uuid"

  "github.com/auditlens/auditlens-backend/internal/platform/apierr"
  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/repos"
  "github.com/auditlens/auditlens-backend/internal/types"
  "github.com/auditlens/auditlens-backend/internal/utils"
)

// ExtractionJobService exposes the explicit job queue around background
// document extraction. Callers enqueue and poll; the worker drains.
type ExtractionJobService interface {
  Enqueue(ctx context.Context, tenantID, documentID uuid.UUID) (*types.ExtractionJob, error)
  GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (*types.ExtractionJob, error)
  Start()
  Stop()
}

type extractionJobService struct {
  log        *logger.Logger
  jobs       repos.ExtractionJobRepo
  extractor  ExtractionService
  pollEvery  time.Duration
  jobTimeout time.Duration

  cancel context.CancelFunc
  wg     sync.WaitGroup
  once   sync.Once
}

func NewExtractionJobService(baseLog *logger.Logger, jobs repos.ExtractionJobRepo, extractor ExtractionService) ExtractionJobService {
  log := baseLog.With("service", "ExtractionJobService")
  return &extractionJobService{
    log:        log,
    jobs:       jobs,
    extractor:  extractor,
    pollEvery:  time.Duration(utils.GetEnvAsInt("EXTRACTION_POLL_SECONDS", 5, log)) * time.Second,
    jobTimeout: time.Duration(utils.GetEnvAsInt("EXTRACTION_JOB_TIMEOUT_SECONDS", 300, log)) * time.Second,
  }
}

func (s *extractionJobService) Enqueue(ctx context.Context, tenantID, documentID uuid.UUID) (*types.ExtractionJob, error) {
  if documentID == uuid.Nil {
    return nil, apierr.Validation("evidence document id is required")
  }
  return s.jobs.Create(ctx, nil, &types.ExtractionJob{
    TenantID:           tenantID,
    EvidenceDocumentID: documentID,
    Status:             types.JobStatusQueued,
  })
}

func (s *extractionJobService) GetByID(ctx context.Context, tenantID, jobID uuid.UUID) (*types.ExtractionJob, error) {
  job, err := s.jobs.GetByID(ctx, nil, tenantID, jobID)
  if err != nil {
    return nil, err
  }
  if job == nil {
    return nil, apierr.NotFound("extraction job")
  }
  return job, nil
}

func (s *extractionJobService) Start() {
  s.once.Do(func() {
    ctx, cancel := context.WithCancel(context.Background())
    s.cancel = cancel
    s.wg.Add(1)
    go s.run(ctx)
  })
}

func (s *extractionJobService) Stop() {
  if s.cancel != nil {
    s.cancel()
  }
  s.wg.Wait()
}

func (s *extractionJobService) run(ctx context.Context) {
  defer s.wg.Done()
  ticker := time.NewTicker(s.pollEvery)
  defer ticker.Stop()

  s.log.Info("extraction worker started", "poll_every", s.pollEvery.String())
  for {
    select {
    case <-ctx.Done():
      s.log.Info("extraction worker stopped")
      return
    case <-ticker.C:
      s.drain(ctx)
    }
  }
}

func (s *extractionJobService) drain(ctx context.Context) {
  for {
    if ctx.Err() != nil {
      return
    }
    job, err := s.jobs.ClaimNext(ctx, nil)
    if err != nil {
      s.log.Error("claim failed", "error", err)
      return
    }
    if job == nil {
      return
    }
    s.process(ctx, job)
  }
}

func (s *extractionJobService) process(ctx context.Context, job *types.ExtractionJob) {
  jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
  defer cancel()

  _, warnings, err := s.extractor.ExtractEvidenceDetails(jobCtx, job.TenantID, job.EvidenceDocumentID)
  if err != nil {
    s.log.Warn("extraction job failed",
      "job_id", job.ID.String(),
      "document_id", job.EvidenceDocumentID.String(),
      "attempt", job.Attempts,
      "error", err,
    )
    if markErr := s.jobs.MarkFailed(context.WithoutCancel(ctx), nil, job.ID, err.Error()); markErr != nil {
      s.log.Error("failed to mark job failed", "job_id", job.ID.String(), "error", markErr)
    }
    return
  }

  if markErr := s.jobs.MarkSucceeded(context.WithoutCancel(ctx), nil, job.ID); markErr != nil {
    s.log.Error("failed to mark job succeeded", "job_id", job.ID.String(), "error", markErr)
    return
  }
  s.log.Info("extraction job finished",
    "job_id", job.ID.String(),
    "document_id", job.EvidenceDocumentID.String(),
    "warnings", len(warnings),
  )
}
