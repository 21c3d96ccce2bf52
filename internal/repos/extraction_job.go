package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/auditlens/auditlens-backend/internal/platform/logger"
  "github.com/auditlens/auditlens-backend/internal/types"
)

type ExtractionJobRepo interface {
  Create(ctx context.Context, tx *gorm.DB, job *types.ExtractionJob) (*types.ExtractionJob, error)
  GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.ExtractionJob, error)
  // ClaimNext moves the oldest queued job to running. Returns nil when the
  // queue is empty or another worker won the claim.
  ClaimNext(ctx context.Context, tx *gorm.DB) (*types.ExtractionJob, error)
  MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
  MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, jobErr string) error
}

type extractionJobRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewExtractionJobRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionJobRepo {
  return &extractionJobRepo{db: db, log: baseLog.With("repo", "ExtractionJobRepo")}
}

func (r *extractionJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ExtractionJob) (*types.ExtractionJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if job.ID == uuid.Nil {
    job.ID = uuid.New()
  }
  if job.Status == "" {
    job.Status = types.JobStatusQueued
  }
  if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
    return nil, err
  }
  return job, nil
}

func (r *extractionJobRepo) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID) (*types.ExtractionJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var job types.ExtractionJob
  if err := transaction.WithContext(ctx).
    Where("id = ? AND tenant_id = ?", id, tenantID).
    First(&job).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  return &job, nil
}

func (r *extractionJobRepo) ClaimNext(ctx context.Context, tx *gorm.DB) (*types.ExtractionJob, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var job types.ExtractionJob
  if err := transaction.WithContext(ctx).
    Where("status = ?", types.JobStatusQueued).
    Order("created_at asc").
    First(&job).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, nil
    }
    return nil, err
  }
  now := time.Now().UTC()
  res := transaction.WithContext(ctx).
    Model(&types.ExtractionJob{}).
    Where("id = ? AND status = ?", job.ID, types.JobStatusQueued).
    Updates(map[string]interface{}{
      "status":     types.JobStatusRunning,
      "attempts":   gorm.Expr("attempts + 1"),
      "started_at": now,
      "updated_at": now,
    })
  if res.Error != nil {
    return nil, res.Error
  }
  if res.RowsAffected == 0 {
    return nil, nil
  }
  job.Status = types.JobStatusRunning
  job.Attempts++
  job.StartedAt = &now
  return &job, nil
}

func (r *extractionJobRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  return r.finish(ctx, tx, id, types.JobStatusSucceeded, "")
}

func (r *extractionJobRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, jobErr string) error {
  return r.finish(ctx, tx, id, types.JobStatusFailed, jobErr)
}

func (r *extractionJobRepo) finish(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, jobErr string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  now := time.Now().UTC()
  return transaction.WithContext(ctx).
    Model(&types.ExtractionJob{}).
    Where("id = ?", id).
    Updates(map[string]interface{}{
      "status":      status,
      "error":       jobErr,
      "finished_at": now,
      "updated_at":  now,
    }).Error
}
